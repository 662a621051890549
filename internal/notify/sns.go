package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/quantfold/screener/pkg/config"
	"github.com/quantfold/screener/pkg/logger"
)

// SNS publishes notifications to an SNS topic.
type SNS struct {
	client   *sns.Client
	topicARN string
	logger   *logger.Logger
}

// NewSNS creates an SNS notifier using the default AWS credential chain.
func NewSNS(ctx context.Context, cfg *config.Config, log *logger.Logger) (*SNS, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Notify.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SNS{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: cfg.Notify.TopicARN,
		logger:   log.WithField("module", "notify.sns"),
	}, nil
}

// Publish sends the notification to the topic.
func (n *SNS) Publish(ctx context.Context, subject, body string) error {
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}

	n.logger.WithField("subject", subject).Info("Notification sent")
	return nil
}

// New returns the SNS notifier when enabled, otherwise the log-only one.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (Notifier, error) {
	if !cfg.Notify.Enabled {
		return NewLog(log), nil
	}
	return NewSNS(ctx, cfg, log)
}
