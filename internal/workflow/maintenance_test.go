package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/screener/internal/store"
	"github.com/quantfold/screener/pkg/config"
	"github.com/quantfold/screener/pkg/logger"
)

func TestMaintenance_Prune(t *testing.T) {
	cfg := &config.Config{
		LogLevel:  "error",
		LogFormat: "json",
		Store:     config.StoreConfig{Prefix: "stock_data"},
		Workflow:  config.WorkflowConfig{RetentionDays: 30},
	}
	log := logger.New(cfg)

	st, err := store.NewFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	loc := time.UTC
	require.NoError(t, st.Put(ctx, "stock_data/19990101/dataset_19990101.csv", []byte("old")))
	require.NoError(t, st.Put(ctx, "stock_data/19990101/premarket_top_gainers_19990101.csv", []byte("old")))
	require.NoError(t, st.Put(ctx, "stock_data/99991231/dataset_99991231.csv", []byte("recent")))
	require.NoError(t, st.Put(ctx, "symbols/nasdaq_symbols_19990101.csv", []byte("not under the prefix")))

	m := NewMaintenance(cfg, st, log, loc)
	require.NoError(t, m.Prune(ctx))

	keys, err := st.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"stock_data/99991231/dataset_99991231.csv",
		"symbols/nasdaq_symbols_19990101.csv",
	}, keys)
}

func TestMaintenance_PruneDisabled(t *testing.T) {
	cfg := &config.Config{
		LogLevel:  "error",
		LogFormat: "json",
		Store:     config.StoreConfig{Prefix: "stock_data"},
		Workflow:  config.WorkflowConfig{RetentionDays: 0},
	}
	st, err := store.NewFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "stock_data/19990101/dataset_19990101.csv", []byte("old")))

	m := NewMaintenance(cfg, st, logger.New(cfg), time.UTC)
	require.NoError(t, m.Prune(ctx))

	keys, err := st.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 1, "retention disabled keeps everything")
}
