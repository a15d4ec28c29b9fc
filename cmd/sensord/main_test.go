package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/CZERTAINLY/sensord/internal/model"
	"github.com/stretchr/testify/require"
)

func TestStoreConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sensord.yaml")
	require.False(t, exists(path))

	require.NoError(t, storeConfig(path, model.DefaultConfig()))
	require.True(t, exists(path))
	require.False(t, exists(filepath.Dir(path)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	cfg, err := model.LoadConfig(f)
	require.NoError(t, err)
	require.Equal(t, model.DefaultConfig(), cfg)
}
