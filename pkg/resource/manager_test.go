package resource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap/report-engine/pkg/reporterr"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		base Key
		path string
		want Key
		err  bool
	}{
		{"", "data/budget.xlsx", "data/budget.xlsx", false},
		{"reports/sales.report", "logo.png", "reports/logo.png", false},
		{"reports/sales.report", "../shared/x.xlsx", "shared/x.xlsx", false},
		{"", "../etc/passwd", "", true},
		{"", "/etc/passwd", "", true},
		{"", "", "", true},
	}
	m := MapManager{}
	for _, tt := range tests {
		got, err := m.Resolve(tt.base, tt.path)
		if tt.err {
			assert.Error(t, err, tt.path)
			continue
		}
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got)
	}
}

func TestFileManagerLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "a.txt"), []byte("hello"), 0o644))

	m := NewFileManager(dir)
	data, err := m.Load(context.Background(), "data/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = m.Load(context.Background(), "data/missing.txt")
	assert.True(t, errors.Is(err, reporterr.ErrResource))

	_, err = m.Load(context.Background(), "../outside.txt")
	assert.True(t, errors.Is(err, reporterr.ErrResource))
}

func TestLoadHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := MapManager{"a": []byte("x")}.Load(ctx, "a")
	assert.True(t, errors.Is(err, reporterr.ErrInterrupted))
}
