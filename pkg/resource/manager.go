// Package resource resolves and loads the external files a report refers to,
// such as spreadsheets used as data sources.
package resource

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pingcap/report-engine/pkg/reporterr"
)

// Key identifies a resource. Keys are slash-separated and relative to the
// manager's root.
type Key string

// Manager loads resources by key.
type Manager interface {
	// Load returns the content of a resource.
	Load(ctx context.Context, key Key) ([]byte, error)
	// Resolve returns the key of p relative to base. An empty base resolves
	// against the root.
	Resolve(base Key, p string) (Key, error)
}

// FileManager serves resources from a directory tree.
type FileManager struct {
	root string
}

// NewFileManager creates a manager rooted at dir.
func NewFileManager(dir string) *FileManager {
	return &FileManager{root: dir}
}

func (m *FileManager) Resolve(base Key, p string) (Key, error) {
	return resolveKey(base, p)
}

func (m *FileManager) Load(ctx context.Context, key Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, reporterr.Interrupted("load "+string(key), err)
	}
	clean, err := resolveKey("", string(key))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(m.root, filepath.FromSlash(string(clean))))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, reporterr.Newf(reporterr.KindResource, "load "+string(key), "resource not found")
		}
		return nil, reporterr.New(reporterr.KindResource, "load "+string(key), err)
	}
	return data, nil
}

// MapManager serves resources from memory.
type MapManager map[Key][]byte

func (m MapManager) Resolve(base Key, p string) (Key, error) {
	return resolveKey(base, p)
}

func (m MapManager) Load(ctx context.Context, key Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, reporterr.Interrupted("load "+string(key), err)
	}
	data, ok := m[key]
	if !ok {
		return nil, reporterr.Newf(reporterr.KindResource, "load "+string(key), "resource not found")
	}
	return append([]byte(nil), data...), nil
}

func resolveKey(base Key, p string) (Key, error) {
	p = filepath.ToSlash(p)
	if strings.HasPrefix(p, "/") {
		return "", reporterr.Newf(reporterr.KindResource, "resolve "+p, "absolute paths are not allowed")
	}
	joined := path.Join(path.Dir(string(base)), p)
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", reporterr.Newf(reporterr.KindResource, "resolve "+p, "path escapes the resource root")
	}
	if joined == "." {
		return "", reporterr.Newf(reporterr.KindResource, "resolve", "empty resource path")
	}
	return Key(joined), nil
}
