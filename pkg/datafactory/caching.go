package datafactory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/pingcap/report-engine/pkg/table"
)

// CachingDataFactory keeps the results of its parent in an LRU cache keyed by
// query and parameter values. Callers get copies, so cached tables are never
// shared.
type CachingDataFactory struct {
	parent DataFactory
	size   int
	cache  *lru.Cache
}

// NewCachingDataFactory wraps parent with a cache of size entries.
func NewCachingDataFactory(parent DataFactory, size int) (*CachingDataFactory, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}
	return &CachingDataFactory{parent: parent, size: size, cache: cache}, nil
}

// Parent returns the wrapped factory.
func (f *CachingDataFactory) Parent() DataFactory { return f.parent }

// Len returns the number of cached results.
func (f *CachingDataFactory) Len() int { return f.cache.Len() }

func (f *CachingDataFactory) Initialize(ctx context.Context, dfc DataFactoryContext) error {
	return f.parent.Initialize(ctx, dfc)
}

func (f *CachingDataFactory) QueryNames() []string { return f.parent.QueryNames() }

func (f *CachingDataFactory) IsQueryExecutable(query string, params table.DataRow) bool {
	return f.parent.IsQueryExecutable(query, params)
}

func (f *CachingDataFactory) QueryData(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error) {
	key := f.cacheKey(query, params)
	if v, ok := f.cache.Get(key); ok {
		return v.(*table.TableModel).Copy(), nil
	}
	tm, err := f.parent.QueryData(ctx, query, params)
	if err != nil {
		return nil, err
	}
	f.cache.Add(key, tm.Copy())
	return tm, nil
}

// Derive returns a wrapper with an empty cache around a derived parent.
func (f *CachingDataFactory) Derive() DataFactory {
	d, err := NewCachingDataFactory(f.parent.Derive(), f.size)
	if err != nil {
		// size was accepted once already
		panic(err)
	}
	return d
}

func (f *CachingDataFactory) Close() error {
	f.cache.Purge()
	return f.parent.Close()
}

func (f *CachingDataFactory) cacheKey(query string, params table.DataRow) string {
	var names []string
	if ref, ok := f.parent.(FieldReferencer); ok {
		names = ref.ReferencedFields(query, params)
	} else if params != nil {
		names = params.Names()
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(query)
	for _, name := range names {
		var v any
		if params != nil {
			v, _ = params.Get(name)
		}
		fmt.Fprintf(&sb, "\x00%s=%#v", name, v)
	}
	return sb.String()
}
