package metastore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/danthegoodman1/pqframe/part"
	"github.com/danthegoodman1/pqframe/utils"
)

// ErrDuplicateFragment is an insert of a fragment id that is already known.
var ErrDuplicateFragment = utils.PermError("duplicate fragment")

type (
	// MemoryMetaStore keeps fragments in process. It is used when no
	// catalog database is configured.
	MemoryMetaStore struct {
		mu        sync.RWMutex
		fragments map[string]map[string]part.Fragment
	}
)

func NewMemoryMetaStore() *MemoryMetaStore {
	return &MemoryMetaStore{fragments: make(map[string]map[string]part.Fragment)}
}

func (m *MemoryMetaStore) InsertFragments(_ context.Context, frags []part.Fragment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range frags {
		if _, exists := m.fragments[f.Dataset][f.ID]; exists {
			return fmt.Errorf("fragment %s: %w", f.ID, ErrDuplicateFragment)
		}
	}
	for _, f := range frags {
		ds, ok := m.fragments[f.Dataset]
		if !ok {
			ds = make(map[string]part.Fragment)
			m.fragments[f.Dataset] = ds
		}
		ds[f.ID] = f
	}
	return nil
}

func (m *MemoryMetaStore) ListFragments(_ context.Context, dataset string) ([]part.Fragment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []part.Fragment
	for _, f := range m.fragments[dataset] {
		if f.Alive {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Partition != out[j].Partition {
			return out[i].Partition < out[j].Partition
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryMetaStore) SetAlive(_ context.Context, dataset string, ids []string, alive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if f, ok := m.fragments[dataset][id]; ok {
			f.Alive = alive
			m.fragments[dataset][id] = f
		}
	}
	return nil
}

func (m *MemoryMetaStore) Shutdown(context.Context) error {
	return nil
}
