package memory

import (
	"fmt"

	"github.com/carrydesk/carry-desk/internal/persistence"
)

const snapshotKey = "snapshot"

// fileStore mirrors a repository's state into a JSON table after every
// mutation. The zero value keeps state in memory only.
type fileStore struct {
	table *persistence.JSONTable
}

func (f fileStore) enabled() bool { return f.table != nil }

func (f fileStore) load(v any) error {
	if !f.enabled() {
		return nil
	}
	_, err := f.table.Latest(snapshotKey, v)
	return err
}

func (f fileStore) save(v any) error {
	if !f.enabled() {
		return nil
	}
	if err := f.table.Put(snapshotKey, v); err != nil {
		return fmt.Errorf("persist %s: %w", f.table.Path(), err)
	}
	return nil
}
