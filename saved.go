package tablegrid

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// KeyValueStore persists small JSON blobs under fixed keys.
type KeyValueStore interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// keyLocks serialises read-modify-write cycles per store key. Every session on a
// page builds its own library over the same key.
var keyLocks sync.Map

func lockKey(key string) func() {
	v, _ := keyLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// SavedSearch is a named filter a user can re-apply later.
type SavedSearch struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Criteria  FilterCriteria `json:"criteria"`
	CreatedAt time.Time      `json:"timestamp"`
}

// SearchLibrary keeps the saved searches of one page under "savedSearches:<page>".
type SearchLibrary struct {
	store KeyValueStore
	key   string
}

// NewSearchLibrary binds a library to a page name.
func NewSearchLibrary(store KeyValueStore, page string) *SearchLibrary {
	return &SearchLibrary{store: store, key: "savedSearches:" + page}
}

// List returns the saved searches in the order they were saved.
func (l *SearchLibrary) List() ([]SavedSearch, error) {
	data, ok, err := l.store.Get(l.key)
	if err != nil {
		return nil, fmt.Errorf("load saved searches: %w", err)
	}
	if !ok || len(data) == 0 {
		return []SavedSearch{}, nil
	}
	var out []SavedSearch
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode saved searches: %w", err)
	}
	return out, nil
}

func (l *SearchLibrary) write(list []SavedSearch) error {
	if len(list) == 0 {
		if err := l.store.Delete(l.key); err != nil {
			return fmt.Errorf("remove saved searches: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	if err := l.store.Put(l.key, data); err != nil {
		return fmt.Errorf("store saved searches: %w", err)
	}
	return nil
}

// Save stores criteria under name, replacing an earlier search with the same name.
func (l *SearchLibrary) Save(name string, c FilterCriteria) (SavedSearch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return SavedSearch{}, &ValidationError{Fields: map[string]string{"name": "required"}}
	}
	if err := c.Validate(); err != nil {
		return SavedSearch{}, err
	}
	unlock := lockKey(l.key)
	defer unlock()

	list, err := l.List()
	if err != nil {
		return SavedSearch{}, err
	}

	s := SavedSearch{ID: uuid.New().String(), Name: name, Criteria: c, CreatedAt: time.Now().UTC()}
	replaced := false
	for i := range list {
		if list[i].Name == name {
			list[i] = s
			replaced = true
		}
	}
	if !replaced {
		list = append(list, s)
	}
	return s, l.write(list)
}

// Load returns the search saved under name.
func (l *SearchLibrary) Load(name string) (SavedSearch, bool, error) {
	list, err := l.List()
	if err != nil {
		return SavedSearch{}, false, err
	}
	for _, s := range list {
		if s.Name == name {
			return s, true, nil
		}
	}
	return SavedSearch{}, false, nil
}

// Delete removes the search saved under name and reports whether it existed.
// Removing the last search removes the page key.
func (l *SearchLibrary) Delete(name string) (bool, error) {
	unlock := lockKey(l.key)
	defer unlock()

	list, err := l.List()
	if err != nil {
		return false, err
	}
	kept := list[:0]
	for _, s := range list {
		if s.Name != name {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(list) {
		return false, nil
	}
	return true, l.write(kept)
}

// ApplySaved applies a saved search's criteria to the grid.
func (g *Grid) ApplySaved(s SavedSearch) error {
	return g.ApplyStructuredFilter(s.Criteria)
}
