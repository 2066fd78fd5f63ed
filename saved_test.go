package tablegrid

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gnemet/tablegrid/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type failingStore struct{}

func (failingStore) Get(string) ([]byte, bool, error) { return nil, false, errors.New("disk gone") }
func (failingStore) Put(string, []byte) error          { return errors.New("disk gone") }
func (failingStore) Delete(string) error                { return errors.New("disk gone") }

// slowStore delays reads the way a database round trip does.
type slowStore struct {
	*storage.MemoryStore
}

func (s slowStore) Get(key string) ([]byte, bool, error) {
	time.Sleep(5 * time.Millisecond)
	return s.MemoryStore.Get(key)
}

func TestSearchLibrary(t *testing.T) {
	store := storage.NewMemoryStore()
	lib := NewSearchLibrary(store, "customer_order_class")

	list, err := lib.List()
	if err != nil || len(list) != 0 {
		t.Fatalf("Expected empty library, got %v (%v)", list, err)
	}

	active := FilterCriteria{Predicates: []Predicate{{Field: "isActive", Operator: OpEquals, Value: true}}}
	saved, err := lib.Save("  Active ", active)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.Name != "Active" || saved.ID == "" || saved.CreatedAt.IsZero() {
		t.Errorf("Unexpected saved search %+v", saved)
	}
	if _, err := lib.Save("Exports", FilterCriteria{Text: "export"}); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := store.Get("savedSearches:customer_order_class"); !ok {
		t.Error("Expected searches under savedSearches:customer_order_class")
	}

	got, ok, err := lib.Load("Active")
	if err != nil || !ok {
		t.Fatalf("Load failed: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(saved, got, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Errorf("Unexpected loaded search (-want +got):\n%s", diff)
	}

	// same name replaces in place
	if _, err := lib.Save("Active", FilterCriteria{Text: "counter"}); err != nil {
		t.Fatal(err)
	}
	list, _ = lib.List()
	names := []string{}
	for _, s := range list {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"Active", "Exports"}, names); diff != "" {
		t.Errorf("Unexpected names (-want +got):\n%s", diff)
	}
	if list[0].Criteria.Text != "counter" {
		t.Errorf("Expected replaced criteria, got %+v", list[0].Criteria)
	}

	deleted, err := lib.Delete("Exports")
	if err != nil || !deleted {
		t.Errorf("Expected delete, got %v %v", deleted, err)
	}
	deleted, err = lib.Delete("Exports")
	if err != nil || deleted {
		t.Errorf("Expected second delete to miss, got %v %v", deleted, err)
	}
	if _, ok, _ := lib.Load("Exports"); ok {
		t.Error("Deleted search still loadable")
	}
}

func TestSearchLibraryIsPerPage(t *testing.T) {
	store := storage.NewMemoryStore()
	a := NewSearchLibrary(store, "parties")
	b := NewSearchLibrary(store, "release_notes")
	if _, err := a.Save("mine", FilterCriteria{Text: "x"}); err != nil {
		t.Fatal(err)
	}
	list, _ := b.List()
	if len(list) != 0 {
		t.Errorf("Expected pages to be isolated, got %v", list)
	}
}

func TestSearchLibraryRejects(t *testing.T) {
	lib := NewSearchLibrary(storage.NewMemoryStore(), "p")
	if _, err := lib.Save(" ", FilterCriteria{}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for blank name, got %v", err)
	}
	bad := FilterCriteria{Predicates: []Predicate{{Field: "a", Operator: "like"}}}
	if _, err := lib.Save("bad", bad); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for bad criteria, got %v", err)
	}

	broken := NewSearchLibrary(failingStore{}, "p")
	if _, err := broken.List(); err == nil {
		t.Error("Expected store error")
	}
	if _, err := broken.Save("x", FilterCriteria{}); err == nil {
		t.Error("Expected store error")
	}
}

func TestApplySaved(t *testing.T) {
	g := newOrderGrid(t)
	lib := NewSearchLibrary(storage.NewMemoryStore(), "customer_order_class")
	if _, err := lib.Save("Inactive", FilterCriteria{Predicates: []Predicate{{Field: "isActive", Operator: OpEquals, Value: false}}}); err != nil {
		t.Fatal(err)
	}
	s, _, err := lib.Load("Inactive")
	if err != nil {
		t.Fatal(err)
	}
	if err := g.ApplySaved(s); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{3}, g.ViewIDs()); diff != "" {
		t.Errorf("Unexpected view (-want +got):\n%s", diff)
	}
}

func TestSearchLibraryConcurrentSaves(t *testing.T) {
	store := slowStore{storage.NewMemoryStore()}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lib := NewSearchLibrary(store, "concurrent")
			if _, err := lib.Save(fmt.Sprintf("search %d", i), FilterCriteria{Text: "x"}); err != nil {
				t.Errorf("Save failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	list, err := NewSearchLibrary(store, "concurrent").List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 10 {
		t.Errorf("Expected 10 saved searches, got %d", len(list))
	}
}

func TestSearchLibraryDeleteLastRemovesKey(t *testing.T) {
	store := storage.NewMemoryStore()
	lib := NewSearchLibrary(store, "parties")
	if _, err := lib.Save("only", FilterCriteria{Text: "x"}); err != nil {
		t.Fatal(err)
	}
	if deleted, err := lib.Delete("only"); err != nil || !deleted {
		t.Fatalf("Expected delete, got %v %v", deleted, err)
	}
	keys, err := store.Keys("savedSearches:")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected no saved-search keys, got %v", keys)
	}
	list, err := lib.List()
	if err != nil || len(list) != 0 {
		t.Errorf("Expected empty library, got %v (%v)", list, err)
	}
}
