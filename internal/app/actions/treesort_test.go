package actions

import (
	"testing"

	"github.com/plenumhq/plenum/internal/app/apperror"
)

func TestSortForestPreOrderWeights(t *testing.T) {
	forest := []*SortNode{
		{ID: 1, Children: []*SortNode{{ID: 2}, {ID: 3}}},
		{ID: 4},
	}
	items, err := SortForest(forest, map[int]bool{1: true, 2: true, 3: true, 4: true})
	if err != nil {
		t.Fatalf("sort: %v", err)
	}

	wantOrder := []int{1, 2, 3, 4}
	wantParent := []int{0, 1, 1, 0}
	for i, item := range items {
		if item.ID != wantOrder[i] {
			t.Errorf("item %d: id = %d, want %d", i, item.ID, wantOrder[i])
		}
		if item.ParentID != wantParent[i] {
			t.Errorf("item %d: parent = %d, want %d", i, item.ParentID, wantParent[i])
		}
		if item.Weight != (i+1)*2 {
			t.Errorf("item %d: weight = %d, want %d", i, item.Weight, (i+1)*2)
		}
	}
	if len(items[0].ChildIDs) != 2 || items[0].ChildIDs[0] != 2 || items[0].ChildIDs[1] != 3 {
		t.Errorf("children of root = %v", items[0].ChildIDs)
	}
}

func TestSortForestMissingIDs(t *testing.T) {
	forest := []*SortNode{{ID: 1}, {ID: 2}}
	_, err := SortForest(forest, map[int]bool{1: true, 2: true, 3: true})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if got := apperror.Message(err); got != "Did not receive 3 ids, got 2" {
		t.Errorf("message = %q", got)
	}
}

func TestSortForestDuplicateID(t *testing.T) {
	forest := []*SortNode{{ID: 1}, {ID: 1}}
	_, err := SortForest(forest, map[int]bool{1: true})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if got := apperror.Message(err); got != "Duplicate id in sort tree: 1" {
		t.Errorf("message = %q", got)
	}
}

func TestSortForestUnknownID(t *testing.T) {
	forest := []*SortNode{{ID: 9}}
	_, err := SortForest(forest, map[int]bool{1: true})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if got := apperror.Message(err); got != "Id in sort tree does not exist: 9" {
		t.Errorf("message = %q", got)
	}
}

func TestParseSortForestPlainIDs(t *testing.T) {
	forest, err := ParseSortForest([]any{float64(3), map[string]any{"id": float64(1), "children": []any{float64(2)}}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(forest) != 2 || forest[0].ID != 3 || forest[1].ID != 1 || forest[1].Children[0].ID != 2 {
		t.Errorf("forest = %+v", forest)
	}
}
