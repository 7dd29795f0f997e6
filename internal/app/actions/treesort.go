package actions

import (
	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
)

// SortNode is one node of the forest a sort action receives.
type SortNode struct {
	ID       int
	Children []*SortNode
}

// SortedItem is the new tree position of one sorted model.
type SortedItem struct {
	ID       int
	ParentID int // 0 for roots
	Weight   int
	ChildIDs []int
}

// ParseSortForest decodes the tree value of a sort payload:
// [{"id": n, "children": [...]}, ...]. Plain ids are accepted as leaves.
func ParseSortForest(value any) ([]*SortNode, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, apperror.New(apperror.BadRequest, "The sort tree must be a list of nodes.")
	}
	forest := make([]*SortNode, 0, len(list))
	for _, raw := range list {
		node, err := parseSortNode(raw)
		if err != nil {
			return nil, err
		}
		forest = append(forest, node)
	}
	return forest, nil
}

func parseSortNode(raw any) (*SortNode, error) {
	if id := datastore.Int(raw); id != 0 {
		return &SortNode{ID: id}, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, apperror.New(apperror.BadRequest, "A sort node must be an id or an object with id and children.")
	}
	id := datastore.Int(obj["id"])
	if id == 0 {
		return nil, apperror.New(apperror.BadRequest, "A sort node is missing its id.")
	}
	node := &SortNode{ID: id}
	if children, ok := obj["children"].([]any); ok {
		for _, c := range children {
			child, err := parseSortNode(c)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	}
	return node, nil
}

// SortForest assigns pre-order weights 2, 4, 6, ... to the forest and
// derives parent and child links. The forest must name exactly the ids
// in expected, each once; the gaps between weights leave room for later
// single inserts without renumbering.
func SortForest(forest []*SortNode, expected map[int]bool) ([]SortedItem, error) {
	var items []SortedItem
	seen := map[int]bool{}
	weight := 0

	type frame struct {
		node     *SortNode
		parentID int
	}
	var stack []frame
	for i := len(forest) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: forest[i]})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		id := f.node.ID
		if seen[id] {
			return nil, apperror.New(apperror.BadRequest, "Duplicate id in sort tree: %d", id)
		}
		if !expected[id] {
			return nil, apperror.New(apperror.BadRequest, "Id in sort tree does not exist: %d", id)
		}
		seen[id] = true
		weight += 2

		item := SortedItem{ID: id, ParentID: f.parentID, Weight: weight}
		for _, child := range f.node.Children {
			item.ChildIDs = append(item.ChildIDs, child.ID)
		}
		items = append(items, item)

		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: f.node.Children[i], parentID: id})
		}
	}

	if len(seen) != len(expected) {
		return nil, apperror.New(apperror.BadRequest, "Did not receive %d ids, got %d", len(expected), len(seen))
	}
	return items, nil
}
