package agenda

import (
	"sort"
	"strconv"
	"strings"
)

// NumberingItem is the slice of an agenda item the numbering needs.
type NumberingItem struct {
	ID       int
	ParentID int
	Weight   int
	Hidden   bool
	Internal bool
}

// NumberingConfig mirrors the meeting settings the numbering depends on.
type NumberingConfig struct {
	NumeralSystem string // "arabic" or "roman"
	Prefix        string
	ShowInternal  bool
}

// Numbers assigns item numbers to the agenda tree. Visible items are
// numbered among their siblings in weight order, children with a dotted
// extension of their parent's number. Hidden items, internal items when
// ShowInternal is off, and their whole subtrees get an empty number but
// are still visited so every id appears in the result.
func Numbers(items []NumberingItem, cfg NumberingConfig) map[int]string {
	children := map[int][]NumberingItem{}
	for _, item := range items {
		children[item.ParentID] = append(children[item.ParentID], item)
	}
	for _, siblings := range children {
		sort.Slice(siblings, func(i, j int) bool {
			if siblings[i].Weight != siblings[j].Weight {
				return siblings[i].Weight < siblings[j].Weight
			}
			return siblings[i].ID < siblings[j].ID
		})
	}

	result := make(map[int]string, len(items))

	var walk func(parentID int, path string, depth int, blanked bool)
	walk = func(parentID int, path string, depth int, blanked bool) {
		counter := 0
		for _, item := range children[parentID] {
			visible := !blanked && !item.Hidden && (!item.Internal || cfg.ShowInternal)
			if !visible {
				result[item.ID] = ""
				walk(item.ID, "", depth+1, true)
				continue
			}
			counter++
			number := strconv.Itoa(counter)
			if depth == 0 && cfg.NumeralSystem == "roman" {
				number = roman(counter)
			}
			if path != "" {
				number = path + "." + number
			}
			label := number
			if cfg.Prefix != "" {
				label = cfg.Prefix + " " + number
			}
			result[item.ID] = label
			walk(item.ID, number, depth+1, false)
		}
	}
	walk(0, "", 0, false)
	return result
}

var romanDigits = []struct {
	value int
	sign  string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

func roman(n int) string {
	if n <= 0 {
		return strconv.Itoa(n)
	}
	var b strings.Builder
	for _, d := range romanDigits {
		for n >= d.value {
			b.WriteString(d.sign)
			n -= d.value
		}
	}
	return b.String()
}
