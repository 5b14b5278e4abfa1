package slots

import (
	"slices"
	"strings"
)

// dedupeFirstByKey keeps the first item seen for every non-empty key and
// drops later duplicates. Items of key-required kinds without a key fail.
func (s *Spec) dedupeFirstByKey(rc RenderContext, items []Item) ([]Item, error) {
	seen := make(map[string]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Key == "" {
			if s.keyRequired(it.Kind) {
				return nil, violation(ErrCodeMissingKey, rc, it.Kind,
					"item of kind %q requires a key (source=%s)", it.Kind, it.Source.Module)
			}
			out = append(out, it)
			continue
		}
		if seen[it.Key] {
			continue
		}
		seen[it.Key] = true
		out = append(out, it)
	}
	return out, nil
}

// CompareItems is the default total order: stage rank, numeric order, kind,
// key (absent last), source module, then registration sequence.
func CompareItems(a, b Item) int {
	if c := a.Stage.Rank() - b.Stage.Rank(); c != 0 {
		return c
	}
	if a.Order != b.Order {
		if a.Order < b.Order {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	switch {
	case a.Key == "" && b.Key != "":
		return 1
	case a.Key != "" && b.Key == "":
		return -1
	}
	if c := strings.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	if c := strings.Compare(a.Source.Module, b.Source.Module); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	return 0
}

func sortItems(items []Item) {
	slices.SortStableFunc(items, CompareItems)
}
