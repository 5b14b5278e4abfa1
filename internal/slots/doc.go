// Package slots implements deterministic multi-source content composition.
//
// A slots-mode host owns a template containing marker comments and a set of
// named slots. Each slot gathers items from direct contributions and from
// inputs that read the host's IR channels, then:
//
//  1. checks every item kind against the slot's accepted kinds
//  2. deduplicates by key (first seen wins, key-required kinds must carry one)
//  3. sorts by stage, order, kind, key, source module, registration sequence
//  4. applies the optional per-item map (nil drops the item)
//  5. re-checks accepted kinds
//  6. renders the item list to text
//
// The rendered text of every slot is re-indented and substituted for the one
// marker carrying the slot's name. Given the same set of contributions and
// inputs the output is byte-identical regardless of arrival order.
package slots
