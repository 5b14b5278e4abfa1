// Package host declares generation targets.
//
// A host is a uniquely pathed output artifact with exactly one content mode:
// text, copyFile, copyDir or slots. Hosts are described with a Draft:
//
//	decl, err := host.Declare("app").
//		Path("src/generated/routes.ts").
//		Slots(host.Literal(tpl)).
//		UsePreset("imports", slots.Imports()).
//		Add("imports", slots.Item{Kind: slots.KindImport, Data: slots.ImportSpec{From: "vue", Named: []string{"ref"}}}).
//		DetectSlots().
//		Host().
//		End()
//
// Draft methods record the first misuse (mode re-selection, a path outside
// the builder's scope) at the call that caused it; every later call is a
// no-op and End returns that error. End validates mode-specific required
// fields and produces an immutable Declaration ready for registration.
package host
