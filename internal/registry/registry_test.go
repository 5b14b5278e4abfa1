package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hostgen/internal/host"
	"github.com/roach88/hostgen/internal/slots"
)

func textDecl(t *testing.T, owner, path, content string) *host.Declaration {
	t.Helper()
	decl, err := host.Declare(owner).Path(path).Text(host.Literal(content)).End()
	require.NoError(t, err)
	return decl
}

func producer(out string) host.ProducerFunc {
	return func(context.Context, host.Env) (string, error) { return out, nil }
}

func TestRegister_SameSpecTwoOwnersMerges(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(textDecl(t, "mod-b", "src/a.ts", "x\n")))
	require.NoError(t, r.Register(textDecl(t, "mod-a", "src/a.ts", "x\n")))

	snap := r.Snapshot()
	require.Equal(t, 1, snap.Len())
	rec, ok := snap.Host("src/a.ts")
	require.True(t, ok)
	assert.Equal(t, []string{"mod-a", "mod-b"}, rec.Owners)
	assert.Equal(t, int64(1), rec.Seq, "record keeps its first registration sequence")
}

func TestRegister_ContentDifferentConflicts(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(textDecl(t, "mod-a", "src/a.ts", "x\n")))

	err := r.Register(textDecl(t, "mod-b", "src/a.ts", "y\n"))
	require.Error(t, err)
	assert.True(t, IsConflict(err, ErrCodeIncompatible), "got %v", err)
	assert.Contains(t, err.Error(), "registration conflict")

	rec, _ := r.Snapshot().Host("src/a.ts")
	assert.Equal(t, []string{"mod-a"}, rec.Owners, "refused registration does not mutate")
}

func TestRegister_ModeMismatchConflicts(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(textDecl(t, "mod-a", "logo.png", "x")))

	decl, err := host.Declare("mod-b").Path("logo.png").CopyFile("assets/logo.png").End()
	require.NoError(t, err)
	err = r.Register(decl)
	assert.True(t, IsConflict(err, ErrCodeIncompatible))
	assert.Contains(t, err.Error(), "mode copyFile")
}

func TestRegister_ProducerCompatibility(t *testing.T) {
	r := New()
	a, err := host.Declare("a").Path("gen.ts").Text(host.Producer("version", producer("1"))).End()
	require.NoError(t, err)
	b, err := host.Declare("b").Path("gen.ts").Text(host.Producer("version", producer("1"))).End()
	require.NoError(t, err)
	c, err := host.Declare("c").Path("gen.ts").Text(host.Producer("", producer("1"))).End()
	require.NoError(t, err)

	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b), "same producer key is compatible")
	assert.True(t, IsConflict(r.Register(c), ErrCodeIncompatible), "unkeyed producers never match")
}

func TestRegister_SlotShape(t *testing.T) {
	render := func(slots.RenderContext, []slots.Item) (string, error) { return "", nil }
	decl := func(owner string, accepts ...string) *host.Declaration {
		d, err := host.Declare(owner).Path("index.ts").
			Slots(host.Literal("// slot:body\n")).
			Slot("body").Accepts(accepts...).Render(render).Done().
			End()
		require.NoError(t, err)
		return d
	}

	r := New()
	require.NoError(t, r.Register(decl("a", "snippet", "import")))
	require.NoError(t, r.Register(decl("b", "import", "snippet")), "accepted kinds compare as a set")
	err := r.Register(decl("c", "snippet"))
	assert.True(t, IsConflict(err, ErrCodeIncompatible))
	assert.Contains(t, err.Error(), "accepted kinds")
}

func TestRegister_ReservedOwner(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(textDecl(t, "core:runtime", "src/app.ts", "x\n")))

	err := r.Register(textDecl(t, "plugin", "src/app.ts", "x\n"))
	require.Error(t, err)
	assert.True(t, IsConflict(err, ErrCodeReservedOwner))
	assert.Contains(t, err.Error(), "core:runtime")
	assert.Contains(t, err.Error(), "plugin")

	// and the other direction on a path bound to a different id
	r2 := New()
	d, err := host.Declare("plugin").Path("src/app.ts").ID("app").Text(host.Literal("x\n")).End()
	require.NoError(t, err)
	require.NoError(t, r2.Register(d))
	err = r2.Register(textDecl(t, "core:runtime", "src/app.ts", "x\n"))
	assert.True(t, IsConflict(err, ErrCodeReservedOwner))
}

func TestRegister_PathConflictsAndBenignRedeclare(t *testing.T) {
	r := New()
	first, err := host.Declare("a").Path("out.txt").ID("first").Text(host.Literal("x")).End()
	require.NoError(t, err)
	require.NoError(t, r.Register(first))

	again, err := host.Declare("a").Path("out.txt").ID("second").Text(host.Literal("x")).End()
	require.NoError(t, err)
	require.NoError(t, r.Register(again), "same owner, same shape is benign")
	assert.Equal(t, []string{"first"}, r.Snapshot().IDs())

	other, err := host.Declare("b").Path("out.txt").ID("third").Text(host.Literal("x")).End()
	require.NoError(t, err)
	assert.True(t, IsConflict(r.Register(other), ErrCodePathConflict))

	moved, err := host.Declare("a").Path("elsewhere.txt").ID("first").Text(host.Literal("x")).End()
	require.NoError(t, err)
	assert.True(t, IsConflict(r.Register(moved), ErrCodePathMismatch))
}

func TestRegister_PendingPushesResolve(t *testing.T) {
	r := New()
	producer, err := host.Declare("a").Path("routes.json").
		Text(host.Literal("{}\n")).Host().
		IR("routes", "/home", host.ToHost("router.ts")).
		IR("routes", "/about", host.ToHost("router.ts")).
		End()
	require.NoError(t, err)
	require.NoError(t, r.Register(producer))
	assert.Equal(t, []string{"router.ts"}, r.Pending())

	consumer := textDecl(t, "b", "router.ts", "x")
	require.NoError(t, r.Register(consumer))
	assert.Empty(t, r.Pending())

	snap := r.Snapshot()
	rec, ok := snap.Host("router.ts")
	require.True(t, ok)
	require.Len(t, rec.Channels["routes"], 2)
	assert.Equal(t, "/home", rec.Channels["routes"][0].Value)
	assert.Equal(t, "/about", rec.Channels["routes"][1].Value)
	assert.Equal(t, int64(1), rec.Channels["routes"][0].Seq)
	assert.Equal(t, int64(2), rec.Channels["routes"][1].Seq)

	assert.Equal(t, []Edge{{From: "routes.json", To: "router.ts"}}, snap.Graph.Edges)
	require.Len(t, snap.Graph.History, 1)
	assert.Equal(t, Resolution{Host: "router.ts", Seq: 2, Pushes: 2}, snap.Graph.History[0])

	src, _ := snap.Host("routes.json")
	assert.Equal(t, []string{"router.ts"}, src.Dependencies)
}

func TestRegister_SelfPushHasNoEdge(t *testing.T) {
	r := New()
	d, err := host.Declare("a").Path("a.ts").Text(host.Literal("x")).Host().IR("meta", 1).End()
	require.NoError(t, err)
	require.NoError(t, r.Register(d))

	snap := r.Snapshot()
	assert.Empty(t, snap.Graph.Edges)
	rec, _ := snap.Host("a.ts")
	assert.Len(t, rec.Channels["meta"], 1)
}

func TestSnapshot_IsIsolated(t *testing.T) {
	r := New()
	d, err := host.Declare("a").Path("a.ts").Text(host.Literal("x")).Host().IR("meta", 1).End()
	require.NoError(t, err)
	require.NoError(t, r.Register(d))

	snap := r.Snapshot()
	rec, _ := snap.Host("a.ts")
	rec.Owners[0] = "mutated"
	rec.Channels["meta"] = append(rec.Channels["meta"], slots.Entry{Value: 2})
	rec.Spec.Tags = append(rec.Spec.Tags, "x")

	fresh, _ := r.Snapshot().Host("a.ts")
	assert.Equal(t, []string{"a"}, fresh.Owners)
	assert.Len(t, fresh.Channels["meta"], 1)
	assert.Empty(t, fresh.Spec.Tags)

	require.NoError(t, r.Register(textDecl(t, "a", "b.ts", "y")))
	assert.Equal(t, 1, snap.Len(), "old snapshot does not observe later registrations")
}

func TestSnapshot_Lookup(t *testing.T) {
	r := New()
	d, err := host.Declare("a").Path("src/a.ts").ID("alpha").Text(host.Literal("x")).End()
	require.NoError(t, err)
	require.NoError(t, r.Register(d))
	snap := r.Snapshot()

	byID, ok := snap.Lookup("alpha")
	require.True(t, ok)
	byPath, ok := snap.Lookup("./src/a.ts")
	require.True(t, ok)
	assert.Equal(t, byID.ID, byPath.ID)
	_, ok = snap.Lookup("missing")
	assert.False(t, ok)
}

func TestUnregister(t *testing.T) {
	r := New()
	a, err := host.Declare("m").Path("a.ts").Text(host.Literal("a")).Host().
		IR("deps", "from-a", host.ToHost("b.ts")).
		IR("deps", "from-a", host.ToHost("later.ts")).
		End()
	require.NoError(t, err)
	c, err := host.Declare("m").Path("c.ts").Text(host.Literal("c")).Host().
		IR("deps", "from-c", host.ToHost("b.ts")).
		End()
	require.NoError(t, err)
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(textDecl(t, "m", "b.ts", "b")))
	require.NoError(t, r.Register(c))

	require.NoError(t, r.Unregister("a.ts"))
	snap := r.Snapshot()
	assert.Equal(t, []string{"b.ts", "c.ts"}, snap.IDs())
	b, _ := snap.Host("b.ts")
	require.Len(t, b.Channels["deps"], 1, "pushes from the removed host are retracted")
	assert.Equal(t, "from-c", b.Channels["deps"][0].Value)
	assert.Equal(t, []Edge{{From: "c.ts", To: "b.ts"}}, snap.Graph.Edges)
	assert.Empty(t, r.Pending(), "pending pushes it originated are dropped")

	// entries addressed to a removed host wait for it to come back
	require.NoError(t, r.Unregister("b.ts"))
	assert.Equal(t, []string{"b.ts"}, r.Pending())
	require.NoError(t, r.Register(textDecl(t, "m", "b.ts", "b")))
	b, _ = r.Snapshot().Host("b.ts")
	assert.Len(t, b.Channels["deps"], 1)

	assert.True(t, IsConflict(r.Unregister("nope"), ErrCodeUnknownHost))

	// the path is free again
	require.NoError(t, r.Register(textDecl(t, "other", "a.ts", "different")))
}

func TestClear(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(textDecl(t, "a", "a.ts", "x")))
	r.Clear()
	assert.Equal(t, 0, r.Snapshot().Len())

	require.NoError(t, r.Register(textDecl(t, "b", "a.ts", "y")))
	rec, _ := r.Snapshot().Host("a.ts")
	assert.Equal(t, int64(1), rec.Seq)
}

func TestRegister_ContributionsCarrySequence(t *testing.T) {
	r := New()
	render := func(slots.RenderContext, []slots.Item) (string, error) { return "", nil }
	build := func(owner string) *host.Declaration {
		d, err := host.Declare(owner).Path("index.ts").
			Slots(host.Literal("// slot:body\n")).
			Slot("body").Render(render).Done().
			Add("body", slots.Item{Kind: "snippet", Key: owner, Data: owner}).
			End()
		require.NoError(t, err)
		return d
	}
	require.NoError(t, r.Register(build("a")))
	require.NoError(t, r.Register(build("b")))

	rec, _ := r.Snapshot().Host("index.ts")
	require.Len(t, rec.Contributions, 2)
	assert.Equal(t, int64(1), rec.Contributions[0].Item.Seq)
	assert.Equal(t, int64(2), rec.Contributions[1].Item.Seq)

	req, ok := rec.SlotRequest("// slot:body\n")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, req.Owners)
	assert.Len(t, req.Contributions, 2)
}
