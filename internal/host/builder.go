package host

import (
	"fmt"
	"strings"

	"github.com/roach88/hostgen/internal/marker"
	"github.com/roach88/hostgen/internal/slots"
)

// Option configures a Draft.
type Option func(*Draft)

// WithScope restricts the paths a draft may declare to the given prefixes.
func WithScope(prefixes ...string) Option {
	return func(d *Draft) {
		for _, p := range prefixes {
			if n, err := NormalizePath(p); err == nil {
				d.scope = append(d.scope, n)
			} else if p == "" || p == "." {
				d.scope = append(d.scope, ".")
			}
		}
	}
}

// Draft is the mutable form of a host declaration.
// The zero value is not usable; call Declare.
type Draft struct {
	owner string
	scope []string
	err   error

	id             string
	path           string
	kind           string
	format         string
	observe        []string
	tags           []string
	externalWrites []string
	conflict       ConflictPolicy

	mode     Mode
	text     *TextPayload
	copyFile *CopyFilePayload
	copyDir  *CopyDirPayload
	slots    *SlotsPayload

	contributions []slots.Contribution
	pushes        []Push
	pushSeq       int64
}

// Declare starts a host declaration owned by owner.
func Declare(owner string, opts ...Option) *Draft {
	d := &Draft{owner: owner}
	for _, opt := range opts {
		opt(d)
	}
	if strings.TrimSpace(owner) == "" {
		d.fail(ErrCodeEmptyOwner, "owner must not be empty")
	}
	return d
}

// Err returns the first recorded misuse, if any.
func (d *Draft) Err() error {
	return d.err
}

// Mode returns the selected mode.
func (d *Draft) Mode() Mode {
	return d.mode
}

func (d *Draft) fail(code DeclarationCode, format string, args ...any) {
	if d.err != nil {
		return
	}
	d.err = &DeclarationError{Code: code, Owner: d.owner, Path: d.path, Message: fmt.Sprintf(format, args...)}
}

// Path sets the output path. Paths outside the draft's scope fail immediately.
func (d *Draft) Path(p string) *Draft {
	if d.err != nil {
		return d
	}
	n, err := NormalizePath(p)
	if err != nil {
		d.fail(ErrCodeInvalidPath, "%v", err)
		return d
	}
	if !InScope(n, d.scope) {
		d.path = n
		d.fail(ErrCodePathOutOfScope, "path is outside the allowed scope %v", d.scope)
		return d
	}
	d.path = n
	return d
}

// ID overrides the host id, which otherwise is the normalized path.
func (d *Draft) ID(id string) *Draft {
	if d.err == nil {
		d.id = id
	}
	return d
}

// Kind sets the content-type tag.
func (d *Draft) Kind(kind string) *Draft {
	if d.err == nil {
		d.kind = kind
	}
	return d
}

// Format names the formatter applied after rendering.
func (d *Draft) Format(name string) *Draft {
	if d.err == nil {
		d.format = name
	}
	return d
}

// Observe adds watch ids.
func (d *Draft) Observe(ids ...string) *Draft {
	if d.err == nil {
		d.observe = append(d.observe, ids...)
	}
	return d
}

// Tags adds free-form tags.
func (d *Draft) Tags(tags ...string) *Draft {
	if d.err == nil {
		d.tags = append(d.tags, tags...)
	}
	return d
}

// Conflict sets the policy for pre-existing unmanaged files.
func (d *Draft) Conflict(p ConflictPolicy) *Draft {
	if d.err == nil {
		d.conflict = p
	}
	return d
}

// ExternalWrites declares output paths written by external tools.
func (d *Draft) ExternalWrites(paths ...string) *Draft {
	if d.err != nil {
		return d
	}
	for _, p := range paths {
		n, err := NormalizePath(p)
		if err != nil {
			d.fail(ErrCodeInvalidPath, "external write: %v", err)
			return d
		}
		d.externalWrites = append(d.externalWrites, n)
	}
	return d
}

// selectMode locks the mode on first use. Re-selecting the same mode is
// allowed; selecting a different one fails.
func (d *Draft) selectMode(m Mode) bool {
	if d.err != nil {
		return false
	}
	if d.mode != ModeUnset && d.mode != m {
		d.fail(ErrCodeModeAlreadySet, "mode already set to %s, cannot select %s", d.mode, m)
		return false
	}
	d.mode = m
	return true
}

// PushOption configures an IR push.
type PushOption func(*Push)

// ToHost addresses a push to another host id.
func ToHost(id string) PushOption {
	return func(p *Push) { p.Target = id }
}

// IR pushes value onto channel of the target host (the host itself by default).
func (d *Draft) IR(channel string, value any, opts ...PushOption) *Draft {
	if d.err != nil {
		return d
	}
	if strings.TrimSpace(channel) == "" {
		d.fail(ErrCodeEmptyChannel, "IR channel must not be empty")
		return d
	}
	d.pushSeq++
	p := Push{Channel: channel, Value: value, Seq: d.pushSeq}
	for _, opt := range opts {
		opt(&p)
	}
	d.pushes = append(d.pushes, p)
	return d
}

// TextBuilder configures a text-mode host.
type TextBuilder struct {
	d *Draft
	p *TextPayload
}

// Text selects text mode with the given content.
func (d *Draft) Text(c Content) *TextBuilder {
	if !d.selectMode(ModeText) {
		return &TextBuilder{d: d, p: &TextPayload{}}
	}
	if d.text == nil {
		d.text = &TextPayload{Encoding: EncodingUTF8, EOL: EOLLF}
	}
	if !c.IsZero() {
		d.text.Content = c
	}
	return &TextBuilder{d: d, p: d.text}
}

// EOL sets the output line ending.
func (b *TextBuilder) EOL(e EOL) *TextBuilder {
	b.p.EOL = e
	return b
}

// Encoding sets the output encoding.
func (b *TextBuilder) Encoding(e Encoding) *TextBuilder {
	b.p.Encoding = e
	return b
}

// Host returns to the parent draft.
func (b *TextBuilder) Host() *Draft { return b.d }

// End finalizes the parent draft.
func (b *TextBuilder) End() (*Declaration, error) { return b.d.End() }

// CopyFileBuilder configures a copyFile-mode host.
type CopyFileBuilder struct {
	d *Draft
	p *CopyFilePayload
}

// CopyFile selects copyFile mode.
func (d *Draft) CopyFile(source string) *CopyFileBuilder {
	if !d.selectMode(ModeCopyFile) {
		return &CopyFileBuilder{d: d, p: &CopyFilePayload{}}
	}
	if d.copyFile == nil {
		d.copyFile = &CopyFilePayload{}
	}
	if source != "" {
		d.copyFile.Source = source
	}
	return &CopyFileBuilder{d: d, p: d.copyFile}
}

// Transform sets a byte transform applied to the copied file.
func (b *CopyFileBuilder) Transform(fn func([]byte) ([]byte, error)) *CopyFileBuilder {
	b.p.Transform = fn
	return b
}

// Host returns to the parent draft.
func (b *CopyFileBuilder) Host() *Draft { return b.d }

// End finalizes the parent draft.
func (b *CopyFileBuilder) End() (*Declaration, error) { return b.d.End() }

// CopyDirBuilder configures a copyDir-mode host.
type CopyDirBuilder struct {
	d *Draft
	p *CopyDirPayload
}

// CopyDir selects copyDir mode.
func (d *Draft) CopyDir(source string) *CopyDirBuilder {
	if !d.selectMode(ModeCopyDir) {
		return &CopyDirBuilder{d: d, p: &CopyDirPayload{}}
	}
	if d.copyDir == nil {
		d.copyDir = &CopyDirPayload{}
	}
	if source != "" {
		d.copyDir.Source = source
	}
	return &CopyDirBuilder{d: d, p: d.copyDir}
}

// Filter adds include globs (doublestar syntax, relative to the source dir).
func (b *CopyDirBuilder) Filter(globs ...string) *CopyDirBuilder {
	b.p.Filter = append(b.p.Filter, globs...)
	return b
}

// Ignore adds exclude globs.
func (b *CopyDirBuilder) Ignore(globs ...string) *CopyDirBuilder {
	b.p.Ignore = append(b.p.Ignore, globs...)
	return b
}

// Remap sets the relative path remapper.
func (b *CopyDirBuilder) Remap(fn func(rel string) (string, bool)) *CopyDirBuilder {
	b.p.Remap = fn
	return b
}

// Host returns to the parent draft.
func (b *CopyDirBuilder) Host() *Draft { return b.d }

// End finalizes the parent draft.
func (b *CopyDirBuilder) End() (*Declaration, error) { return b.d.End() }

// SlotsBuilder configures a slots-mode host.
type SlotsBuilder struct {
	d        *Draft
	p        *SlotsPayload
	detached bool
}

// Slots selects slots mode with the given template.
func (d *Draft) Slots(template Content) *SlotsBuilder {
	if !d.selectMode(ModeSlots) {
		return &SlotsBuilder{d: d, p: &SlotsPayload{Slots: map[string]*slots.Spec{}}, detached: true}
	}
	if d.slots == nil {
		d.slots = &SlotsPayload{Slots: map[string]*slots.Spec{}}
	}
	if !template.IsZero() {
		d.slots.Template = template
	}
	return &SlotsBuilder{d: d, p: d.slots}
}

func (b *SlotsBuilder) slot(name string) *slots.Spec {
	if name == "" {
		b.d.fail(ErrCodeEmptySlotName, "slot name must not be empty")
		return &slots.Spec{}
	}
	s, ok := b.p.Slots[name]
	if !ok {
		s = &slots.Spec{Name: name}
		b.p.Slots[name] = s
	}
	return s
}

// Slot returns a builder for the named slot. Calling Slot again with the
// same name extends the existing declaration.
func (b *SlotsBuilder) Slot(name string) *SlotBuilder {
	return &SlotBuilder{parent: b, s: b.slot(name)}
}

// ReplaceSlot installs spec wholesale, discarding any previous declaration
// of the same name.
func (b *SlotsBuilder) ReplaceSlot(spec slots.Spec) *SlotsBuilder {
	if spec.Name == "" {
		b.d.fail(ErrCodeEmptySlotName, "slot name must not be empty")
		return b
	}
	b.p.Slots[spec.Name] = spec.Clone()
	return b
}

// UsePreset declares (or extends) a slot from a preset.
func (b *SlotsBuilder) UsePreset(name string, p slots.Preset) *SlotsBuilder {
	p.Apply(b.slot(name))
	return b
}

// ContributionOption configures a direct contribution.
type ContributionOption func(*slots.Contribution)

// WithGuard attaches a render-time guard to a contribution.
func WithGuard(fn func() bool) ContributionOption {
	return func(c *slots.Contribution) { c.Guard = fn }
}

// Add contributes an item directly to a slot of this host.
func (b *SlotsBuilder) Add(slot string, item slots.Item, opts ...ContributionOption) *SlotsBuilder {
	if b.d.err != nil || b.detached {
		return b
	}
	if slot == "" {
		b.d.fail(ErrCodeEmptySlotName, "contribution slot must not be empty")
		return b
	}
	item.Meta = cloneMeta(item.Meta)
	c := slots.Contribution{Target: slots.Target{Slot: slot}, Item: item}
	for _, opt := range opts {
		opt(&c)
	}
	b.d.contributions = append(b.d.contributions, c)
	return b
}

// DetectSlots creates a default snippet slot for every marker name in the
// template that has no explicit declaration.
func (b *SlotsBuilder) DetectSlots() *SlotsBuilder {
	b.p.DetectSlots = true
	return b
}

// IgnoreMissingMarkers lets slots without a template marker render silently.
func (b *SlotsBuilder) IgnoreMissingMarkers() *SlotsBuilder {
	b.p.Markers = slots.MarkerIgnoreMissing
	return b
}

// Host returns to the parent draft.
func (b *SlotsBuilder) Host() *Draft { return b.d }

// End finalizes the parent draft.
func (b *SlotsBuilder) End() (*Declaration, error) { return b.d.End() }

// SlotBuilder configures one slot.
type SlotBuilder struct {
	parent *SlotsBuilder
	s      *slots.Spec
}

// Accepts extends the accepted kinds.
func (b *SlotBuilder) Accepts(kinds ...string) *SlotBuilder {
	b.s.Accepts = append(b.s.Accepts, kinds...)
	return b
}

// Input adds a channel input.
func (b *SlotBuilder) Input(in slots.Input) *SlotBuilder {
	b.s.Inputs = append(b.s.Inputs, in)
	return b
}

// Preset applies preset defaults to the fields still unset.
func (b *SlotBuilder) Preset(p slots.Preset) *SlotBuilder {
	p.Apply(b.s)
	return b
}

// KeyRequired sets the kinds that must carry a dedupe key.
func (b *SlotBuilder) KeyRequired(kinds ...string) *SlotBuilder {
	b.s.KeyRequired = append([]string{}, kinds...)
	return b
}

// Dedupe overrides the dedupe policy.
func (b *SlotBuilder) Dedupe(fn slots.DedupeFunc) *SlotBuilder {
	b.s.Dedupe = fn
	return b
}

// Sort overrides the item order.
func (b *SlotBuilder) Sort(fn func(a, c slots.Item) int) *SlotBuilder {
	b.s.Sort = fn
	return b
}

// Map sets the post-sort item map.
func (b *SlotBuilder) Map(fn slots.MapFunc) *SlotBuilder {
	b.s.Map = fn
	return b
}

// Render sets the render function.
func (b *SlotBuilder) Render(fn slots.RenderFunc) *SlotBuilder {
	b.s.Render = fn
	return b
}

// Done returns to the slots builder.
func (b *SlotBuilder) Done() *SlotsBuilder { return b.parent }

// End validates the draft and returns the finalized declaration.
func (d *Draft) End() (*Declaration, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.path == "" {
		d.fail(ErrCodeEmptyPath, "path is required")
		return nil, d.err
	}

	var payload Payload
	switch d.mode {
	case ModeUnset:
		d.fail(ErrCodeModeNotSet, "no mode selected (text, copyFile, copyDir or slots)")
	case ModeText:
		if d.text.Content.IsZero() {
			d.fail(ErrCodeMissingContent, "text mode requires content")
		}
		payload = d.text
	case ModeCopyFile:
		if strings.TrimSpace(d.copyFile.Source) == "" {
			d.fail(ErrCodeMissingSource, "copyFile mode requires a source file")
		}
		payload = d.copyFile
	case ModeCopyDir:
		if strings.TrimSpace(d.copyDir.Source) == "" {
			d.fail(ErrCodeMissingSource, "copyDir mode requires a source directory")
		}
		payload = d.copyDir
	case ModeSlots:
		d.finalizeSlots()
		payload = d.slots
	}
	if d.err != nil {
		return nil, d.err
	}

	id := d.id
	if id == "" {
		id = d.path
	}
	spec := (&Spec{
		ID:             id,
		Path:           d.path,
		Kind:           d.kind,
		Format:         d.format,
		Observe:        d.observe,
		Tags:           d.tags,
		ExternalWrites: d.externalWrites,
		Conflict:       d.conflict,
		Payload:        payload,
	}).Clone()

	decl := &Declaration{Owner: d.owner, Spec: spec}
	for _, c := range d.contributions {
		c.Target.Host = id
		decl.Contributions = append(decl.Contributions, c)
	}
	for _, p := range d.pushes {
		p.Origin = id
		if p.Target == "" {
			p.Target = id
		}
		decl.Pushes = append(decl.Pushes, p)
	}
	return decl, nil
}

func (d *Draft) finalizeSlots() {
	p := d.slots
	if p.Template.IsZero() {
		d.fail(ErrCodeMissingTemplate, "slots mode requires a template")
		return
	}
	if p.DetectSlots && p.Template.IsLiteral() {
		for _, name := range marker.Names(p.Template.Text()) {
			if _, ok := p.Slots[name]; !ok {
				p.Slots[name] = DefaultSlot(name)
			}
		}
	}
	// Producer templates defer detection to render time.
	deferred := p.DetectSlots && !p.Template.IsLiteral()
	if len(p.Slots) == 0 && !deferred {
		d.fail(ErrCodeNoSlots, "slots mode requires at least one slot")
		return
	}
	for _, name := range p.SlotNames() {
		if p.Slots[name].Render == nil {
			d.fail(ErrCodeMissingRender, "slot %q has no render function", name)
			return
		}
	}
}
