package slots

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Stage is a coarse ordering band for slot items.
type Stage int

const (
	StageNormal Stage = iota
	StagePre
	StagePost
)

// Rank orders stages pre < normal < post.
func (s Stage) Rank() int {
	switch s {
	case StagePre:
		return 0
	case StagePost:
		return 2
	default:
		return 1
	}
}

func (s Stage) String() string {
	switch s {
	case StagePre:
		return "pre"
	case StagePost:
		return "post"
	default:
		return "normal"
	}
}

// ParseStage parses "pre", "normal", "post" or "".
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(s) {
	case "", "normal":
		return StageNormal, nil
	case "pre":
		return StagePre, nil
	case "post":
		return StagePost, nil
	default:
		return StageNormal, fmt.Errorf("unknown stage %q: must be pre, normal or post", s)
	}
}

// MarshalJSON writes the stage name.
func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON reads a stage name.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStage(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Provenance records which module produced an item.
type Provenance struct {
	Module  string   `json:"module"`
	Version string   `json:"version,omitempty"`
	Trace   []string `json:"trace,omitempty"`
}

// Item is one unit of content targeting a slot.
//
// Key is the dedupe identity. Seq is the registration sequence of the
// declaration that produced the item; it only breaks ties in the default
// ordering.
type Item struct {
	Kind    string         `json:"kind"`
	Data    any            `json:"data,omitempty"`
	Source  Provenance     `json:"source"`
	Stage   Stage          `json:"stage"`
	Order   int            `json:"order,omitempty"`
	Key     string         `json:"key,omitempty"`
	InputID string         `json:"inputId,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	Seq     int64          `json:"-"`
}

// Target addresses one slot of one host.
type Target struct {
	Host string `json:"host"`
	Slot string `json:"slot"`
}

// Contribution is an item pushed directly into a slot.
// Guard, when set, is evaluated at render time; false skips the item.
type Contribution struct {
	Target Target
	Item   Item
	Guard  func() bool
}

// Entry is one value stored on a host's IR channel.
type Entry struct {
	Origin string
	Value  any
	// Seq is the per-origin push sequence assigned by the declaring draft.
	Seq int64
	// RegSeq is the registration sequence of the declaration that pushed it.
	RegSeq int64
}

// RenderContext identifies the slot being rendered.
type RenderContext struct {
	Host string
	Slot string
}

// RenderFunc turns the final item list into text.
type RenderFunc func(rc RenderContext, items []Item) (string, error)

// DedupeFunc removes duplicate items. It receives items in gather order.
type DedupeFunc func(rc RenderContext, items []Item) ([]Item, error)

// MapFunc rewrites one item after sorting. Returning nil drops the item.
type MapFunc func(item Item) (*Item, error)

// Input reads a host IR channel and turns its values into items.
type Input struct {
	ID string
	// Channel defaults to ID.
	Channel string
	// Kind of items produced by the default mapper; "snippet" when empty.
	Kind string
	// Source is the provenance module; defaults to the host's first owner.
	Source string
	Where  func(value any) bool
	Map    func(value any, index int) ([]Item, error)
}

// ChannelName returns the channel the input reads.
func (in Input) ChannelName() string {
	if in.Channel != "" {
		return in.Channel
	}
	return in.ID
}

// Spec declares one slot.
type Spec struct {
	Name    string
	Accepts []string
	Inputs  []Input
	// KeyRequired lists kinds that must carry a key; nil means {"snippet"}.
	KeyRequired []string
	Dedupe      DedupeFunc
	Sort        func(a, b Item) int
	Map         MapFunc
	Render      RenderFunc
	// Preset names the preset this slot was built from, if any.
	Preset string
}

// Clone returns a copy whose slices can be extended independently.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	out := *s
	out.Accepts = append([]string(nil), s.Accepts...)
	out.Inputs = append([]Input(nil), s.Inputs...)
	out.KeyRequired = append([]string(nil), s.KeyRequired...)
	if s.KeyRequired == nil {
		out.KeyRequired = nil
	}
	return &out
}

// AcceptsKind reports whether the slot allows kind. An empty allow-list
// accepts every kind.
func (s *Spec) AcceptsKind(kind string) bool {
	if len(s.Accepts) == 0 {
		return true
	}
	for _, k := range s.Accepts {
		if k == kind {
			return true
		}
	}
	return false
}

func (s *Spec) keyRequired(kind string) bool {
	required := s.KeyRequired
	if required == nil {
		required = []string{KindSnippet}
	}
	for _, k := range required {
		if k == kind {
			return true
		}
	}
	return false
}
