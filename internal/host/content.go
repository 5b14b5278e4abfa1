package host

import (
	"context"
	"fmt"

	"github.com/roach88/hostgen/internal/ir"
)

// Env is passed to content producers at render time.
type Env struct {
	HostID string
	Path   string
	// Reasons lists the watch reasons that made the host dirty, if any.
	Reasons []string
}

// ProducerFunc computes content at render time.
type ProducerFunc func(ctx context.Context, env Env) (string, error)

// Content is either a literal string or a keyed producer function.
// Producers compare equal only when both carry the same non-empty key.
type Content struct {
	literal   string
	isLiteral bool
	key       string
	fn        ProducerFunc
}

// Literal returns fixed content.
func Literal(s string) Content {
	return Content{literal: s, isLiteral: true}
}

// Producer returns content computed by fn. The key identifies the producer
// for cross-owner compatibility checks.
func Producer(key string, fn ProducerFunc) Content {
	return Content{key: key, fn: fn}
}

// IsZero reports whether no content was supplied.
func (c Content) IsZero() bool {
	return !c.isLiteral && c.fn == nil
}

// IsLiteral reports whether c is fixed text.
func (c Content) IsLiteral() bool {
	return c.isLiteral
}

// Text returns the literal text; empty for producers.
func (c Content) Text() string {
	return c.literal
}

// Key returns the producer key; empty for literals.
func (c Content) Key() string {
	return c.key
}

// Resolve returns the content, invoking the producer if needed.
func (c Content) Resolve(ctx context.Context, env Env) (string, error) {
	switch {
	case c.isLiteral:
		return c.literal, nil
	case c.fn != nil:
		out, err := c.fn(ctx, env)
		if err != nil {
			return "", fmt.Errorf("content producer %q: %w", c.key, err)
		}
		return out, nil
	default:
		return "", fmt.Errorf("no content")
	}
}

// Equal reports whether two contents are the same value.
func (c Content) Equal(o Content) bool {
	switch {
	case c.isLiteral && o.isLiteral:
		return c.literal == o.literal
	case c.fn != nil && o.fn != nil:
		return c.key != "" && c.key == o.key
	default:
		return false
	}
}

// Describe returns a stable one-line identity for fingerprints and explain output.
func (c Content) Describe() string {
	switch {
	case c.isLiteral:
		return "literal:" + ir.ContentHash([]byte(c.literal))[:16]
	case c.fn != nil:
		return "producer:" + c.key
	default:
		return "none"
	}
}
