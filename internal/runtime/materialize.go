package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/hostgen/internal/host"
	"github.com/roach88/hostgen/internal/ir"
	"github.com/roach88/hostgen/internal/marker"
	"github.com/roach88/hostgen/internal/registry"
	"github.com/roach88/hostgen/internal/slots"
)

// Artifact is one normalized output file.
type Artifact struct {
	Path string
	Host string
	Data []byte
	Perm os.FileMode
	Hash string
	Size int64
}

// rendered is the outcome of materializing one host.
type rendered struct {
	host      *registry.HostRecord
	artifacts []Artifact
	slots     []slots.SlotResult
	reasons   []string
	duration  time.Duration
}

func (r *rendered) bytes() int64 {
	var n int64
	for _, a := range r.artifacts {
		n += a.Size
	}
	return n
}

// materialize produces the artifacts of one host.
func (rt *Runtime) materialize(ctx context.Context, rec *registry.HostRecord, reasons []string) (*rendered, error) {
	start := time.Now()
	out := &rendered{host: rec, reasons: reasons}
	env := host.Env{HostID: rec.ID, Path: rec.Path, Reasons: reasons}

	var err error
	switch p := rec.Spec.Payload.(type) {
	case *host.TextPayload:
		err = rt.materializeText(ctx, out, p, env)
	case *host.CopyFilePayload:
		err = rt.materializeCopyFile(out, p)
	case *host.CopyDirPayload:
		err = rt.materializeCopyDir(ctx, out, p)
	case *host.SlotsPayload:
		err = rt.materializeSlots(ctx, out, p, env)
	default:
		err = fmt.Errorf("host has no mode")
	}
	if err != nil {
		return nil, fmt.Errorf("render host %s: %w", rec.ID, err)
	}
	out.duration = time.Since(start)
	return out, nil
}

func (rt *Runtime) materializeText(ctx context.Context, out *rendered, p *host.TextPayload, env host.Env) error {
	text, err := p.Content.Resolve(ctx, env)
	if err != nil {
		return err
	}
	data, err := rt.finishText(out.host, text, p.EOL, p.Encoding)
	if err != nil {
		return err
	}
	out.artifacts = append(out.artifacts, newArtifact(out.host.Path, out.host.ID, data, 0o644))
	return nil
}

func (rt *Runtime) materializeSlots(ctx context.Context, out *rendered, p *host.SlotsPayload, env host.Env) error {
	template, err := p.Template.Resolve(ctx, env)
	if err != nil {
		return err
	}
	req, _ := out.host.SlotRequest(template)
	if p.DetectSlots && !p.Template.IsLiteral() {
		specs := maps.Clone(req.Slots)
		if specs == nil {
			specs = make(map[string]*slots.Spec)
		}
		for _, name := range marker.Names(template) {
			if _, ok := specs[name]; !ok {
				specs[name] = host.DefaultSlot(name)
			}
		}
		req.Slots = specs
	}
	res, err := slots.Compose(ctx, req)
	if err != nil {
		return err
	}
	out.slots = res.Slots
	data, err := rt.finishText(out.host, res.Content, host.EOLLF, host.EncodingUTF8)
	if err != nil {
		return err
	}
	out.artifacts = append(out.artifacts, newArtifact(out.host.Path, out.host.ID, data, 0o644))
	return nil
}

// finishText applies the host's formatter, line endings and encoding.
func (rt *Runtime) finishText(rec *registry.HostRecord, text string, eol host.EOL, enc host.Encoding) ([]byte, error) {
	if name := rec.Spec.Format; name != "" {
		f, ok := rt.formatters[name]
		if !ok {
			return nil, fmt.Errorf("unknown formatter %q", name)
		}
		formatted, err := f(rec.Path, []byte(text))
		if err != nil {
			return nil, err
		}
		text = string(formatted)
	}
	return encodeText(normalizeText(text, eol), enc)
}

func (rt *Runtime) materializeCopyFile(out *rendered, p *host.CopyFilePayload) error {
	src := rt.sourcePath(p.Source)
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("copy source: %w", err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("copy source: %w", err)
	}
	if p.Transform != nil {
		if data, err = p.Transform(data); err != nil {
			return fmt.Errorf("transform %s: %w", p.Source, err)
		}
	}
	out.artifacts = append(out.artifacts, newArtifact(out.host.Path, out.host.ID, data, info.Mode().Perm()))
	return nil
}

func (rt *Runtime) materializeCopyDir(ctx context.Context, out *rendered, p *host.CopyDirPayload) error {
	root := rt.sourcePath(p.Source)
	return filepath.WalkDir(root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("copy source: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !selected(rel, p.Filter, p.Ignore) {
			return nil
		}
		target := rel
		if p.Remap != nil {
			mapped, keep := p.Remap(rel)
			if !keep {
				return nil
			}
			target = mapped
		}
		dest, err := host.NormalizePath(path.Join(out.host.Path, target))
		if err != nil {
			return fmt.Errorf("remap %s: %w", rel, err)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return fmt.Errorf("copy source: %w", err)
		}
		out.artifacts = append(out.artifacts, newArtifact(dest, out.host.ID, data, info.Mode().Perm()))
		return nil
	})
}

// selected applies filter then ignore globs to a slash separated path.
func selected(rel string, filter, ignore []string) bool {
	if len(filter) > 0 && !matchAny(filter, rel) {
		return false
	}
	return !matchAny(ignore, rel)
}

func matchAny(globs []string, rel string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

func (rt *Runtime) sourcePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(rt.sourceRoot, filepath.FromSlash(p))
}

func newArtifact(p, hostID string, data []byte, perm os.FileMode) Artifact {
	return Artifact{
		Path: p,
		Host: hostID,
		Data: data,
		Perm: perm,
		Hash: ir.ContentHash(data),
		Size: int64(len(data)),
	}
}
