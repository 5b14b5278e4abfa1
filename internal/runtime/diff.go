package runtime

import (
	"bytes"
	"context"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// FileDiff is the difference between a rendered output and the file on disk.
type FileDiff struct {
	Path    string `json:"path"`
	Host    string `json:"host,omitempty"`
	Status  Status `json:"status"`
	Unified string `json:"unified"`
}

// Diff renders every host and compares each output with the file currently
// on disk. Paths whose disk content already matches are omitted. Nothing
// is written.
func (rt *Runtime) Diff(ctx context.Context) ([]FileDiff, error) {
	var diffs []FileDiff
	err := rt.submit(ctx, "diff", func(ctx context.Context) error {
		res, err := rt.pass(ctx, passOptions{reason: "diff"})
		if err != nil {
			return err
		}
		for _, e := range res.plan.Entries {
			var next []byte
			if a, ok := res.artifacts[e.Path]; ok {
				next = a.Data
			}
			current, readErr := rt.writer.Read(e.Path)
			exists := readErr == nil
			if exists && e.Status != StatusRemoved && bytes.Equal(current, next) {
				continue
			}
			if !exists && e.Status == StatusRemoved {
				continue
			}
			diffs = append(diffs, FileDiff{
				Path:    e.Path,
				Host:    e.Host,
				Status:  e.Status,
				Unified: unified(e.Path, current, exists, next, e.Status != StatusRemoved),
			})
		}
		return nil
	})
	return diffs, err
}

func unified(path string, current []byte, hasCurrent bool, next []byte, hasNext bool) string {
	if !utf8.Valid(current) || !utf8.Valid(next) {
		return "Binary files differ\n"
	}
	from, to := "a/"+path, "b/"+path
	if !hasCurrent {
		from = "/dev/null"
	}
	if !hasNext {
		to = "/dev/null"
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(current)),
		B:        difflib.SplitLines(string(next)),
		FromFile: from,
		ToFile:   to,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return text
}
