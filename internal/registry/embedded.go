package registry

import (
	"context"
	"embed"
	"io/fs"

	"github.com/michiel/ratchet-sub007/internal/errs"
)

//go:embed builtin
var builtinFS embed.FS

// EmbeddedSource discovers the task set compiled into the binary itself:
// always available, never requires network or disk access outside the
// binary. registry.New includes it ahead of every configured source, and
// it carries the diagnostics the "echo" task exists for.
type EmbeddedSource struct {
	fsys fs.FS
	root string
}

// NewEmbeddedSource builds a source over the binary's built-in task set.
func NewEmbeddedSource() *EmbeddedSource {
	return &EmbeddedSource{fsys: builtinFS, root: "builtin"}
}

func (s *EmbeddedSource) Name() string {
	return "embedded"
}

func (s *EmbeddedSource) Discover(ctx context.Context) ([]DiscoveredTask, error) {
	entries, err := fs.ReadDir(s.fsys, s.root)
	if err != nil {
		return nil, errs.Server(err, "read embedded task set")
	}

	tasks := make([]DiscoveredTask, 0, len(entries))
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !e.IsDir() {
			continue
		}
		task, err := loadTaskDir(s.fsys, s.root+"/"+e.Name())
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
