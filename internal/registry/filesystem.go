package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/michiel/ratchet-sub007/internal/errs"
	"github.com/michiel/ratchet-sub007/internal/logger"
)

// taskMetadata is metadata.json's shape.
type taskMetadata struct {
	UUID        string   `json:"uuid"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

const (
	metadataFile = "metadata.json"
	scriptFile   = "main.js"
	inputSchema  = "input.schema.json"
	outputSchema = "output.schema.json"
)

// FilesystemSource discovers tasks laid out one directory per task:
// metadata.json, main.js, input.schema.json and output.schema.json.
type FilesystemSource struct {
	root      string
	recursive bool
}

func NewFilesystemSource(root string, recursive bool) *FilesystemSource {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &FilesystemSource{root: root, recursive: recursive}
}

func (s *FilesystemSource) Name() string {
	return fmt.Sprintf("filesystem:%s", s.root)
}

// Discover walks s.root for task directories. Recursive walks the full
// tree; non-recursive only considers s.root's immediate subdirectories.
func (s *FilesystemSource) Discover(ctx context.Context) ([]DiscoveredTask, error) {
	var taskDirs []string

	if s.recursive {
		err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !d.IsDir() {
				return nil
			}
			if _, statErr := os.Stat(filepath.Join(path, metadataFile)); statErr == nil {
				taskDirs = append(taskDirs, path)
			}
			return nil
		})
		if err != nil {
			return nil, errs.Server(err, "walk filesystem task source %s", s.root)
		}
	} else {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			return nil, errs.Server(err, "read filesystem task source %s", s.root)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			path := filepath.Join(s.root, e.Name())
			if _, statErr := os.Stat(filepath.Join(path, metadataFile)); statErr == nil {
				taskDirs = append(taskDirs, path)
			}
		}
	}

	tasks := make([]DiscoveredTask, 0, len(taskDirs))
	for _, dir := range taskDirs {
		task, err := loadTaskDir(os.DirFS("/"), mustRel(dir))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// mustRel converts an absolute path into the form os.DirFS("/") expects
// (relative, no leading slash); filepath.WalkDir and os.ReadDir above both
// start from an absolute or already-rooted s.root, so this never fails in
// practice.
func mustRel(absPath string) string {
	rel, err := filepath.Rel("/", absPath)
	if err != nil {
		return absPath
	}
	return rel
}

// loadTaskDir reads one task directory's four files into a DiscoveredTask
// from fsys, so both a real directory tree (via os.DirFS) and an embedded
// task set (via go:embed) share this logic.
func loadTaskDir(fsys fs.FS, dir string) (DiscoveredTask, error) {
	metaBytes, err := fs.ReadFile(fsys, filepath.Join(dir, metadataFile))
	if err != nil {
		return DiscoveredTask{}, errs.Validation("read %s: %v", filepath.Join(dir, metadataFile), err)
	}
	var meta taskMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return DiscoveredTask{}, errs.Validation("parse %s: %v", filepath.Join(dir, metadataFile), err)
	}
	if meta.UUID == "" || meta.Name == "" || meta.Version == "" {
		return DiscoveredTask{}, errs.Validation("%s: uuid, name and version are required", dir)
	}

	script, err := fs.ReadFile(fsys, filepath.Join(dir, scriptFile))
	if err != nil {
		return DiscoveredTask{}, errs.Validation("read %s: %v", filepath.Join(dir, scriptFile), err)
	}
	input, err := readOptionalSchema(fsys, filepath.Join(dir, inputSchema))
	if err != nil {
		return DiscoveredTask{}, err
	}
	output, err := readOptionalSchema(fsys, filepath.Join(dir, outputSchema))
	if err != nil {
		return DiscoveredTask{}, err
	}

	return DiscoveredTask{
		TaskID:       meta.UUID,
		Name:         meta.Name,
		Version:      meta.Version,
		Description:  meta.Description,
		Tags:         meta.Tags,
		Script:       string(script),
		InputSchema:  input,
		OutputSchema: output,
		Checksum:     checksum(string(script), input, output),
	}, nil
}

func readOptionalSchema(fsys fs.FS, path string) ([]byte, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		if os.IsNotExist(err) {
			return []byte("{}"), nil
		}
		return nil, errs.Validation("read %s: %v", path, err)
	}
	return data, nil
}

// Watcher re-runs a sync callback whenever a filesystem source's tree
// changes, debouncing bursts of events (editors typically emit several
// writes per save) into a single resync.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	log      logger.Logger

	done chan struct{}
}

// WatchFilesystem starts watching root (and, if recursive, every existing
// subdirectory) and invokes onChange at most once per debounce window after
// the last observed event. Newly created subdirectories are not picked up
// mid-watch; callers relying on that should restart the watcher after a
// resync discovers new directories.
func WatchFilesystem(root string, recursive bool, debounce time.Duration, log logger.Logger, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Server(err, "create filesystem watcher")
	}

	dirs := []string{root}
	if recursive {
		_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if path != root {
				dirs = append(dirs, path)
			}
			return nil
		})
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, errs.Server(err, "watch directory %s", dir)
		}
	}

	w := &Watcher{fsw: fsw, debounce: debounce, log: log, done: make(chan struct{})}
	go w.run(onChange)
	return w, nil
}

func (w *Watcher) run(onChange func()) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.log.Debug("filesystem task source changed", logger.String("path", event.Name), logger.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			onChange()
			timerC = nil
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("filesystem watcher error", logger.Error(err))
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
