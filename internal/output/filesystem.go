package output

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
)

// FilesystemDelivery writes execution output to disk, atomically.
type FilesystemDelivery struct {
	cfg config.OutputConfig
	tpl *TemplateEngine
}

func NewFilesystemDelivery(cfg config.OutputConfig) *FilesystemDelivery {
	return &FilesystemDelivery{cfg: cfg, tpl: NewTemplateEngine()}
}

// Deliver renders dest.PathTemplate, serializes output per dest.Format and
// writes it via a temp-file-then-rename so a reader never observes a
// partially written file.
func (d *FilesystemDelivery) Deliver(ctx context.Context, dest domain.FilesystemDestination, output json.RawMessage, variables map[string]string) error {
	if err := d.tpl.Validate(dest.PathTemplate); err != nil {
		return errs.Validation("invalid filesystem path template: %v", err)
	}
	path, err := d.tpl.Render(dest.PathTemplate, variables)
	if err != nil {
		return errs.Validation("render filesystem path template: %v", err)
	}

	content, err := renderContent(d.tpl, dest.Format, dest.ContentTemplate, output, variables)
	if err != nil {
		return errs.Validation("render filesystem content: %v", err)
	}

	deadline := time.Now().Add(d.cfg.FilesystemTimeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if dest.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errs.Server(err, "create output directory")
		}
	}

	if !dest.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return errs.Client("output path %s already exists and overwrite is false", path)
		}
	} else if dest.BackupExisting {
		if _, err := os.Stat(path); err == nil {
			if err := os.Rename(path, path+".bak."+time.Now().UTC().Format("20060102T150405")); err != nil {
				return errs.Server(err, "back up existing output file")
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return errs.Cancelled("filesystem delivery deadline exceeded")
	}

	return atomicWrite(path, content, permissionsOrDefault(dest.Permissions, d.cfg.DefaultPermissions))
}

// atomicWrite writes content to a temp file in the same directory as path
// and renames it into place, so a crash mid-write never leaves a truncated
// file at the final name.
func atomicWrite(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errs.Server(err, "create temp output file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return errs.Server(err, "write temp output file")
	}
	if err := tmp.Close(); err != nil {
		return errs.Server(err, "close temp output file")
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return errs.Server(err, "chmod temp output file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errs.Server(err, "rename temp output file into place")
	}
	return nil
}

func permissionsOrDefault(want, fallback uint32) os.FileMode {
	if want != 0 {
		return os.FileMode(want)
	}
	return os.FileMode(fallback)
}

func renderContent(tpl *TemplateEngine, format domain.OutputFormat, contentTemplate string, output json.RawMessage, variables map[string]string) ([]byte, error) {
	switch format {
	case domain.FormatJSON, "":
		var pretty interface{}
		if err := json.Unmarshal(output, &pretty); err != nil {
			return nil, err
		}
		return json.MarshalIndent(pretty, "", "  ")
	case domain.FormatJSONCompact:
		return output, nil
	case domain.FormatRaw:
		var s string
		if err := json.Unmarshal(output, &s); err == nil {
			return []byte(s), nil
		}
		return output, nil
	case domain.FormatTemplate:
		rendered, err := tpl.Render(contentTemplate, variables)
		if err != nil {
			return nil, err
		}
		return []byte(rendered), nil
	case domain.FormatYAML:
		var v interface{}
		if err := json.Unmarshal(output, &v); err != nil {
			return nil, err
		}
		return yaml.Marshal(v)
	case domain.FormatCSV:
		return renderCSV(output)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// renderCSV expects output to decode to either an array of flat JSON
// objects (header row taken from the union of keys, sorted for
// determinism) or an array of arrays (written as rows verbatim).
func renderCSV(output json.RawMessage) ([]byte, error) {
	var rows []map[string]any
	if err := json.Unmarshal(output, &rows); err == nil {
		return csvFromObjects(rows)
	}

	var raw []any
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("csv output must be an array of objects or arrays: %w", err)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range raw {
		cells, ok := row.([]any)
		if !ok {
			return nil, fmt.Errorf("csv output row is not an array: %v", row)
		}
		record := make([]string, len(cells))
		for i, c := range cells {
			record[i] = fmt.Sprint(c)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func csvFromObjects(rows []map[string]any) ([]byte, error) {
	keySet := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			keySet[k] = struct{}{}
		}
	}
	headers := make([]string, 0, len(keySet))
	for k := range keySet {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := make([]string, len(headers))
		for i, h := range headers {
			if v, ok := row[h]; ok {
				record[i] = fmt.Sprint(v)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
