package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/michiel/ratchet-sub007/internal/errs"
)

// httpIndexEntry is one row of an HTTP source's index document.
type httpIndexEntry struct {
	TaskID string `json:"task_id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

type httpIndex struct {
	Tasks []httpIndexEntry `json:"tasks"`
}

// httpTaskDocument is the shape fetched from one index entry's URL.
type httpTaskDocument struct {
	TaskID       string          `json:"task_id"`
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Script       string          `json:"script"`
	InputSchema  json.RawMessage `json:"input_schema"`
	OutputSchema json.RawMessage `json:"output_schema"`
}

// HTTPSource discovers tasks from a remote index: a GET to indexURL returns
// a list of (task_id, name, url) entries, and each url, resolved against
// indexURL, is fetched in turn for the task's full document.
type HTTPSource struct {
	indexURL   string
	client     *http.Client
	maxFetches int
}

// NewHTTPSource builds an HTTPSource. timeout bounds each individual
// request (the index fetch and every per-task fetch), and maxConcurrent
// bounds how many task documents are fetched at once.
func NewHTTPSource(indexURL string, timeout time.Duration, maxConcurrent int) *HTTPSource {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &HTTPSource{
		indexURL:   indexURL,
		client:     &http.Client{Timeout: timeout},
		maxFetches: maxConcurrent,
	}
}

func (s *HTTPSource) Name() string {
	return fmt.Sprintf("http:%s", s.indexURL)
}

func (s *HTTPSource) Discover(ctx context.Context) ([]DiscoveredTask, error) {
	index, err := s.fetchIndex(ctx)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(s.indexURL)
	if err != nil {
		return nil, errs.Validation("parse HTTP task index URL %s: %v", s.indexURL, err)
	}

	tasks := make([]DiscoveredTask, len(index.Tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxFetches)
	for i, entry := range index.Tasks {
		i, entry := i, entry
		g.Go(func() error {
			ref, err := url.Parse(entry.URL)
			if err != nil {
				return fmt.Errorf("parse task URL %s: %w", entry.URL, err)
			}
			doc, err := s.fetchTask(gctx, base.ResolveReference(ref).String())
			if err != nil {
				return fmt.Errorf("fetch task %s (%s): %w", entry.TaskID, entry.URL, err)
			}
			tasks[i] = documentToTask(doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.Network(err, "fetch tasks from HTTP index %s", s.indexURL)
	}
	return tasks, nil
}

func (s *HTTPSource) fetchIndex(ctx context.Context) (httpIndex, error) {
	var index httpIndex
	body, err := s.get(ctx, s.indexURL)
	if err != nil {
		return index, errs.Network(err, "fetch HTTP task index %s", s.indexURL)
	}
	if err := json.Unmarshal(body, &index); err != nil {
		return index, errs.Validation("parse HTTP task index %s: %v", s.indexURL, err)
	}
	return index, nil
}

func (s *HTTPSource) fetchTask(ctx context.Context, url string) (httpTaskDocument, error) {
	var doc httpTaskDocument
	body, err := s.get(ctx, url)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return doc, errs.Validation("parse task document %s: %v", url, err)
	}
	return doc, nil
}

func (s *HTTPSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func documentToTask(doc httpTaskDocument) DiscoveredTask {
	input := []byte(doc.InputSchema)
	if len(input) == 0 || string(input) == "null" {
		input = []byte("{}")
	}
	output := []byte(doc.OutputSchema)
	if len(output) == 0 || string(output) == "null" {
		output = []byte("{}")
	}
	return DiscoveredTask{
		TaskID:       doc.TaskID,
		Name:         doc.Name,
		Version:      doc.Version,
		Description:  doc.Description,
		Tags:         doc.Tags,
		Script:       doc.Script,
		InputSchema:  input,
		OutputSchema: output,
		Checksum:     checksum(doc.Script, input, output),
	}
}
