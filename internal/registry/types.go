// Package registry discovers TaskDefinitions from filesystem, HTTP, Git and
// embedded sources and syncs them into the TaskRepository. Grounded on
// crawler/internal/sources/loader/loader.go's load-validate-convert shape,
// generalized from a single YAML sources file to four pluggable discovery
// sources and a checksum-aware upsert instead of an in-memory list.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// DiscoveredTask is one task found by a Source, before it has been synced
// into the store. Checksum is the hex SHA-256 of Script concatenated with
// both schema documents, used to detect a content change at the same
// (UUID, Version) during sync.
type DiscoveredTask struct {
	TaskID       string
	Name         string
	Version      string
	Description  string
	Tags         []string
	Script       string
	InputSchema  []byte
	OutputSchema []byte
	Checksum     string
}

// checksum computes the content hash a DiscoveredTask should carry.
func checksum(script string, inputSchema, outputSchema []byte) string {
	h := sha256.New()
	h.Write([]byte(script))
	h.Write(inputSchema)
	h.Write(outputSchema)
	return hex.EncodeToString(h.Sum(nil))
}

// Source discovers tasks from one origin: a directory tree, an HTTP index,
// a Git repository, or the binary's embedded task set.
type Source interface {
	// Name identifies the source for logging (e.g. "filesystem:/var/tasks").
	Name() string
	Discover(ctx context.Context) ([]DiscoveredTask, error)
}
