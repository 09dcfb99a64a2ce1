/*
PURPOSE:
  Persists the run document as a single pretty-printed JSON file and keeps it
  current after every call (the Checkpointer).

REQUIREMENTS:
  User-specified:
  - Results must survive an interrupted run: checkpoint after every call.
  - One entry per server name; a re-checkpoint replaces the previous entry.

  Implementation-discovered:
  - Writing in place can leave a truncated file if the process dies mid-write;
    write to a temp file in the same directory and rename over the target.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (checkpoints), internal/cli (report)
  - Consumes: internal/model.Document

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/json with two-space indentation.
  - Single writer: only the engine's control goroutine calls Persist.

USAGE:
  cp := output.NewCheckpointer("results/run.json", doc)
  cp.Persist(serverResult)

RELATED FILES:
  - internal/model/types.go
  - internal/output/report.go
*/

package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daryltucker/workload-bench/internal/model"
)

// Checkpointer owns the run document and rewrites it on every Persist.
type Checkpointer struct {
	path string
	doc  *model.Document
}

// NewCheckpointer creates a checkpointer writing doc to path.
func NewCheckpointer(path string, doc *model.Document) *Checkpointer {
	if doc.Servers == nil {
		doc.Servers = []*model.ServerRunResult{}
	}
	return &Checkpointer{path: path, doc: doc}
}

// Path is the document location.
func (c *Checkpointer) Path() string { return c.path }

// Document returns the document being checkpointed.
func (c *Checkpointer) Document() *model.Document { return c.doc }

// Persist drops any entry with the same server name, appends server and
// rewrites the whole file.
func (c *Checkpointer) Persist(server *model.ServerRunResult) error {
	kept := c.doc.Servers[:0:0]
	for _, s := range c.doc.Servers {
		if s.Name != server.Name {
			kept = append(kept, s)
		}
	}
	c.doc.Servers = append(kept, server)
	return WriteJSON(c.path, c.doc)
}

// Flush rewrites the file without changing the document.
func (c *Checkpointer) Flush() error {
	return WriteJSON(c.path, c.doc)
}

// WriteJSON writes v to path with two-space indentation. The file is replaced
// atomically; parent directories are created as needed.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// ReadDocument loads a previously written run document.
func ReadDocument(path string) (*model.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &doc, nil
}
