// Package file provides file-based persistence for workflow templates,
// instances, and step executions. It backs unit tests and single-node
// development setups; conditional updates are serialized behind a mutex so
// the same at-most-once guarantees hold as in the SQL backend.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/approvio/approvio/pkg/persistence"
)

const dirPerm = 0o755

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root string

	// One lock for the whole store. Conditional updates and batch writes
	// must observe and mutate records atomically; with per-instance files a
	// single mutex is the simplest discipline that guarantees it.
	mu sync.Mutex

	templateRepo  *TemplateRepository
	instanceRepo  *InstanceRepository
	executionRepo *StepExecutionRepository
}

// NewPersistence creates a file persistence layer rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.templateRepo = &TemplateRepository{store: p}
	p.instanceRepo = &InstanceRepository{store: p}
	p.executionRepo = &StepExecutionRepository{store: p}

	return p
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// TemplateRepository returns the template repository implementation.
func (p *Persistence) TemplateRepository() persistence.TemplateRepository {
	return p.templateRepo
}

// InstanceRepository returns the instance repository implementation.
func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instanceRepo
}

// StepExecutionRepository returns the step execution repository implementation.
func (p *Persistence) StepExecutionRepository() persistence.StepExecutionRepository {
	return p.executionRepo
}

// write marshals the record to <root>/<kind>/<id>.json.
func (p *Persistence) write(kind, id string, record any) error {
	dir := filepath.Join(p.root, kind)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	if err := os.WriteFile(filepath.Join(dir, id+".json"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return nil
}

// read unmarshals <root>/<kind>/<id>.json into record. It reports
// os.ErrNotExist when the file is absent.
func (p *Persistence) read(kind, id string, record any) error {
	data, err := os.ReadFile(filepath.Join(p.root, kind, id+".json"))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, record); err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return nil
}

// ids lists the record ids stored under <root>/<kind>.
func (p *Persistence) ids(kind string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s directory: %w", kind, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}

// remove deletes <root>/<kind>/<id>.json.
func (p *Persistence) remove(kind, id string) error {
	return os.Remove(filepath.Join(p.root, kind, id+".json"))
}
