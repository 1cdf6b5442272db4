// Package prompt implements the prompt template registry (§4.3): file-backed
// storage, the rendering algorithm, and running usage statistics.
package prompt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumenpipe/lumen/engine/pipelineerr"
)

// Registry owns every PromptTemplate for the lifetime of the process. Writes
// are atomic (temp file + rename); the in-memory map only reflects a write
// once it has durably landed.
type Registry struct {
	mu  sync.RWMutex
	dir string
	byID map[string]*Template
	now  func() time.Time
}

// Open scans dir for `{id}.json` files and loads them into memory. If dir
// doesn't exist yet it's created. If, after loading, the registry is empty,
// the built-in templates (§4.3 supplement) are seeded.
func Open(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindStorageIO, "create template dir", err)
	}
	r := &Registry{dir: dir, byID: make(map[string]*Template), now: time.Now}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindStorageIO, "read template dir", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.KindStorageIO, "read "+e.Name(), err)
		}
		var tmpl Template
		if err := json.Unmarshal(data, &tmpl); err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.KindStorageIO, "parse "+e.Name(), err)
		}
		r.byID[tmpl.ID] = &tmpl
	}

	if len(r.byID) == 0 {
		if err := r.seedBuiltins(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Create validates and persists a new template, assigning an ID and
// timestamps.
func (r *Registry) Create(tmpl Template) (*Template, error) {
	if !ValidCategories[tmpl.Category] {
		return nil, pipelineerr.New(pipelineerr.KindInvalidInput, "category: "+string(tmpl.Category))
	}
	if err := validateDeclaration(tmpl); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tmpl.ID = uuid.NewString()
	tmpl.CreatedAt = r.now()
	tmpl.UpdatedAt = tmpl.CreatedAt

	if err := r.save(&tmpl); err != nil {
		return nil, err
	}
	r.byID[tmpl.ID] = &tmpl
	out := tmpl
	return &out, nil
}

// GetByID returns a copy of the template with the given id.
func (r *Registry) GetByID(id string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.byID[id]
	if !ok {
		return nil, pipelineerr.New(pipelineerr.KindNotFound, id)
	}
	out := *tmpl
	return &out, nil
}

// GetByName returns the first template matching name.
func (r *Registry) GetByName(name string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tmpl := range r.byID {
		if tmpl.Name == name {
			out := *tmpl
			return &out, nil
		}
	}
	return nil, pipelineerr.New(pipelineerr.KindNotFound, name)
}

// List returns templates matching filter, sorted by filter.SortKey (default
// "name").
func (r *Registry) List(filter ListFilter) []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Template
	for _, tmpl := range r.byID {
		if filter.Category != "" && tmpl.Category != filter.Category {
			continue
		}
		if len(filter.Tags) > 0 && !hasAllTags(tmpl.Tags, filter.Tags) {
			continue
		}
		cp := *tmpl
		out = append(out, &cp)
	}

	switch filter.SortKey {
	case "usage_count":
		sort.Slice(out, func(i, j int) bool { return out[i].UsageCount > out[j].UsageCount })
	case "created_at":
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	}
	return out
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

// Update applies fields to the template's mutable attributes and re-validates
// the declaration invariant before persisting.
func (r *Registry) Update(id string, fields Template) (*Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tmpl, ok := r.byID[id]
	if !ok {
		return nil, pipelineerr.New(pipelineerr.KindNotFound, id)
	}

	merged := *tmpl
	if fields.Name != "" {
		merged.Name = fields.Name
	}
	if fields.Description != "" {
		merged.Description = fields.Description
	}
	if fields.Category != "" {
		merged.Category = fields.Category
	}
	if fields.Text != "" {
		merged.Text = fields.Text
	}
	if fields.Variables != nil {
		merged.Variables = fields.Variables
	}
	if fields.Tags != nil {
		merged.Tags = fields.Tags
	}
	if fields.ModelOverrides != nil {
		merged.ModelOverrides = fields.ModelOverrides
	}

	if !ValidCategories[merged.Category] {
		return nil, pipelineerr.New(pipelineerr.KindInvalidInput, "category: "+string(merged.Category))
	}
	if err := validateDeclaration(merged); err != nil {
		return nil, err
	}

	merged.UpdatedAt = r.now()
	if err := r.save(&merged); err != nil {
		return nil, err
	}
	r.byID[id] = &merged
	out := merged
	return &out, nil
}

// Delete removes a template's on-disk record and in-memory entry.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return pipelineerr.New(pipelineerr.KindNotFound, id)
	}
	if err := os.Remove(r.path(id)); err != nil && !os.IsNotExist(err) {
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "delete "+id, err)
	}
	delete(r.byID, id)
	return nil
}

// Render looks up id and renders it with vars and an optional model.
func (r *Registry) Render(id string, vars map[string]string, model string) (Rendered, error) {
	r.mu.RLock()
	tmpl, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return Rendered{}, pipelineerr.New(pipelineerr.KindNotFound, id)
	}
	return Render(*tmpl, vars, model)
}

// LogExecution updates usage_count, last_used, and the running means of
// quality_score and success for template id.
func (r *Registry) LogExecution(id string, log ExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tmpl, ok := r.byID[id]
	if !ok {
		return pipelineerr.New(pipelineerr.KindNotFound, id)
	}

	updated := *tmpl
	n := float64(updated.UsageCount)
	updated.AvgQualityScore = runningMean(updated.AvgQualityScore, n, log.QualityScore)
	successVal := 0.0
	if log.Success {
		successVal = 1.0
	}
	updated.SuccessRate = runningMean(updated.SuccessRate, n, successVal)

	updated.UsageCount++
	now := r.now()
	updated.LastUsed = &now
	updated.UpdatedAt = now

	if err := r.save(&updated); err != nil {
		return err
	}
	r.byID[id] = &updated
	return nil
}

func runningMean(prevMean, priorCount, sample float64) float64 {
	return (prevMean*priorCount + sample) / (priorCount + 1)
}

// Export serialises ids (or every template if ids is empty) into the
// on-disk export payload shape.
func (r *Registry) Export(ids []string) (ExportPayload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payload := ExportPayload{ExportVersion: "1.0", ExportTimestamp: r.now()}
	if len(ids) == 0 {
		for _, tmpl := range r.byID {
			payload.Templates = append(payload.Templates, *tmpl)
		}
		return payload, nil
	}
	for _, id := range ids {
		tmpl, ok := r.byID[id]
		if !ok {
			return ExportPayload{}, pipelineerr.New(pipelineerr.KindNotFound, id)
		}
		payload.Templates = append(payload.Templates, *tmpl)
	}
	return payload, nil
}

// Import loads templates from payload. If overwrite is false, templates
// whose id already exists are skipped.
func (r *Registry) Import(payload ExportPayload, overwrite bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	imported := 0
	for _, tmpl := range payload.Templates {
		if _, exists := r.byID[tmpl.ID]; exists && !overwrite {
			continue
		}
		cp := tmpl
		if err := r.save(&cp); err != nil {
			return imported, err
		}
		r.byID[cp.ID] = &cp
		imported++
	}
	return imported, nil
}

// RegistryStats summarises the registry for operators.
type RegistryStats struct {
	Count          int
	ByCategory     map[Category]int
	TotalUsageCount int
}

// Stats reports aggregate counts across all templates.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{ByCategory: make(map[Category]int)}
	for _, tmpl := range r.byID {
		stats.Count++
		stats.ByCategory[tmpl.Category]++
		stats.TotalUsageCount += tmpl.UsageCount
	}
	return stats
}

func (r *Registry) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

// save writes tmpl atomically (temp file + rename). Caller must hold r.mu.
func (r *Registry) save(tmpl *Template) error {
	data, err := json.MarshalIndent(tmpl, "", "  ")
	if err != nil {
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "marshal template", err)
	}

	path := r.path(tmpl.ID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "write template temp", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "rename template", err)
	}
	return nil
}
