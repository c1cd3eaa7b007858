// Package registry tracks exported variables and their importers across all
// destinations in the process. The registry itself only records ownership
// and wiring; value propagation into importer contexts is driven by the
// runtime when an owner's variable changes.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/gjbm2/screen-machine/internal/cmn/fileutil"
)

// Source types for imports.
const (
	SourceDestination = "destination"
	SourceGroup       = "group"
	SourceScope       = "scope"
)

// ExportInfo records who exported a variable and when.
type ExportInfo struct {
	Owner        string    `json:"owner"`
	FriendlyName string    `json:"friendly_name,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ImportInfo records one importer of a variable.
type ImportInfo struct {
	ImportedAs string    `json:"imported_as"`
	SourceType string    `json:"source_type"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// Importer pairs a destination with its import record.
type Importer struct {
	Destination string
	Info        ImportInfo
}

type data struct {
	Global  map[string]ExportInfo            `json:"global"`
	Groups  map[string]map[string]ExportInfo `json:"groups"`
	Imports map[string]map[string]ImportInfo `json:"imports"`
}

func newData() data {
	return data{
		Global:  map[string]ExportInfo{},
		Groups:  map[string]map[string]ExportInfo{},
		Imports: map[string]map[string]ImportInfo{},
	}
}

// Registry is the process-wide exported-variable registry. All operations
// are atomic under one mutex; changes are persisted to a single JSON file.
type Registry struct {
	mu    sync.Mutex
	path  string
	clock func() time.Time
	data  data
}

// Option defines functional options for the registry.
type Option func(*Registry)

// WithClock replaces the wall clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// New creates a registry persisted at path. An empty path keeps the
// registry memory-only. An existing file is loaded; a missing or unreadable
// one starts the registry empty.
func New(path string, opts ...Option) *Registry {
	r := &Registry{path: path, clock: time.Now, data: newData()}
	for _, opt := range opts {
		opt(r)
	}
	if path != "" && fileutil.FileExists(path) {
		loaded := newData()
		if err := fileutil.ReadJSON(path, &loaded); err == nil {
			r.data = loaded
		}
	}
	return r
}

// RegisterExport publishes a variable under global scope or a group.
// Scope is "global" or a group name.
func (r *Registry) RegisterExport(scope, varName, owner, friendlyName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := ExportInfo{Owner: owner, FriendlyName: friendlyName, Timestamp: r.clock()}
	if scope == "global" {
		r.data.Global[varName] = info
	} else {
		group := r.data.Groups[scope]
		if group == nil {
			group = map[string]ExportInfo{}
			r.data.Groups[scope] = group
		}
		group[varName] = info
	}
	return r.persist()
}

// RemoveExport withdraws a variable from every scope it was exported to,
// along with all downstream imports. It returns the importers that were
// dropped so the caller can clear their aliases.
func (r *Registry) RemoveExport(varName, owner string) ([]Importer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.data.Global[varName]; ok && info.Owner == owner {
		delete(r.data.Global, varName)
	}
	for group, vars := range r.data.Groups {
		if info, ok := vars[varName]; ok && info.Owner == owner {
			delete(vars, varName)
		}
		if len(vars) == 0 {
			delete(r.data.Groups, group)
		}
	}

	dropped := r.importersLocked(varName)
	delete(r.data.Imports, varName)

	return dropped, r.persist()
}

// RegisterImport records that importer reads varName from the given source
// under the local alias.
func (r *Registry) RegisterImport(varName, importer, alias, sourceType, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if alias == "" {
		alias = varName
	}
	imports := r.data.Imports[varName]
	if imports == nil {
		imports = map[string]ImportInfo{}
		r.data.Imports[varName] = imports
	}
	imports[importer] = ImportInfo{
		ImportedAs: alias,
		SourceType: sourceType,
		Source:     source,
		Timestamp:  r.clock(),
	}
	return r.persist()
}

// RemoveImport drops one importer of a variable.
func (r *Registry) RemoveImport(varName, importer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if imports, ok := r.data.Imports[varName]; ok {
		delete(imports, importer)
		if len(imports) == 0 {
			delete(r.data.Imports, varName)
		}
	}
	return r.persist()
}

// ImportersOf returns every importer of varName.
func (r *Registry) ImportersOf(varName string) []Importer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.importersLocked(varName)
}

// ExportOf resolves the export record for varName in the given scope.
func (r *Registry) ExportOf(scope, varName string) (ExportInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if scope == "global" {
		info, ok := r.data.Global[varName]
		return info, ok
	}
	if vars, ok := r.data.Groups[scope]; ok {
		info, ok := vars[varName]
		return info, ok
	}
	return ExportInfo{}, false
}

// IsExportedBy reports whether owner currently exports varName anywhere.
func (r *Registry) IsExportedBy(varName, owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.data.Global[varName]; ok && info.Owner == owner {
		return true
	}
	for _, vars := range r.data.Groups {
		if info, ok := vars[varName]; ok && info.Owner == owner {
			return true
		}
	}
	return false
}

func (r *Registry) importersLocked(varName string) []Importer {
	imports := r.data.Imports[varName]
	out := make([]Importer, 0, len(imports))
	for dest, info := range imports {
		out = append(out, Importer{Destination: dest, Info: info})
	}
	return out
}

func (r *Registry) persist() error {
	if r.path == "" {
		return nil
	}
	if err := fileutil.WriteJSONAtomic(r.path, r.data); err != nil {
		return fmt.Errorf("failed to persist variable registry: %w", err)
	}
	return nil
}
