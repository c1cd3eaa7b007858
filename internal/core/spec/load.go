// Package spec decodes and validates schedule documents.
//
// Documents may be written in YAML or JSON. Loading validates the document
// against the embedded JSON schema and then builds the core.Schedule; any
// failure leaves existing schedules untouched.
package spec

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/gjbm2/screen-machine/internal/cmn/fileutil"
	"github.com/gjbm2/screen-machine/internal/cmn/schema"
	"github.com/gjbm2/screen-machine/internal/core"
)

var resolvedSchema = mustResolveSchema()

// docCache memoizes schedules by file path; the watcher and explicit loads
// often hit the same document back to back.
var docCache = fileutil.NewCache[*core.Schedule](64, 5*time.Minute)

func mustResolveSchema() *jsonschema.Resolved {
	var s jsonschema.Schema
	if err := json.Unmarshal(schema.ScheduleSchemaJSON, &s); err != nil {
		panic(fmt.Sprintf("embedded schedule schema is invalid: %v", err))
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("embedded schedule schema failed to resolve: %v", err))
	}
	return resolved
}

// Load decodes, schema-validates, and builds a schedule document.
func Load(data []byte) (*core.Schedule, error) {
	// goccy/go-yaml accepts JSON as a YAML subset, so one decode path
	// serves both document formats.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("failed to decode document: %w", err)}
	}

	normalized := normalizeKeys(raw)
	if err := resolvedSchema.Validate(normalized); err != nil {
		return nil, &ValidationError{Err: err}
	}

	jsonData, err := json.Marshal(normalized)
	if err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("failed to canonicalize document: %w", err)}
	}

	var sched core.Schedule
	if err := json.Unmarshal(jsonData, &sched); err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("failed to build schedule: %w", err)}
	}

	if err := validate(&sched); err != nil {
		return nil, err
	}
	return &sched, nil
}

// LoadFile loads a schedule document from a file, memoizing by path until
// the file changes on disk.
func LoadFile(path string) (*core.Schedule, error) {
	return docCache.Load(path, func() (*core.Schedule, error) {
		data, err := os.ReadFile(path) //nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("failed to read schedule %s: %w", path, err)
		}
		return Load(data)
	})
}

// normalizeKeys converts YAML map[any]any values into map[string]any so the
// document can be schema-validated and re-marshaled as JSON.
func normalizeKeys(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprintf("%v", k)] = normalizeKeys(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalizeKeys(val)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeKeys(val)
		}
		return out
	default:
		return v
	}
}
