// Package template renders the template-bearing string fields of
// instructions. Rendering always happens at execution time with the current
// context, never at load time: earlier instructions in a block legitimately
// change variables that later instructions reference.
package template

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
)

// Engine renders a template string against a variable map. Implementations
// must be deterministic and side-effect free for a given input.
type Engine interface {
	Render(tmpl string, vars map[string]any) (string, error)
}

// New returns the default engine, backed by text/template with the sprig
// function set.
func New() Engine {
	return &engine{funcs: sprig.TxtFuncMap()}
}

type engine struct {
	funcs template.FuncMap

	mu    sync.Mutex
	cache map[string]*template.Template
}

func (e *engine) Render(tmpl string, vars map[string]any) (string, error) {
	// Strings without placeholders pass through untouched, which also
	// makes rendering idempotent on them.
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	parsed, err := e.parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := parsed.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

func (e *engine) parse(tmpl string) (*template.Template, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.cache[tmpl]; ok {
		return t, nil
	}
	t, err := template.New("field").Funcs(e.funcs).Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return nil, err
	}
	if e.cache == nil {
		e.cache = map[string]*template.Template{}
	}
	e.cache[tmpl] = t
	return t, nil
}
