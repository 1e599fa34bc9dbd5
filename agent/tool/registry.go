// Package tool holds the static capability registry. The planner's output is
// checked against this mapping before anything executes; an unregistered name
// never reaches an Invoke call.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Tool is one invocable capability.
type Tool interface {
	Name() string
	Description() string
	// Sensitive tools always require human approval before execution.
	Sensitive() bool
	// Schema may be nil when the tool accepts free-form arguments.
	Schema() Schema
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Registry maps tool names to capabilities. It is populated at startup and
// read-only afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(t Tool) error {
	if t == nil {
		return errors.New("tool is nil")
	}
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return errors.New("tool name is empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s registered twice", name)
	}
	if err := validateSchema(t.Schema()); err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}
	r.tools[name] = t
	return nil
}

// Register adds a tool after construction. Used by wiring code only; the
// orchestrator never mutates the registry.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(t)
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Sensitive reports whether name is a registered sensitive tool. Unknown
// names are not sensitive; they are filtered out before gating.
func (r *Registry) Sensitive(name string) bool {
	t, ok := r.Lookup(name)
	return ok && t.Sensitive()
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders the registry for a planning prompt: name, description and
// parameter list per tool.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		t := r.tools[name]
		fmt.Fprintf(&b, "- %s: %s\n", name, t.Description())
		schema := t.Schema()
		if len(schema) == 0 {
			b.WriteString("  parameters: none\n")
			continue
		}
		b.WriteString("  parameters:\n")
		params := make([]string, 0, len(schema))
		for p := range schema {
			params = append(params, p)
		}
		sort.Strings(params)
		for _, p := range params {
			spec := schema[p]
			required := ""
			if spec.Required {
				required = ", required"
			}
			fmt.Fprintf(&b, "    - %s (%s%s): %s\n", p, spec.Type, required, spec.Desc)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
