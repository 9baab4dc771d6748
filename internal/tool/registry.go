// Package tool holds the named, schema-described operations the agent may
// invoke on the model's request.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/salesdesk/salesdesk/internal/completion"
)

var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrDuplicateTool     = errors.New("tool already registered")
	ErrInvalidArguments  = errors.New("invalid tool arguments")
	errInvalidDefinition = errors.New("invalid tool definition")
)

// Handler runs a tool with arguments that already passed schema validation.
// Numbers arrive as json.Number.
type Handler func(ctx context.Context, args map[string]any) (string, error)

type Spec struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Tool is a registered Spec with its compiled parameter schema.
type Tool struct {
	Spec
	schema *jsonschema.Schema
}

// ValidateArguments decodes raw JSON arguments and checks them against the
// parameter schema. Empty input is treated as an empty object.
func (t *Tool) ValidateArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	decoded, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: arguments are not valid JSON: %v", ErrInvalidArguments, err)
	}
	args, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: arguments must be a JSON object", ErrInvalidArguments)
	}
	if err := t.schema.Validate(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return args, nil
}

// Registry is filled once at startup and read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

func (r *Registry) Register(spec Spec) error {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return fmt.Errorf("%w: name is required", errInvalidDefinition)
	}
	if spec.Handler == nil {
		return fmt.Errorf("%w: tool %q has no handler", errInvalidDefinition, spec.Name)
	}
	if spec.Parameters == nil {
		spec.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	compiled, err := compileSchema(spec.Name, spec.Parameters)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, spec.Name)
	}
	r.tools[spec.Name] = &Tool{Spec: spec, schema: compiled}
	r.order = append(r.order, spec.Name)
	return nil
}

func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	registered, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return registered, nil
}

// ListForModel returns the model-facing projection in registration order.
func (r *Registry) ListForModel() []completion.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	definitions := make([]completion.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		registered := r.tools[name]
		definitions = append(definitions, completion.ToolDefinition{
			Name:        registered.Name,
			Description: registered.Description,
			Parameters:  registered.Parameters,
		})
	}
	return definitions
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func compileSchema(name string, parameters map[string]any) (*jsonschema.Schema, error) {
	schemaBytes, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %q schema: %v", errInvalidDefinition, name, err)
	}
	schemaObj, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schemaBytes)))
	if err != nil {
		return nil, fmt.Errorf("%w: tool %q schema: %v", errInvalidDefinition, name, err)
	}

	resource := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resource, schemaObj); err != nil {
		return nil, fmt.Errorf("%w: tool %q schema: %v", errInvalidDefinition, name, err)
	}
	compiled, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %q schema: %v", errInvalidDefinition, name, err)
	}
	return compiled, nil
}
