// Package agent implements the tool registry and the retrieve→reason→
// dispatch→re-reason orchestration loop.
package agent

import (
	"context"
	"fmt"
	"sort"

	"contextd/src/core/fault"
	"contextd/src/infrastructure/log"
)

// Property describes a single tool parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Schema declares a tool's parameters in JSON-schema object form.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// HandlerFunc executes a tool with validated arguments. Returned errors are
// captured into the call result and never propagate to the orchestrator.
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Tool is a named, schema-described action the reasoning step may request.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
	Handler     HandlerFunc
}

// Call records one dispatched tool invocation.
type Call struct {
	Name    string                 `json:"name"`
	Args    map[string]interface{} `json:"args"`
	Result  interface{}            `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Success bool                   `json:"success"`
}

// Registry holds the declared tools. It is populated during startup and
// read-only afterwards, so concurrent Dispatch calls need no locking.
type Registry struct {
	tools map[string]Tool
	names []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a name twice is an error; there is no
// silent overwrite.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fault.Validationf("tool name must not be empty")
	}
	if t.Handler == nil {
		return fault.Validationf("tool %q has no handler", t.Name)
	}
	if _, exists := r.tools[t.Name]; exists {
		return fault.Validationf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.names = append(r.names, t.Name)
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.tools[name])
	}
	return out
}

// Dispatch validates args against the tool's schema and invokes its
// handler. Every failure mode, including a panicking handler, is converted
// into an error-carrying Call; Dispatch itself never fails.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]interface{}) Call {
	call := Call{Name: name, Args: args}

	tool, ok := r.tools[name]
	if !ok {
		call.Error = fmt.Sprintf("unknown tool: %s", name)
		return call
	}

	if err := validateArgs(tool.Parameters, args); err != nil {
		call.Error = err.Error()
		return call
	}

	result, err := invoke(ctx, tool, args)
	if err != nil {
		call.Error = err.Error()
		return call
	}

	call.Result = result
	call.Success = true
	return call
}

// invoke runs the handler, converting a panic into an error so one broken
// tool cannot abort the orchestration.
func invoke(ctx context.Context, tool Tool, args map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error(nil, "tool handler panicked", "tool", tool.Name, "panic", fmt.Sprint(rec))
			err = fmt.Errorf("tool %s panicked: %v", tool.Name, rec)
		}
	}()
	return tool.Handler(ctx, args)
}

func validateArgs(schema Schema, args map[string]interface{}) error {
	var missing []string
	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required arguments: %v", missing)
	}

	for name, value := range args {
		prop, declared := schema.Properties[name]
		if !declared {
			continue
		}
		if !typeConforms(prop.Type, value) {
			return fmt.Errorf("argument %q must be of type %s", name, prop.Type)
		}
	}
	return nil
}

// typeConforms checks a decoded JSON value against a schema type name.
// Numbers arrive as float64 after JSON decoding; an integer parameter
// additionally requires an integral value.
func typeConforms(declared string, value interface{}) bool {
	if value == nil {
		return true
	}
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		return isNumber(value)
	case "integer":
		switch v := value.(type) {
		case float64:
			return v == float64(int64(v))
		case float32:
			return v == float32(int64(v))
		case int, int32, int64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	default:
		return true
	}
}

func isNumber(value interface{}) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64:
		return true
	default:
		return false
	}
}
