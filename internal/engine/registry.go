package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"google.golang.org/genai"
)

// Sentinel errors for the tool registry.
var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrToolAlreadyExists = errors.New("tool already registered")
	ErrToolEmptyName     = errors.New("tool name is empty")
	ErrMaxIterations     = errors.New("agent loop exceeded its iteration budget")
)

// Tool describes a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  *genai.Schema
}

// Handler is the function signature for tool implementations.
// Handlers receive the request context and JSON-encoded arguments from the model.
type Handler func(ctx context.Context, args json.RawMessage) (Result, error)

// Result is the tool execution output that feeds back into the next model turn.
type Result struct {
	Content string
	IsError bool
}

type entry struct {
	tool    Tool
	handler Handler
}

// Registry holds the tools an engine may execute. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool. Returns ErrToolAlreadyExists for duplicate names.
func (r *Registry) Register(tool Tool, handler Handler) error {
	if tool.Name == "" {
		return ErrToolEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyExists, tool.Name)
	}
	r.entries[tool.Name] = entry{tool: tool, handler: handler}
	return nil
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.entries))
	for _, e := range r.entries {
		tools = append(tools, e.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Execute dispatches a call to the named tool's handler.
// Handler errors are wrapped with the tool name.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	r.mu.RLock()
	e, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	result, err := e.handler(ctx, args)
	if err != nil {
		return Result{}, fmt.Errorf("tool %s execution failed: %w", name, err)
	}
	return result, nil
}

// declarations converts the registry into the model's function declarations.
func (r *Registry) declarations() []*genai.Tool {
	tools := r.List()
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
