// Package tools implements the local capabilities declared to the model and
// the dispatcher that round-trips function calls back as structured
// responses.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/sightline-ai/sightline/pkg/core/live"
)

const defaultToolTimeout = 30 * time.Second

// Handler executes one tool call and returns a structured payload.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

type entry struct {
	decl    *genai.FunctionDeclaration
	handler Handler
}

// Registry holds the registered tools and dispatches inbound calls to them.
// Every dispatched call produces exactly one response, even on failure: a
// failed or unknown tool is answered with an error payload rather than
// silence, so the model's turn is never left hanging.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
	timeout time.Duration
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]entry),
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a tool. Registering a duplicate name is an error.
func (r *Registry) Register(decl *genai.FunctionDeclaration, handler Handler) error {
	if decl == nil || decl.Name == "" {
		return errors.New("tool declaration must have a name")
	}
	if handler == nil {
		return fmt.Errorf("tool %q has no handler", decl.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[decl.Name]; exists {
		return fmt.Errorf("tool %q already registered", decl.Name)
	}
	r.entries[decl.Name] = entry{decl: decl, handler: handler}
	return nil
}

// Declarations returns all registered tools grouped into a single tool
// declaration for session setup.
func (r *Registry) Declarations() []*genai.Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(r.entries))
	for _, e := range r.entries {
		decls = append(decls, e.decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Dispatch executes call asynchronously and invokes respond exactly once.
func (r *Registry) Dispatch(ctx context.Context, call live.FunctionCall, respond func(id, name string, response map[string]any)) {
	r.mu.Lock()
	e, ok := r.entries[call.Name]
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("unsupported tool requested", "tool", call.Name)
		respond(call.ID, call.Name, map[string]any{
			"error": fmt.Sprintf("unsupported tool %q", call.Name),
		})
		return
	}

	go func() {
		toolCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		output, err := e.handler(toolCtx, call.Args)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			respond(call.ID, call.Name, map[string]any{"error": "tool execution timed out"})
		case err != nil:
			r.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
			respond(call.ID, call.Name, map[string]any{"error": err.Error()})
		default:
			respond(call.ID, call.Name, output)
		}
	}()
}
