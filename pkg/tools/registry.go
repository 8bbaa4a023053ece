package tools

import (
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrUnknownTool   = goerr.New("unknown tool")
	ErrDuplicateTool = goerr.New("tool already registered")
	ErrInvalidTool   = goerr.New("invalid tool definition")
)

// Registry is the in-memory tool catalog. Names are matched case-insensitively
// and Describe keeps registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry constructs a registry seeded with the provided tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool using a lower-cased key.
func (r *Registry) Register(tool Tool) error {
	key := normalizeName(tool.Name)
	if key == "" {
		return goerr.Wrap(ErrInvalidTool, "tool name is empty")
	}
	if tool.Handler == nil {
		return goerr.Wrap(ErrInvalidTool, "tool has no handler", goerr.V("tool", tool.Name))
	}
	seen := make(map[string]struct{}, len(tool.Params))
	for _, p := range tool.Params {
		if p.Name == "" {
			return goerr.Wrap(ErrInvalidTool, "parameter name is empty", goerr.V("tool", tool.Name))
		}
		if _, dup := seen[p.Name]; dup {
			return goerr.Wrap(ErrInvalidTool, "parameter declared twice", goerr.V("tool", tool.Name), goerr.V("param", p.Name))
		}
		seen[p.Name] = struct{}{}
		switch p.Type {
		case TypeString, TypeNumber, TypeInteger, TypeBoolean:
		default:
			return goerr.Wrap(ErrInvalidTool, "unsupported parameter type",
				goerr.V("tool", tool.Name), goerr.V("param", p.Name), goerr.V("type", p.Type))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[key]; exists {
		return goerr.Wrap(ErrDuplicateTool, "cannot register tool", goerr.V("tool", tool.Name))
	}
	r.tools[key] = tool
	r.order = append(r.order, key)
	return nil
}

// Resolve returns the tool registered under name.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[normalizeName(name)]
	if !ok {
		return Tool{}, goerr.Wrap(ErrUnknownTool, "cannot resolve tool", goerr.V("tool", name))
	}
	return tool, nil
}

// Describe returns a snapshot of the catalog in registration order.
func (r *Registry) Describe() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.tools[key])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
