package toolbus

import "fmt"

// Registry holds each tool's descriptor and invocation handler. Registration
// is a one-time setup action performed before a server begins accepting
// connections; afterwards the registry is read-only and safe for concurrent
// lookup by any number of in-flight dispatches without locking.
type Registry struct {
	tools map[string]registeredTool
	order []string
}

type registeredTool struct {
	desc    ToolDescriptor
	handler Handler
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]registeredTool),
	}
}

// Register adds a tool and its handler. Registering a name that already
// exists fails with a CallError of kind ErrorKindDuplicateTool and leaves
// the original entry intact.
func (r *Registry) Register(desc ToolDescriptor, handler Handler) error {
	if desc.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("tool %q has no handler", desc.Name)
	}
	if _, ok := r.tools[desc.Name]; ok {
		return &CallError{
			Kind:    ErrorKindDuplicateTool,
			Message: fmt.Sprintf("tool %q is already registered", desc.Name),
		}
	}

	r.tools[desc.Name] = registeredTool{desc: desc, handler: handler}
	r.order = append(r.order, desc.Name)

	return nil
}

// Lookup returns the descriptor and handler registered under name.
func (r *Registry) Lookup(name string) (ToolDescriptor, Handler, bool) {
	t, ok := r.tools[name]
	if !ok {
		return ToolDescriptor{}, nil, false
	}
	return t.desc, t.handler, true
}

// List returns all descriptors in registration order, so discovery requests
// are answered deterministically.
func (r *Registry) List() []ToolDescriptor {
	descs := make([]ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		descs = append(descs, r.tools[name].desc)
	}
	return descs
}
