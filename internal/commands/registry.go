package commands

import (
	"context"
	"sort"

	"github.com/rendis/stepwise/pkg/schema"
)

// Builder collects commands before a run starts. Build freezes the set.
type Builder struct {
	commands map[string]Command
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		commands: make(map[string]Command),
	}
}

// Register adds a command. Returns error on nil, empty name or duplicate name.
func (b *Builder) Register(cmd Command) error {
	if cmd == nil {
		return schema.NewError(schema.ErrCodeValidation, "command is nil")
	}
	name := cmd.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "command name is empty")
	}
	if _, exists := b.commands[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "command %q already registered", name)
	}
	b.commands[name] = cmd
	return nil
}

// Alias registers an existing command under a second name.
func (b *Builder) Alias(alias, target string) error {
	cmd, ok := b.commands[target]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "cannot alias %q: command %q not registered", alias, target)
	}
	return b.Register(&aliasCommand{inner: cmd, name: alias})
}

// Build returns an immutable Registry holding the registered commands.
// The Builder may keep being used; later registrations do not affect
// registries already built.
func (b *Builder) Build() *Registry {
	cmds := make(map[string]Command, len(b.commands))
	for k, v := range b.commands {
		cmds[k] = v
	}
	return &Registry{commands: cmds}
}

// Registry maps command names to commands. It is read-only and safe to
// share between concurrent runs.
type Registry struct {
	commands map[string]Command
}

// Get retrieves a command by exact name.
func (r *Registry) Get(name string) (Command, error) {
	cmd, ok := r.commands[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownCommand, "command %q is not registered", name)
	}
	return cmd, nil
}

// Has checks if a command is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.commands[name]
	return ok
}

// Count returns the number of registered names, aliases included.
func (r *Registry) Count() int {
	return len(r.commands)
}

// List returns the descriptors of all registered names, sorted by name.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.commands))
	for name, cmd := range r.commands {
		d := cmd.Describe()
		d.Name = name
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Descriptor returns the contract of the named command.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	cmd, ok := r.commands[name]
	if !ok {
		return Descriptor{}, false
	}
	d := cmd.Describe()
	d.Name = name
	return d, true
}

// aliasCommand exposes a command under another name.
type aliasCommand struct {
	inner Command
	name  string
}

func (a *aliasCommand) Name() string { return a.name }

func (a *aliasCommand) Describe() Descriptor {
	d := a.inner.Describe()
	d.Name = a.name
	return d
}

func (a *aliasCommand) Execute(ctx context.Context, inv Invocation) (Outputs, error) {
	return a.inner.Execute(ctx, inv)
}
