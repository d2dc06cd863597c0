package growth

import (
	"percipio.com/growbench/lib/runner"
)

// TargetCapacity is the number of elements every strategy must accommodate.
const TargetCapacity = 1000

const (
	NameDefaultCapacity = "initializeDefaultCapacity"
	NameZeroCapacity    = "initializeZeroCapacity"
	NameTargetCapacity  = "initializeTargetCapacity"
	NameMinimalThenGrow = "initializeMinimalThenGrow"
)

// minimalCapacity is the smallest non-zero backing array.
const minimalCapacity = 1

// Sink keeps the last constructed vector reachable so the allocation cannot
// be optimised away.
var Sink Vector

func InitializeDefaultCapacity(f Factory) {
	v := f.New()
	v.Reserve(TargetCapacity)
	Sink = v
}

func InitializeZeroCapacity(f Factory) {
	v := f.WithCapacity(0)
	v.Reserve(TargetCapacity)
	Sink = v
}

func InitializeTargetCapacity(f Factory) {
	Sink = f.WithCapacity(TargetCapacity)
}

func InitializeMinimalThenGrow(f Factory) {
	v := f.WithCapacity(minimalCapacity)
	v.Reserve(TargetCapacity)
	Sink = v
}

// Operations returns the four strategies bound to f, in registration order.
func Operations(f Factory) []runner.Operation {
	return []runner.Operation{
		{Name: NameDefaultCapacity, Fn: func() { InitializeDefaultCapacity(f) }},
		{Name: NameZeroCapacity, Fn: func() { InitializeZeroCapacity(f) }},
		{Name: NameTargetCapacity, Fn: func() { InitializeTargetCapacity(f) }},
		{Name: NameMinimalThenGrow, Fn: func() { InitializeMinimalThenGrow(f) }},
	}
}

// Registry resolves operation names for fork children and CLI filters.
type Registry struct {
	ops []runner.Operation
}

func NewRegistry(f Factory) *Registry {
	return &Registry{ops: Operations(f)}
}

func (r *Registry) Lookup(name string) (runner.Operation, bool) {
	for _, op := range r.ops {
		if op.Name == name {
			return op, true
		}
	}
	return runner.Operation{}, false
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.ops))
	for i, op := range r.ops {
		names[i] = op.Name
	}
	return names
}

// Select returns the operations named in filter, keeping registration order.
// An empty filter selects everything. Unknown names are returned separately.
func (r *Registry) Select(filter []string) ([]runner.Operation, []string) {
	if len(filter) == 0 {
		return append([]runner.Operation(nil), r.ops...), nil
	}
	wanted := make(map[string]bool, len(filter))
	for _, name := range filter {
		wanted[name] = true
	}
	var selected []runner.Operation
	for _, op := range r.ops {
		if wanted[op.Name] {
			selected = append(selected, op)
			delete(wanted, op.Name)
		}
	}
	var unknown []string
	for _, name := range filter {
		if wanted[name] {
			unknown = append(unknown, name)
			delete(wanted, name)
		}
	}
	return selected, unknown
}
