// Package prepare computes derived data items from loaded data.
package prepare

import (
	"sort"

	"github.com/Dans-labs/laf-fabric/internal/api"
	fabricerrors "github.com/Dans-labs/laf-fabric/internal/errors"
)

// Preparer computes prepared (z) data items. The items it produces replace
// the main items with the same key in the task API.
type Preparer interface {
	Name() string
	Keys() []string
	Compute(a *api.API) (map[string]interface{}, error)
}

// Registry holds the known preparers by name
type Registry struct {
	preparers map[string]Preparer
}

// NewRegistry creates a registry with the given preparers
func NewRegistry(ps ...Preparer) *Registry {
	r := &Registry{preparers: make(map[string]Preparer)}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a preparer
func (r *Registry) Register(p Preparer) {
	r.preparers[p.Name()] = p
}

// Lookup finds a preparer by name
func (r *Registry) Lookup(name string) (Preparer, error) {
	p, ok := r.preparers[name]
	if !ok {
		return nil, fabricerrors.InvalidArgument("unknown preparer: "+name, nil)
	}
	return p, nil
}

// Names lists the registered preparers, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.preparers))
	for n := range r.preparers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run computes the items of a preparer, checking that it delivers exactly
// the keys it announces
func Run(p Preparer, a *api.API) (map[string]interface{}, error) {
	items, err := p.Compute(a)
	if err != nil {
		return nil, fabricerrors.PrepareFailed(p.Name(), err)
	}
	for _, k := range p.Keys() {
		if _, ok := items[k]; !ok {
			return nil, fabricerrors.PrepareFailed(p.Name(), fabricerrors.InternalError("missing item "+k, nil))
		}
	}
	return items, nil
}
