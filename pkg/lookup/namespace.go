package lookup

import (
	"sort"
	"strings"

	"github.com/coral-mesh/dwarfscope/pkg/die"
)

// namespace holds the requested names that live directly in one scope and
// the nested scopes that contain further requests. Only scopes with
// outstanding requests are descended during the walk.
type namespace struct {
	parent     *namespace
	name       string
	types      map[string]*slot
	variables  map[string]*slot
	functions  map[string]*slot
	subspaces  map[string]*namespace
	unresolved int
}

// slot records the entry bound to one request, if any.
type slot struct {
	req    Request
	entry  die.Entry
	source string
}

func newNamespace(parent *namespace, name string) *namespace {
	return &namespace{
		parent:    parent,
		name:      name,
		types:     make(map[string]*slot),
		variables: make(map[string]*slot),
		functions: make(map[string]*slot),
		subspaces: make(map[string]*namespace),
	}
}

// qualifiedName joins the scope names from the root down; the root itself
// has no name.
func (ns *namespace) qualifiedName() string {
	if ns.parent == nil {
		return ""
	}
	if outer := ns.parent.qualifiedName(); outer != "" {
		return outer + die.Scope + ns.name
	}
	return ns.name
}

func (ns *namespace) container(kind Kind) map[string]*slot {
	switch kind {
	case KindVariable:
		return ns.variables
	case KindFunction:
		return ns.functions
	default:
		return ns.types
	}
}

// add inserts req under the scope path given by names. It reports false if
// the leaf name is already requested with the same kind.
func (ns *namespace) add(names []string, req Request) (*slot, bool) {
	if len(names) == 1 {
		c := ns.container(req.Kind)
		if _, dup := c[names[0]]; dup {
			return nil, false
		}
		s := &slot{req: req}
		c[names[0]] = s
		ns.incUnresolved()
		return s, true
	}

	sub, ok := ns.subspaces[names[0]]
	if !ok {
		sub = newNamespace(ns, names[0])
		ns.subspaces[names[0]] = sub
	}
	return sub.add(names[1:], req)
}

// incUnresolved counts an outstanding request. A scope counts toward its
// parent while it has any outstanding requests at all.
func (ns *namespace) incUnresolved() {
	if ns.unresolved == 0 && ns.parent != nil {
		ns.parent.incUnresolved()
	}
	ns.unresolved++
}

func (ns *namespace) decUnresolved() {
	ns.unresolved--
	if ns.unresolved == 0 && ns.parent != nil {
		ns.parent.decUnresolved()
	}
}

// bind attaches e to the request for name, if that request is still open.
func (ns *namespace) bind(kind Kind, name string, e die.Entry, source string) bool {
	s, ok := ns.container(kind)[name]
	if !ok || s.entry != nil {
		return false
	}
	s.entry = e
	s.source = source
	ns.decUnresolved()
	return true
}

// walk visits ns and every nested scope, in name order.
func (ns *namespace) walk(fn func(*namespace)) {
	fn(ns)
	names := make([]string, 0, len(ns.subspaces))
	for name := range ns.subspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ns.subspaces[name].walk(fn)
	}
}

func splitRequest(name string) []string {
	return strings.Split(strings.TrimPrefix(name, die.Scope), die.Scope)
}
