// Package lookup binds requested qualified names to the entries that
// define them across one or more images.
package lookup

import (
	"debug/dwarf"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/dwarfscope/pkg/die"
)

// ErrDuplicateRequest is returned when the same name is requested twice
// with the same kind.
var ErrDuplicateRequest = errors.New("duplicate name")

// Kind selects which entries may satisfy a request.
type Kind int

const (
	KindType Kind = iota
	KindVariable
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindVariable:
		return "variable"
	case KindFunction:
		return "function"
	default:
		return "type"
	}
}

// typeTags are the tags of named types a type request can bind to.
var typeTags = map[dwarf.Tag]struct{}{
	dwarf.TagStructType:      {},
	dwarf.TagClassType:       {},
	dwarf.TagUnionType:       {},
	dwarf.TagEnumerationType: {},
	dwarf.TagTypedef:         {},
	dwarf.TagBaseType:        {},
}

// Request is one qualified name to look for, e.g. "ns::Widget".
type Request struct {
	Kind Kind
	Name string
}

// Source is one image to search.
type Source struct {
	Name string
	Info die.Info
}

// Binding is a request together with the entry that satisfied it.
type Binding struct {
	Request
	Entry  die.Entry
	Source string
	Key    die.TypeKey
}

// Resolver collects requests, then walks every unit of every source once to
// bind them.
type Resolver struct {
	logger   zerolog.Logger
	sources  []Source
	locators []*die.Locator
	root     *namespace
	slots    []*slot
	report   func(msg string)
	problems int
}

// Option configures a Resolver.
type Option func(*resolverConfig)

type resolverConfig struct {
	report     func(msg string)
	locatorOps []die.LocatorOption
}

// WithReporter receives non-fatal problems such as names that were never
// found. By default they are logged at warn level.
func WithReporter(fn func(msg string)) Option {
	return func(c *resolverConfig) {
		c.report = fn
	}
}

// WithLocatorOptions configures the definition locators built for each
// source.
func WithLocatorOptions(opts ...die.LocatorOption) Option {
	return func(c *resolverConfig) {
		c.locatorOps = append(c.locatorOps, opts...)
	}
}

// NewResolver creates a resolver over sources, searched in order.
func NewResolver(logger zerolog.Logger, sources []Source, opts ...Option) *Resolver {
	var cfg resolverConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Resolver{
		logger:  logger.With().Str("component", "lookup-resolver").Logger(),
		sources: sources,
		root:    newNamespace(nil, ""),
		report:  cfg.report,
	}
	if r.report == nil {
		r.report = func(msg string) {
			r.logger.Warn().Msg(msg)
		}
	}
	for _, src := range sources {
		r.locators = append(r.locators, die.NewLocator(src.Info, logger, cfg.locatorOps...))
	}
	return r
}

// AddType requests a named type.
func (r *Resolver) AddType(name string) error {
	return r.add(Request{Kind: KindType, Name: name})
}

// AddVariable requests a variable.
func (r *Resolver) AddVariable(name string) error {
	return r.add(Request{Kind: KindVariable, Name: name})
}

// AddFunction requests a function.
func (r *Resolver) AddFunction(name string) error {
	return r.add(Request{Kind: KindFunction, Name: name})
}

func (r *Resolver) add(req Request) error {
	s, ok := r.root.add(splitRequest(req.Name), req)
	if !ok {
		r.problem(fmt.Sprintf("duplicate name: %s", req.Name))
		return fmt.Errorf("%w: %s %s", ErrDuplicateRequest, req.Kind, req.Name)
	}
	r.slots = append(r.slots, s)
	return nil
}

// Resolve walks the sources until every request is bound or every unit has
// been visited. Names that stay unbound are reported, not returned as
// errors; only failures to read the sources are.
func (r *Resolver) Resolve() error {
	for _, src := range r.sources {
		if r.done() {
			break
		}
		if err := r.resolveSource(src); err != nil {
			return fmt.Errorf("failed to search %s: %w", src.Name, err)
		}
	}

	for _, s := range r.slots {
		if s.entry != nil {
			continue
		}
		switch s.req.Kind {
		case KindType:
			r.problem(fmt.Sprintf("no type for %s", s.req.Name))
		case KindVariable:
			r.problem(fmt.Sprintf("variable %s not found", s.req.Name))
		case KindFunction:
			r.problem(fmt.Sprintf("function %s not found", s.req.Name))
		}
	}

	r.logger.Info().
		Int("requested", len(r.slots)).
		Int("unresolved", r.root.unresolved).
		Msg("Resolved requested names")
	return nil
}

func (r *Resolver) done() bool {
	return r.root.unresolved == 0
}

func (r *Resolver) resolveSource(src Source) error {
	units, err := src.Info.Units()
	if err != nil {
		return err
	}
	for _, u := range units {
		if r.done() {
			return nil
		}
		top, err := u.TopLevel()
		if err != nil {
			return err
		}
		for _, e := range top {
			if r.done() {
				return nil
			}
			r.examine(src, e, r.root)
		}
	}
	return nil
}

// examine visits e and, if e opens a scope with outstanding requests, its
// children. Only namespace-like entries with pending requests beneath them
// are descended, so the depth is bounded by the longest requested name.
func (r *Resolver) examine(src Source, e die.Entry, ns *namespace) {
	next := r.visit(src, e, ns)
	if next == nil {
		return
	}
	for child := range e.Children() {
		if r.done() {
			return
		}
		r.examine(src, child, next)
	}
}

// visit binds e if it satisfies a request in ns, and returns the scope to
// use for its children, or nil when they cannot hold anything requested.
func (r *Resolver) visit(src Source, e die.Entry, ns *namespace) *namespace {
	tag := e.Tag()
	if die.IsUnitTag(tag) {
		return ns
	}

	name, ok := die.NameOf(e)
	if !ok {
		return nil
	}

	if tag == dwarf.TagVariable {
		// Declarations are fine: extern variables are defined elsewhere.
		r.bind(ns, KindVariable, name, e, src)
		return nil
	}
	if die.IsDeclaration(e) {
		return nil
	}
	if tag == dwarf.TagSubprogram {
		r.bind(ns, KindFunction, name, e, src)
		return nil
	}

	if _, ok := typeTags[tag]; ok {
		r.bind(ns, KindType, name, e, src)
	}
	if die.IsNamespaceTag(tag) {
		return ns.subspaces[name]
	}
	return nil
}

func (r *Resolver) bind(ns *namespace, kind Kind, name string, e die.Entry, src Source) {
	if ns.bind(kind, name, e, src.Name) {
		r.logger.Debug().
			Str("kind", kind.String()).
			Str("name", name).
			Str("scope", ns.qualifiedName()).
			Str("source", src.Name).
			Msg("Bound requested name")
	}
}

// Bindings returns the bound requests in the order they were added.
func (r *Resolver) Bindings() []Binding {
	var out []Binding
	for _, s := range r.slots {
		if s.entry == nil {
			continue
		}
		b := Binding{Request: s.req, Entry: s.entry, Source: s.source}
		if key, err := die.TypeKeyOf(s.entry); err == nil {
			b.Key = key
		}
		out = append(out, b)
	}
	return out
}

// Unresolved returns the requests no entry satisfied, in the order they
// were added.
func (r *Resolver) Unresolved() []Request {
	var out []Request
	for _, s := range r.slots {
		if s.entry == nil {
			out = append(out, s.req)
		}
	}
	return out
}

// Problems returns how many non-fatal problems were reported.
func (r *Resolver) Problems() int {
	return r.problems
}

// Scopes returns the qualified names of every scope that holds requests,
// outermost first.
func (r *Resolver) Scopes() []string {
	var out []string
	r.root.walk(func(ns *namespace) {
		if ns.parent != nil {
			out = append(out, ns.qualifiedName())
		}
	})
	return out
}

// Definition returns the entry that defines e. An entry without a
// declaration marker is its own definition. Otherwise each source is
// searched in order; if none defines it, the problem is reported and e
// itself is returned so callers can still work with the declaration.
func (r *Resolver) Definition(e die.Entry) (die.Entry, error) {
	def, found, err := Definition(r.locators, e)
	if err != nil {
		return nil, err
	}
	if found {
		return def, nil
	}

	name, err := die.QualifiedName(e)
	if err != nil {
		return nil, err
	}
	r.problem(fmt.Sprintf("failed to find definition for %s", name))
	return e, nil
}

// Definition asks each locator in turn for the definition of decl and
// returns the first hit. An entry without a declaration marker is returned
// as is. When no locator knows the definition, decl is returned with found
// set to false.
func Definition(locators []*die.Locator, decl die.Entry) (def die.Entry, found bool, err error) {
	if !die.IsDeclaration(decl) {
		return decl, true, nil
	}
	for _, loc := range locators {
		def, err := loc.FindDefinition(decl)
		if err != nil {
			return nil, false, err
		}
		if def != nil {
			return def, true, nil
		}
	}
	return decl, false, nil
}

func (r *Resolver) problem(msg string) {
	r.problems++
	r.report(msg)
}
