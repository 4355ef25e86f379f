package die

import (
	"debug/dwarf"
	"fmt"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coral-mesh/dwarfscope/internal/lru"
)

// TypeKey identifies a named construct independently of where it is
// declared: its tag plus its "::"-joined qualified name.
type TypeKey struct {
	Tag  dwarf.Tag
	Name string
}

func (k TypeKey) String() string {
	return fmt.Sprintf("%s %s", k.Tag, k.Name)
}

// TypeKeyOf returns the TypeKey of e.
func TypeKeyOf(e Entry) (TypeKey, error) {
	name, err := QualifiedName(e)
	if err != nil {
		return TypeKey{}, err
	}
	return TypeKey{Tag: e.Tag(), Name: name}, nil
}

// Locator finds the defining entry for a declaration-only entry.
//
// The search is read-only over info, so one Locator may serve concurrent
// callers as long as info stays alive for the duration of every call.
type Locator struct {
	info     Info
	logger   zerolog.Logger
	maxDepth int
	cache    *lru.Cache[TypeKey, Entry]
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithCache memoizes up to size lookups by TypeKey, including misses.
// A size of zero disables memoization.
func WithCache(size int) LocatorOption {
	return func(l *Locator) {
		if size > 0 {
			l.cache = lru.New[TypeKey, Entry](size)
		}
	}
}

// WithMaxDepth bounds both the parent chain walk and the depth of the
// definition search.
func WithMaxDepth(depth int) LocatorOption {
	return func(l *Locator) {
		if depth > 0 {
			l.maxDepth = depth
		}
	}
}

// NewLocator creates a Locator searching every unit of info.
func NewLocator(info Info, logger zerolog.Logger, opts ...LocatorOption) *Locator {
	l := &Locator{
		info:     info,
		logger:   logger.With().Str("component", "definition-locator").Logger(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FindDefinition returns the entry defining the construct decl declares:
// same tag, same qualified name, and no DW_AT_declaration marker. Units are
// searched in order, children in stream order, and the first match wins.
//
// A nil entry with a nil error means no unit defines it, which is common
// for types that live in other libraries.
func (l *Locator) FindDefinition(decl Entry) (Entry, error) {
	path, key, err := l.prepare(decl)
	if err != nil {
		return nil, err
	}
	if def, ok := l.cached(key); ok {
		return def, nil
	}

	units, err := l.info.Units()
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}

	for _, u := range units {
		def, err := l.searchUnit(u, decl.Tag(), path)
		if err != nil {
			return nil, err
		}
		if def != nil {
			l.store(key, def)
			return def, nil
		}
	}

	l.logger.Debug().Str("name", key.Name).Msg("No definition found")
	l.store(key, nil)
	return nil, nil
}

// FindDefinitionParallel behaves like FindDefinition but searches units
// concurrently. The result is the match from the earliest unit, exactly as
// the sequential search would return.
func (l *Locator) FindDefinitionParallel(decl Entry) (Entry, error) {
	path, key, err := l.prepare(decl)
	if err != nil {
		return nil, err
	}
	if def, ok := l.cached(key); ok {
		return def, nil
	}

	units, err := l.info.Units()
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}

	found := make([]Entry, len(units))
	errs := make([]error, len(units))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, u := range units {
		g.Go(func() error {
			found[i], errs[i] = l.searchUnit(u, decl.Tag(), path)
			return nil
		})
	}
	_ = g.Wait()

	for i := range units {
		if errs[i] != nil {
			return nil, errs[i]
		}
		if found[i] != nil {
			l.store(key, found[i])
			return found[i], nil
		}
	}

	l.store(key, nil)
	return nil, nil
}

func (l *Locator) prepare(decl Entry) ([]string, TypeKey, error) {
	path, err := fullName(decl, l.maxDepth)
	if err != nil {
		return nil, TypeKey{}, fmt.Errorf("failed to resolve name of entry %#x: %w", decl.Offset(), err)
	}
	return path, TypeKey{Tag: decl.Tag(), Name: strings.Join(path, Scope)}, nil
}

func (l *Locator) cached(key TypeKey) (Entry, bool) {
	if l.cache == nil {
		return nil, false
	}
	return l.cache.Get(key)
}

func (l *Locator) store(key TypeKey, def Entry) {
	if l.cache != nil {
		l.cache.Put(key, def)
	}
}

func (l *Locator) searchUnit(u Unit, tag dwarf.Tag, path []string) (Entry, error) {
	top, err := u.TopLevel()
	if err != nil {
		return nil, fmt.Errorf("failed to read unit %#x: %w", u.Offset(), err)
	}
	for _, root := range top {
		if def := l.search(root, tag, path, 0); def != nil {
			return def, nil
		}
	}
	return nil, nil
}

// search matches path against the namespace tree rooted at node. Each
// namespace level consumes one segment and unit roots consume none, so the
// recursion is bounded by len(path) plus the unit nesting, and by maxDepth.
func (l *Locator) search(node Entry, tag dwarf.Tag, path []string, depth int) Entry {
	if depth > l.maxDepth {
		l.logger.Warn().
			Uint32("offset", uint32(node.Offset())).
			Int("max_depth", l.maxDepth).
			Msg("Definition search exceeded depth limit, abandoning branch")
		return nil
	}

	name, hasName := NameOf(node)
	sameName := hasName && name == path[0]

	if len(path) == 1 && sameName && node.Tag() == tag && !IsDeclaration(node) {
		return node
	}

	switch {
	case IsNamespaceTag(node.Tag()):
		if !sameName || len(path) == 1 {
			return nil
		}
		path = path[1:]
	case IsUnitTag(node.Tag()):
		// Unit roots are descended without consuming a segment.
	default:
		return nil
	}

	for child := range node.Children() {
		if def := l.search(child, tag, path, depth+1); def != nil {
			return def
		}
	}
	return nil
}
