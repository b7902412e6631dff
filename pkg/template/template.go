// Package template resolves {namespace.key} placeholders against layered variable scopes.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/cast"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\}`)

// Scope looks up a dotted variable key.
type Scope interface {
	Lookup(key string) (any, bool)
}

// Vars is a flat or nested variable bag. A dotted key is first looked up as-is
// and then walked as a path through nested maps.
type Vars map[string]any

func (v Vars) Lookup(key string) (any, bool) {
	if v == nil {
		return nil, false
	}

	if value, ok := v[key]; ok {
		return value, true
	}

	parts := strings.Split(key, ".")
	if len(parts) == 1 {
		return nil, false
	}

	var current any = map[string]any(v)

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// Prefixed exposes a bag under a namespace, so {project.name} reads "name".
func Prefixed(namespace string, vars map[string]any) Scope {
	return Under(namespace, Vars(vars))
}

// Under exposes a scope under a namespace.
func Under(namespace string, scope Scope) Scope {
	return prefixed{namespace: namespace + ".", scope: scope}
}

type prefixed struct {
	namespace string
	scope     Scope
}

func (p prefixed) Lookup(key string) (any, bool) {
	rest, ok := strings.CutPrefix(key, p.namespace)
	if !ok {
		return nil, false
	}

	return p.scope.Lookup(rest)
}

// LazyScope defers loading its variables until the first lookup. The loader
// runs at most once per LazyScope; build a new one to see fresh values.
type LazyScope struct {
	once sync.Once
	load func() (map[string]any, error)
	vars Vars
	err  error
}

// Lazy returns a scope backed by load. A loader error leaves the scope empty
// and is reported by Err.
func Lazy(load func() (map[string]any, error)) *LazyScope {
	return &LazyScope{load: load}
}

func (l *LazyScope) Lookup(key string) (any, bool) {
	l.once.Do(func() {
		l.vars, l.err = l.load()
	})

	if l.err != nil {
		return nil, false
	}

	return l.vars.Lookup(key)
}

// Err returns the loader error, if the loader ran and failed.
func (l *LazyScope) Err() error {
	return l.err
}

// Chain merges scopes; the first scope that knows a key wins.
func Chain(scopes ...Scope) Scope {
	return chain(scopes)
}

type chain []Scope

func (c chain) Lookup(key string) (any, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}

		if value, ok := s.Lookup(key); ok {
			return value, true
		}
	}

	return nil, false
}

// Render substitutes every placeholder. Unknown placeholders become empty strings.
func Render(tmpl string, scope Scope) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}

	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[1 : len(match)-1]

		value, ok := lookup(scope, key)
		if !ok {
			return ""
		}

		return Format(value)
	})
}

// RenderValue renders a template but keeps the original type when the whole
// string is a single placeholder, so "{user.balance}" stays numeric.
func RenderValue(tmpl string, scope Scope) any {
	trimmed := strings.TrimSpace(tmpl)

	loc := placeholderPattern.FindStringSubmatchIndex(trimmed)
	if loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
		value, ok := lookup(scope, trimmed[loc[2]:loc[3]])
		if !ok {
			return ""
		}

		return value
	}

	return Render(tmpl, scope)
}

// RenderAny walks maps and slices, rendering every string leaf with RenderValue.
func RenderAny(value any, scope Scope) any {
	switch v := value.(type) {
	case string:
		return RenderValue(v, scope)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = RenderAny(item, scope)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = RenderAny(item, scope)
		}

		return out
	default:
		return v
	}
}

// Placeholders lists the keys referenced by a template, in order of appearance.
func Placeholders(tmpl string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(tmpl, -1)

	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m[1])
	}

	return keys
}

// Format turns a resolved value into the text that replaces its placeholder.
func Format(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(b)
	}

	s, err := cast.ToStringE(value)
	if err != nil {
		return fmt.Sprint(value)
	}

	return s
}

func lookup(scope Scope, key string) (any, bool) {
	if scope == nil {
		return nil, false
	}

	return scope.Lookup(key)
}
