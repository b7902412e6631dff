package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/template"
)

// QueryRunner dispatches a named domain query. It is the only way handlers
// reach storage or the outbound messenger.
type QueryRunner interface {
	Run(ctx context.Context, name string, params map[string]any) (map[string]any, error)
}

// Runtime is what a handler sees of the execution it runs in.
type Runtime struct {
	Execution *models.Execution
	Node      *models.Node
	Event     *models.InboundEvent
	Variables *Variables
	Queries   QueryRunner
	Logger    *slog.Logger
	Now       time.Time
}

// Render resolves placeholders in text.
func (rt *Runtime) Render(text string) (string, error) {
	r := rt.Variables.Renderer()
	out := r.Render(text)

	return out, r.Err()
}

// RenderAny resolves placeholders in every string of a config value.
func (rt *Runtime) RenderAny(value any) (any, error) {
	r := rt.Variables.Renderer()
	out := r.RenderAny(value)

	return out, r.Err()
}

// ErrUserVariables wraps a failure to compute the user.* variables. It is an
// infrastructure failure, not a handler outcome.
var ErrUserVariables = errors.New("failed to load user variables")

// Variables merges the three variable scopes with precedence
// local > computed user > project.
type Variables struct {
	local   map[string]any
	project map[string]any

	loadUser func() (map[string]any, error)
}

// NewVariables builds the merged view. loadUser returns the user.* variables
// without their prefix. It is not cached here: every Renderer and every Env
// call loads it again, so values reflect queries made earlier in the run.
func NewVariables(local, project map[string]any, loadUser func() (map[string]any, error)) *Variables {
	return &Variables{local: local, project: project, loadUser: loadUser}
}

// User computes the user variables now.
func (v *Variables) User() (map[string]any, error) {
	if v.loadUser == nil {
		return nil, nil
	}

	vars, err := v.loadUser()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserVariables, err)
	}

	return vars, nil
}

// Renderer returns a renderer over the current variables. The user scope is
// loaded on the first placeholder that needs it and reused for the rest of
// the renderer's life.
func (v *Variables) Renderer() *Renderer {
	user := template.Lazy(v.User)

	return &Renderer{
		user: user,
		scope: template.Chain(
			template.Vars(v.local),
			template.Under("user", user),
			template.Prefixed("project", v.project),
		),
	}
}

// Env is the nested map handed to expressions: project and user variables
// under their namespaces, locals at the top level overriding both. Dotted
// local keys are expanded into nested maps.
func (v *Variables) Env() (map[string]any, error) {
	user, err := v.User()
	if err != nil {
		return nil, err
	}

	env := map[string]any{
		"project": copyMap(v.project),
		"user":    copyMap(user),
	}

	for key, value := range v.local {
		setPath(env, strings.Split(key, "."), value)
	}

	return env, nil
}

// Renderer resolves templates. A failure to load user variables does not
// stop rendering; it is kept and reported by Err.
type Renderer struct {
	scope template.Scope
	user  *template.LazyScope
}

func (r *Renderer) Render(text string) string {
	return template.Render(text, r.scope)
}

func (r *Renderer) RenderAny(value any) any {
	return template.RenderAny(value, r.scope)
}

func (r *Renderer) Lookup(key string) (any, bool) {
	return r.scope.Lookup(key)
}

func (r *Renderer) Err() error {
	return r.user.Err()
}

func setPath(m map[string]any, path []string, value any) {
	if len(path) == 1 {
		m[path[0]] = value

		return
	}

	next, ok := m[path[0]].(map[string]any)
	if !ok {
		next = map[string]any{}
		m[path[0]] = next
	}

	setPath(next, path[1:], value)
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
