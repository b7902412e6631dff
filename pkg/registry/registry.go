// Package registry maps node type strings to their factories.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrUnknownNodeType is returned for a type string with no registered factory.
	ErrUnknownNodeType = errors.New("unknown node type")
	// ErrInvalidNodeConfig wraps schema and decoding failures.
	ErrInvalidNodeConfig = errors.New("invalid node config")
)

// Registry is populated once at start-up and read-only afterwards.
type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.NodeFactory
	schemas   map[string]*gojsonschema.Schema
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		factories: make(map[string]protocol.NodeFactory),
		schemas:   make(map[string]*gojsonschema.Schema),
	}
}

// RegisterNode adds a factory. The schema is compiled up front so a broken
// built-in schema fails at start-up, not on the first flow that uses it.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(factory.Schema()))
	if err != nil {
		panic(fmt.Sprintf("node type %s: invalid schema: %v", factory.ID(), err))
	}

	r.factories[factory.ID()] = factory
	r.schemas[factory.ID()] = schema

	r.logger.Debug("Registered node type", "type", factory.ID())
}

// GetAvailableNodes returns every factory sorted by type.
func (r *Registry) GetAvailableNodes() []protocol.NodeFactory {
	out := make([]protocol.NodeFactory, 0, len(r.factories))
	for _, f := range r.factories {
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })

	return out
}

// NodeTypes describes the registered types for API clients.
func (r *Registry) NodeTypes() []models.NodeTypeInfo {
	factories := r.GetAvailableNodes()

	out := make([]models.NodeTypeInfo, 0, len(factories))
	for _, f := range factories {
		out = append(out, models.NodeTypeInfo{
			Type:        f.ID(),
			Name:        f.Name(),
			Description: f.Description(),
			Category:    f.Category(),
			Schema:      f.Schema(),
		})
	}

	return out
}

// Has reports whether a type is registered.
func (r *Registry) Has(nodeType string) bool {
	_, ok := r.factories[nodeType]

	return ok
}

// ValidateConfig checks a node's config against its type schema.
func (r *Registry) ValidateConfig(node *models.Node) error {
	schema, ok := r.schemas[node.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNodeType, node.Type)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(node.Settings()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNodeConfig, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidNodeConfig, strings.Join(msgs, "; "))
	}

	return nil
}

// CreateNode validates the config, builds the instance and checks that it
// implements the capability its factory declares.
func (r *Registry) CreateNode(ctx context.Context, node *models.Node) (protocol.Node, error) {
	factory, ok := r.factories[node.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, node.Type)
	}

	if err := r.ValidateConfig(node); err != nil {
		return nil, err
	}

	instance, err := factory.Create(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNodeConfig, err)
	}

	if !implements(instance, factory.Category()) {
		return nil, fmt.Errorf("node type %s does not implement %s", node.Type, factory.Category())
	}

	return instance, nil
}

func implements(n protocol.Node, category models.CategoryType) bool {
	switch category {
	case models.CategoryTypeTrigger:
		_, ok := n.(protocol.Trigger)

		return ok
	case models.CategoryTypeCondition:
		_, ok := n.(protocol.Condition)

		return ok
	case models.CategoryTypeAction:
		_, ok := n.(protocol.Action)

		return ok
	case models.CategoryTypeFlowControl:
		_, ok := n.(protocol.FlowControl)

		return ok
	default:
		return false
	}
}
