package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/botflow/pkg/eventbus"
	"github.com/dukex/botflow/pkg/events"
	"github.com/dukex/botflow/pkg/graph"
	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
)

// ProjectInvalidator drops cached state of a project after a publish.
type ProjectInvalidator interface {
	InvalidateProject(projectID string)
}

// Publishing turns flows into immutable, active versions.
type Publishing struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	builder     graph.NodeBuilder
	invalidator ProjectInvalidator
	publisher   eventbus.EventPublisher
}

// NewPublishing creates a new publishing service. invalidator and publisher
// may be nil.
func NewPublishing(
	logger *slog.Logger,
	persistence persistence.Persistence,
	builder graph.NodeBuilder,
	invalidator ProjectInvalidator,
	publisher eventbus.EventPublisher,
) *Publishing {
	return &Publishing{
		logger:      logger.With("module", "publishing"),
		persistence: persistence,
		builder:     builder,
		invalidator: invalidator,
		publisher:   publisher,
	}
}

// Publish validates a flow and makes a snapshot of it the single active
// version of the flow.
func (p *Publishing) Publish(ctx context.Context, flowID string) (*models.Version, error) {
	flow, err := p.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	if err := p.validateForPublishing(ctx, flow); err != nil {
		return nil, err
	}

	version := flow.Snapshot()

	if err := p.persistence.VersionRepository().Publish(ctx, version); err != nil {
		return nil, fmt.Errorf("failed to publish flow: %w", err)
	}

	if flow.Status != models.FlowStatusPublished {
		flow.Status = models.FlowStatusPublished

		if err := p.persistence.FlowRepository().Save(ctx, flow); err != nil {
			return nil, fmt.Errorf("failed to mark flow published: %w", err)
		}
	}

	if p.invalidator != nil {
		p.invalidator.InvalidateProject(flow.ProjectID)
	}

	p.logger.InfoContext(ctx, "Flow published",
		"flow_id", flow.ID,
		"version_id", version.ID,
		"number", version.Number)

	if p.publisher != nil {
		err := p.publisher.Publish(ctx, version.FlowID, events.NewFlowPublished(version))
		if err != nil {
			p.logger.WarnContext(ctx, "Failed to publish flow event", "flow_id", flow.ID, "error", err)
		}
	}

	return version, nil
}

// Versions lists the versions of a flow, newest first.
func (p *Publishing) Versions(ctx context.Context, flowID string) ([]*models.Version, error) {
	if _, err := p.persistence.FlowRepository().GetByID(ctx, flowID); err != nil {
		return nil, err
	}

	return p.persistence.VersionRepository().ListByFlow(ctx, flowID)
}

// Active returns the active version of a flow.
func (p *Publishing) Active(ctx context.Context, flowID string) (*models.Version, error) {
	return p.persistence.VersionRepository().Active(ctx, flowID)
}

// Restore copies the graph of a version back into its flow so that it can be
// edited and published again.
func (p *Publishing) Restore(ctx context.Context, versionID string) (*models.Flow, error) {
	version, err := p.persistence.VersionRepository().GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	flow, err := p.persistence.FlowRepository().GetByID(ctx, version.FlowID)
	if err != nil {
		return nil, err
	}

	snapshot := (&models.Flow{
		EntryNodeID: version.EntryNodeID,
		Nodes:       version.Nodes,
		Connections: version.Connections,
		Variables:   version.Variables,
		Settings:    version.Settings,
	}).Snapshot()

	flow.EntryNodeID = snapshot.EntryNodeID
	flow.Nodes = snapshot.Nodes
	flow.Connections = snapshot.Connections
	flow.Variables = snapshot.Variables
	flow.Settings = snapshot.Settings

	if err := p.persistence.FlowRepository().Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to restore flow: %w", err)
	}

	return flow, nil
}

// validateForPublishing ensures a flow is ready to be published.
func (p *Publishing) validateForPublishing(ctx context.Context, flow *models.Flow) error {
	if flow == nil {
		return ErrFlowNil
	}

	if strings.TrimSpace(flow.Name) == "" {
		return NewValidationError("Publish", "FLOW_NAME_REQUIRED", "flow name cannot be empty", ErrFlowNameRequired)
	}

	if len(flow.Nodes) == 0 {
		return NewValidationError("Publish", "NODES_REQUIRED", "flow must have at least one node", ErrNodesRequired)
	}

	problems := graph.Validate(ctx, graph.FromFlow(flow), p.builder)
	if graph.HasErrors(problems) {
		authoring := &graph.AuthoringError{Problems: graph.Errors(problems)}

		return &ServiceError{
			Op:      "Publish",
			Code:    "VALIDATION_FAILED",
			Message: authoring.Error(),
			Err:     fmt.Errorf("%w: %w", ErrValidationFailed, authoring),
		}
	}

	return nil
}
