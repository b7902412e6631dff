package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/botflow/pkg/graph"
	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrFlowNotFound is returned when a flow is not found.
	ErrFlowNotFound = persistence.ErrFlowNotFound
)

// Flow manages authoring-time flows.
type Flow struct {
	persistence persistence.Persistence
	builder     graph.NodeBuilder
	validate    *validator.Validate
}

// NewFlow creates a new flow service. The builder is used to check node
// configurations when a flow is validated.
func NewFlow(persistence persistence.Persistence, builder graph.NodeBuilder) *Flow {
	return &Flow{
		persistence: persistence,
		builder:     builder,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the persistence layer.
func (f *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if f.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := f.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListFlowsRequest contains options for listing flows.
type ListFlowsRequest struct {
	Limit     int
	Offset    int
	ProjectID string
	Status    *models.FlowStatus
}

// ListFlowsResponse contains the result of listing flows.
type ListFlowsResponse struct {
	Flows       []*models.Flow `json:"flows"`
	TotalCount  int64          `json:"total_count"`
	HasNextPage bool           `json:"has_next_page"`
}

// List retrieves flows with filtering and pagination, newest first.
func (f *Flow) List(ctx context.Context, req ListFlowsRequest) (*ListFlowsResponse, error) {
	if err := f.validateListFlowsRequest(&req); err != nil {
		return nil, err
	}

	result, err := f.persistence.FlowRepository().List(ctx, persistence.ListFlowsOptions{
		ProjectID: req.ProjectID,
		Status:    req.Status,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	return &ListFlowsResponse{
		Flows:       result.Flows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

func (f *Flow) validateListFlowsRequest(req *ListFlowsRequest) error {
	req.Limit = persistence.NormalizeLimit(req.Limit)

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Status != nil {
		allowed := []models.FlowStatus{models.FlowStatusDraft, models.FlowStatusPublished}

		if !slices.Contains(allowed, *req.Status) {
			return NewValidationError(
				"validateListFlowsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	if req.ProjectID != "" {
		req.ProjectID = strings.TrimSpace(req.ProjectID)
		if req.ProjectID == "" {
			return ErrEmptyProjectID
		}
	}

	return nil
}

// FetchByID retrieves a flow by its ID.
func (f *Flow) FetchByID(ctx context.Context, id string) (*models.Flow, error) {
	return f.persistence.FlowRepository().GetByID(ctx, id)
}

// Create adds a new draft flow. The graph may be incomplete; it is only
// checked in full when the flow is published.
func (f *Flow) Create(ctx context.Context, flow *models.Flow) (*models.Flow, error) {
	if err := f.check("Create", flow); err != nil {
		return nil, err
	}

	flow.ID = ""
	flow.Status = models.FlowStatusDraft

	err := f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow: %w", err)
	}

	return flow, nil
}

// Update replaces the graph of an existing flow. Published versions are not
// affected until the flow is published again.
func (f *Flow) Update(ctx context.Context, flowID string, flow *models.Flow) (*models.Flow, error) {
	existing, err := f.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if err := f.check("Update", flow); err != nil {
		return nil, err
	}

	flow.ID = flowID
	flow.ProjectID = existing.ProjectID
	flow.Status = existing.Status
	flow.CreatedAt = existing.CreatedAt

	err = f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to update flow: %w", err)
	}

	return flow, nil
}

// Delete removes a flow and its versions.
func (f *Flow) Delete(ctx context.Context, flowID string) error {
	err := f.persistence.FlowRepository().Delete(ctx, flowID)
	if err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}

	return nil
}

// Validate runs the graph validator over a stored flow.
func (f *Flow) Validate(ctx context.Context, flowID string) ([]graph.Problem, error) {
	flow, err := f.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	return f.Inspect(ctx, flow), nil
}

// Inspect runs the graph validator over a flow that need not be stored.
func (f *Flow) Inspect(ctx context.Context, flow *models.Flow) []graph.Problem {
	problems := graph.Validate(ctx, graph.FromFlow(flow), f.builder)
	if problems == nil {
		problems = []graph.Problem{}
	}

	return problems
}

func (f *Flow) check(op string, flow *models.Flow) error {
	if flow == nil {
		return ErrFlowNil
	}

	if strings.TrimSpace(flow.Name) == "" {
		return NewValidationError(op, "FLOW_NAME_REQUIRED", "flow name is required", ErrFlowNameRequired)
	}

	if err := f.validate.Struct(flow); err != nil {
		return NewValidationError(op, "INVALID_FLOW", err.Error(), ErrInvalidRequest)
	}

	return nil
}
