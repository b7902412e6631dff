// Package web provides HTTP request and response types for the flow API.
package web

import (
	"github.com/dukex/botflow/pkg/engine"
	"github.com/dukex/botflow/pkg/graph"
	"github.com/dukex/botflow/pkg/models"
)

// CreateFlowRequest represents the request body for creating a draft flow.
type CreateFlowRequest struct {
	ProjectID   string                         `json:"project_id"             validate:"required"`
	Name        string                         `json:"name"                   validate:"required,min=3"`
	Description string                         `json:"description"`
	EntryNodeID string                         `json:"entry_node_id"`
	Nodes       []*models.Node                 `json:"nodes"`
	Connections []*models.Connection           `json:"connections"`
	Variables   map[string]models.VariableDecl `json:"variables,omitempty"`
	Settings    map[string]any                 `json:"settings,omitempty"`
}

func (r CreateFlowRequest) Flow() *models.Flow {
	return &models.Flow{
		ProjectID:   r.ProjectID,
		Name:        r.Name,
		Description: r.Description,
		EntryNodeID: r.EntryNodeID,
		Nodes:       orEmpty(r.Nodes),
		Connections: orEmpty(r.Connections),
		Variables:   r.Variables,
		Settings:    r.Settings,
	}
}

// UpdateFlowRequest represents the request body for updating a draft flow.
// All fields are optional to support partial updates.
type UpdateFlowRequest struct {
	Name        *string                        `json:"name,omitempty"          validate:"omitempty,min=3"`
	Description *string                        `json:"description,omitempty"`
	EntryNodeID *string                        `json:"entry_node_id,omitempty"`
	Nodes       []*models.Node                 `json:"nodes,omitempty"`
	Connections []*models.Connection           `json:"connections,omitempty"`
	Variables   map[string]models.VariableDecl `json:"variables,omitempty"`
	Settings    map[string]any                 `json:"settings,omitempty"`
}

// Apply merges the set fields into an existing flow.
func (r UpdateFlowRequest) Apply(flow *models.Flow) {
	if r.Name != nil {
		flow.Name = *r.Name
	}

	if r.Description != nil {
		flow.Description = *r.Description
	}

	if r.EntryNodeID != nil {
		flow.EntryNodeID = *r.EntryNodeID
	}

	if r.Nodes != nil {
		flow.Nodes = r.Nodes
	}

	if r.Connections != nil {
		flow.Connections = r.Connections
	}

	if r.Variables != nil {
		flow.Variables = r.Variables
	}

	if r.Settings != nil {
		flow.Settings = r.Settings
	}
}

type CancelExecutionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ValidationResponse lists every authoring problem of a flow.
type ValidationResponse struct {
	Valid    bool            `json:"valid"`
	Problems []graph.Problem `json:"problems"`
}

func NewValidationResponse(problems []graph.Problem) ValidationResponse {
	return ValidationResponse{Valid: !graph.HasErrors(problems), Problems: problems}
}

// InboundResponse summarises what the engine did with a chat event.
type InboundResponse struct {
	Queued      bool                   `json:"queued,omitempty"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	Status      models.ExecutionStatus `json:"status,omitempty"`
	Started     bool                   `json:"started"`
	Resumed     bool                   `json:"resumed"`
	Ignored     bool                   `json:"ignored"`
	Reason      string                 `json:"reason,omitempty"`
	Steps       int                    `json:"steps"`
}

func NewInboundResponse(out *engine.Outcome) InboundResponse {
	resp := InboundResponse{
		Started: out.Started,
		Resumed: out.Resumed,
		Ignored: out.Ignored,
		Reason:  out.Reason,
		Steps:   out.Steps,
	}

	if out.Execution != nil {
		resp.ExecutionID = out.Execution.ID
		resp.Status = out.Execution.Status
	}

	return resp
}

func orEmpty[T any](items []*T) []*T {
	if items == nil {
		return []*T{}
	}

	return items
}
