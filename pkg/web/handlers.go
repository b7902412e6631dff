// Package web provides HTTP handlers for authoring flows, publishing versions,
// operating executions and receiving chat events.
package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/botflow/pkg/engine"
	"github.com/dukex/botflow/pkg/eventbus"
	"github.com/dukex/botflow/pkg/events"
	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/registry"
	"github.com/dukex/botflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// EventHandler interprets a chat event synchronously.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *models.InboundEvent) (*engine.Outcome, error)
}

type APIHandlers struct {
	flowService       *services.Flow
	publishingService *services.Publishing
	executionService  *services.Execution
	validator         *validator.Validate
	registry          *registry.Registry
	events            EventHandler
	inbound           eventbus.InboundBus
}

// NewAPIHandlers wires the handlers. When inbound is set, chat events are
// queued on it; otherwise they are handed to handler directly.
func NewAPIHandlers(
	flowService *services.Flow,
	publishingService *services.Publishing,
	executionService *services.Execution,
	validator *validator.Validate,
	registry *registry.Registry,
	handler EventHandler,
	inbound eventbus.InboundBus,
) *APIHandlers {
	return &APIHandlers{
		flowService:       flowService,
		publishingService: publishingService,
		executionService:  executionService,
		validator:         validator,
		registry:          registry,
		events:            handler,
		inbound:           inbound,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())
	nodeTypes := len(h.registry.NodeTypes())

	status := "unhealthy"
	message := "Botflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk && nodeTypes > 0 {
		status = "healthy"
		message = "Botflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   strconv.Itoa(nodeTypes) + " node types registered",
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	return c.JSON(h.registry.NodeTypes())
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	req := services.ListFlowsRequest{ProjectID: c.Query("project_id")}

	var err error

	if req.Limit, req.Offset, err = pagination(c); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if status := c.Query("status"); status != "" {
		s := models.FlowStatus(status)
		req.Status = &s
	}

	result, err := h.flowService.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"flows":         result.Flows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flow, err := h.flowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.flowService.Create(c.Context(), req.Flow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.flowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	req.Apply(existing)

	updated, err := h.flowService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	if err := h.flowService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ValidateFlow reports the problems of a stored flow.
func (h *APIHandlers) ValidateFlow(c fiber.Ctx) error {
	problems, err := h.flowService.Validate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(NewValidationResponse(problems))
}

// InspectFlow reports the problems of a flow posted in the body, without
// storing it.
func (h *APIHandlers) InspectFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	return c.JSON(NewValidationResponse(h.flowService.Inspect(c.Context(), req.Flow())))
}

func (h *APIHandlers) PublishFlow(c fiber.Ctx) error {
	version, err := h.publishingService.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(version)
}

func (h *APIHandlers) GetVersions(c fiber.Ctx) error {
	versions, err := h.publishingService.Versions(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(versions)
}

func (h *APIHandlers) GetActiveVersion(c fiber.Ctx) error {
	version, err := h.publishingService.Active(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(version)
}

// RestoreVersion copies a version back into its draft flow.
func (h *APIHandlers) RestoreVersion(c fiber.Ctx) error {
	flow, err := h.publishingService.Restore(c.Context(), c.Params("versionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	req, err := parseListExecutionsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.executionService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func parseListExecutionsRequest(c fiber.Ctx) (*services.ListExecutionsRequest, error) {
	req := &services.ListExecutionsRequest{
		ProjectID: c.Query("project_id"),
		FlowID:    c.Query("flow_id"),
		Search:    c.Query("search"),
	}

	var err error

	if req.Limit, req.Offset, err = pagination(c); err != nil {
		return nil, err
	}

	if status := c.Query("status"); status != "" {
		s := models.ExecutionStatus(status)
		req.Status = &s
	}

	if req.StartedAfter, err = timeParam(c, "started_after"); err != nil {
		return nil, err
	}

	if req.StartedBefore, err = timeParam(c, "started_before"); err != nil {
		return nil, err
	}

	return req, nil
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	detail, err := h.executionService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) RestartExecution(c fiber.Ctx) error {
	var req services.RestartRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	detail, err := h.executionService.Restart(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	var req CancelExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	exec, err := h.executionService.Cancel(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(exec)
}

// ReceiveEvent is the inbound webhook of the chat transport.
func (h *APIHandlers) ReceiveEvent(c fiber.Ctx) error {
	var event models.InboundEvent
	if err := c.Bind().JSON(&event); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(event); err != nil {
		return badRequest(c, err.Error())
	}

	if h.inbound != nil {
		if err := h.inbound.PublishInbound(c.Context(), events.NewInboundReceived(&event)); err != nil {
			return internalError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(InboundResponse{Queued: true})
	}

	outcome, err := h.events.HandleEvent(c.Context(), &event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(NewInboundResponse(outcome))
}

func pagination(c fiber.Ctx) (int, int, error) {
	var limit, offset int

	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, err
		}

		limit = v
	}

	if s := c.Query("offset"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, err
		}

		offset = v
	}

	return limit, offset, nil
}

func timeParam(c fiber.Ctx, name string) (*time.Time, error) {
	s := strings.TrimSpace(c.Query(name))
	if s == "" {
		return nil, nil //nolint:nilnil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}

	return &t, nil
}
