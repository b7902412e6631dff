package web

import "github.com/gofiber/fiber/v3"

// Register mounts every API route on r.
func (h *APIHandlers) Register(r fiber.Router) {
	r.Get("/health", h.HealthCheck)
	r.Get("/node-types", h.GetNodeTypes)

	f := r.Group("/flows")
	f.Get("/", h.GetFlows)
	f.Post("/", h.CreateFlow)
	f.Post("/inspect", h.InspectFlow)
	f.Get("/:id", h.GetFlow)
	f.Patch("/:id", h.UpdateFlow)
	f.Delete("/:id", h.DeleteFlow)
	f.Post("/:id/validate", h.ValidateFlow)
	f.Post("/:id/publish", h.PublishFlow)
	f.Get("/:id/versions", h.GetVersions)
	f.Get("/:id/versions/active", h.GetActiveVersion)

	r.Post("/versions/:versionId/restore", h.RestoreVersion)

	e := r.Group("/executions")
	e.Get("/", h.GetExecutions)
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/restart", h.RestartExecution)
	e.Post("/:id/cancel", h.CancelExecution)

	r.Post("/inbound", h.ReceiveEvent)
}
