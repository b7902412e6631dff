package web

import (
	"errors"

	"github.com/dukex/botflow/pkg/engine"
	"github.com/dukex/botflow/pkg/graph"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/dukex/botflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// authoringProblem extends the problem document with the flow's validation
// problems.
type authoringProblem struct {
	*problems.Problem

	Problems []graph.Problem `json:"problems"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	var authoring *graph.AuthoringError

	switch {
	case errors.As(err, &authoring):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("flow_invalid").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(authoringProblem{
			Problem:  problem,
			Problems: authoring.Problems,
		})

	case services.IsValidationError(err),
		errors.Is(err, engine.ErrInvalidEvent),
		errors.Is(err, persistence.ErrInvalidID):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, persistence.ErrFlowNotFound):
		return notFound(c, "flow_not_found", "flow not found")

	case errors.Is(err, persistence.ErrVersionNotFound):
		return notFound(c, "version_not_found", "version not found")

	case errors.Is(err, persistence.ErrExecutionNotFound):
		return notFound(c, "execution_not_found", "execution not found")

	case persistence.IsNotFound(err):
		return notFound(c, "not_found", err.Error())

	default:
		return internalError(c, err)
	}
}
