package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/swarm/pkg/agents"
	"github.com/papercomputeco/swarm/pkg/auth"
	"github.com/papercomputeco/swarm/pkg/hub"
	"github.com/papercomputeco/swarm/pkg/storage"
	"github.com/papercomputeco/swarm/pkg/users"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// statusOf maps the hub error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, auth.ErrUnauthenticated):
		return fiber.StatusUnauthorized
	case errors.Is(err, auth.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, hub.ErrValidation):
		return fiber.StatusBadRequest
	case storage.IsNotFound(err):
		return fiber.StatusNotFound
	case errors.Is(err, agents.ErrExists), errors.Is(err, users.ErrEmailTaken):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes err as a JSON error. Internal failures are logged and their
// message is not leaked to the caller.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	code := statusOf(err)
	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
		msg = "internal error"
	}
	return c.Status(code).JSON(ErrorResponse{Error: msg})
}

func (s *Server) handleFiberError(c *fiber.Ctx, err error) error {
	return s.fail(c, err)
}

// decode unmarshals the request body into v. An empty body leaves v
// untouched.
func decode(c *fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: malformed body: %w", hub.ErrValidation, err)
	}
	return nil
}
