package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/swarm/pkg/auth"
)

const (
	principalKey = "principal"

	// AdminTokenHeader carries the shared admin token.
	AdminTokenHeader = "X-Admin-Token"
)

// requireAgent resolves the bearer API key of an agent route.
func (s *Server) requireAgent(c *fiber.Ctx) error {
	p, err := s.hub.AuthenticateAgent(c.UserContext(), bearer(c.Get(fiber.HeaderAuthorization)))
	if err != nil {
		return s.fail(c, err)
	}
	c.Locals(principalKey, p)
	return c.Next()
}

// requireAdmin resolves the admin credential: the X-Admin-Token header, the
// token query parameter or a bearer session token, in that order.
func (s *Server) requireAdmin(c *fiber.Ctx) error {
	credential := c.Get(AdminTokenHeader)
	if credential == "" {
		credential = c.Query("token")
	}
	if credential == "" {
		credential = bearer(c.Get(fiber.HeaderAuthorization))
	}

	p, err := s.hub.AuthenticateAdmin(c.UserContext(), credential)
	if err != nil {
		return s.fail(c, err)
	}
	c.Locals(principalKey, p)
	return c.Next()
}

func principal(c *fiber.Ctx) auth.Principal {
	p, _ := c.Locals(principalKey).(auth.Principal)
	return p
}

// bearer extracts the token of an "Authorization: Bearer" header value.
func bearer(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
