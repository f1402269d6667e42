package httpapi

// Agent-card and discovery endpoints: spec 4.1's unauthenticated descriptor
// and 4.3's registry-backed discovery list, served straight off the broker
// Registry the rest of the server also publishes registrations through.

import "github.com/gofiber/fiber/v3"

func (s *Server) handleAgentCard(c fiber.Ctx) error {
	return c.JSON(s.deps.Card)
}

func (s *Server) handleDiscoverAgents(c fiber.Ctx) error {
	if s.deps.AgentRegistry == nil {
		return c.JSON([]any{})
	}
	return c.JSON(s.deps.AgentRegistry.Discover())
}
