package httpapi

// Auth REST surface, spec 6: a thin proxy in front of an external OIDC
// issuer plus the bearer-verification middleware the rest of the server
// runs behind. Deps.Verifier == nil disables the whole thing, per spec's
// "an auth-disabled mode must also exist for tests".

import (
	"strings"

	"github.com/gofiber/fiber/v3"
)

// publicPaths never require a bearer token even when auth is enabled.
var publicPaths = map[string]bool{
	"/health":                     true,
	"/.well-known/agent-card.json": true,
	"/auth/login":                 true,
	"/auth/refresh":                true,
	"/auth/status":                 true,
}

// authMiddleware rejects any request lacking a valid, unrevoked bearer
// token, except for publicPaths. Installed by NewServer only when
// Deps.Verifier is non-nil.
func (s *Server) authMiddleware(c fiber.Ctx) error {
	if publicPaths[c.Path()] {
		return c.Next()
	}

	claims, err := s.deps.Verifier.Verify(c.Context(), bearerToken(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	c.Locals("claims", claims)
	return c.Next()
}

func bearerToken(c fiber.Ctx) string {
	header := c.Get("Authorization")
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return rest
	}
	return header
}

func (s *Server) registerAuthRoutes() {
	s.app.Post("/auth/login", s.handleLogin)
	s.app.Post("/auth/refresh", s.handleRefresh)
	s.app.Post("/auth/logout", s.handleLogout)
	s.app.Get("/auth/me", s.handleMe)
	s.app.Get("/auth/status", s.handleAuthStatus)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c fiber.Ctx) error {
	if s.deps.OAuth == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "auth not configured"})
	}

	if !s.loginLimiter.Allow(c.IP()) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too many login attempts"})
	}

	var req loginRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	tok, err := s.deps.OAuth.PasswordLogin(c.Context(), req.Username, req.Password)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	if s.deps.Verifier != nil && s.deps.Sessions != nil {
		if claims, err := s.deps.Verifier.Verify(c.Context(), tok.AccessToken); err == nil {
			s.deps.Sessions.Start(claims.ID, claims)
		}
	}

	return c.JSON(tok)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(c fiber.Ctx) error {
	if s.deps.OAuth == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "auth not configured"})
	}

	var req refreshRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	tok, err := s.deps.OAuth.Refresh(c.Context(), req.RefreshToken)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(tok)
}

func (s *Server) handleLogout(c fiber.Ctx) error {
	if s.deps.Verifier == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "auth not configured"})
	}

	claims, err := s.deps.Verifier.Verify(c.Context(), bearerToken(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	s.deps.Verifier.Revoke(claims.ID)
	if s.deps.Sessions != nil {
		s.deps.Sessions.End(claims.ID)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleMe(c fiber.Ctx) error {
	if s.deps.Verifier == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "auth not configured"})
	}

	claims, err := s.deps.Verifier.Verify(c.Context(), bearerToken(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(claims)
}

func (s *Server) handleAuthStatus(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"enabled": s.deps.Verifier != nil})
}
