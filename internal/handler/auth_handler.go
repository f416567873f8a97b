package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/ouldcheikh/labconsole/internal/domain"
	"github.com/ouldcheikh/labconsole/internal/session"
)

// AuthGateway is the slice of the upstream client behind the login screen.
type AuthGateway interface {
	Login(ctx context.Context, email string, password string) (string, json.RawMessage, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (json.RawMessage, error)
	ChangePassword(ctx context.Context, currentPassword string, newPassword string) error
}

type AuthHandler struct {
	gateway  AuthGateway
	sessions *session.Store
}

func NewAuthHandler(gateway AuthGateway, sessions *session.Store) (*AuthHandler, error) {
	if gateway == nil {
		return nil, fmt.Errorf("auth gateway is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	return &AuthHandler{
		gateway:  gateway,
		sessions: sessions,
	}, nil
}

func RegisterAuthRoutes(router fiber.Router, gateway AuthGateway, sessions *session.Store) error {
	h, err := NewAuthHandler(gateway, sessions)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/auth/login", h.Login)
	v1.Post("/auth/logout", h.Logout)
	v1.Get("/auth/me", h.Me)
	v1.Put("/auth/change-password", h.ChangePassword)

	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return fmt.Errorf("%w: email and password are required", domain.ErrValidation)
	}

	token, user, err := h.gateway.Login(c.Context(), email, req.Password)
	if err != nil {
		return err
	}
	if err := h.sessions.Save(c.Context(), token, user); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"user": user},
	})
}

// Logout clears the local session even when the upstream call fails; the
// operator asked to leave and the token is gone either way.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	upstreamErr := h.gateway.Logout(c.Context())
	if err := h.sessions.Clear(c.Context()); err != nil {
		return err
	}
	if upstreamErr != nil {
		return upstreamErr
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	data, err := h.gateway.Me(c.Context())
	if err != nil {
		return err
	}
	return respondRaw(c, data)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return fmt.Errorf("%w: currentPassword and newPassword are required", domain.ErrValidation)
	}

	if err := h.gateway.ChangePassword(c.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
	})
}
