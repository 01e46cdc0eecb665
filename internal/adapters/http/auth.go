package http

import (
	"errors"
	"log"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/aetherhost/internal/auth"
	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/core/ports"
	"github.com/melih/aetherhost/internal/logutil"
)

const (
	localUser  = "user"
	localToken = "token"

	minPasswordLength = 8
)

type AuthHandler struct {
	users  ports.UserRepository
	issuer *auth.Issuer
}

func NewAuthHandler(users ports.UserRepository, issuer *auth.Issuer) *AuthHandler {
	return &AuthHandler{users: users, issuer: issuer}
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return sendError(c, fiber.StatusBadRequest, "A valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return sendError(c, fiber.StatusBadRequest, "Password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return sendError(c, fiber.StatusInternalServerError, err.Error())
	}
	user, err := h.users.CreateUser(c.UserContext(), domain.User{Email: req.Email, Username: req.Username}, hash)
	if errors.Is(err, domain.ErrUserExists) {
		return sendError(c, fiber.StatusBadRequest, "Email already registered")
	}
	if err != nil {
		return sendError(c, fiber.StatusInternalServerError, err.Error())
	}

	log.Printf("[auth] new user %d (%s)", user.ID, logutil.SanitizeForLog(user.Email))
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	user, hash, err := h.users.GetUserByEmail(c.UserContext(), req.Email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return sendError(c, fiber.StatusInternalServerError, err.Error())
	}
	if err != nil || !user.IsActive || !auth.VerifyPassword(hash, req.Password) {
		return sendError(c, fiber.StatusUnauthorized, "Invalid email or password")
	}

	token, err := h.issuer.Issue(user.Email)
	if err != nil {
		return sendError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

// RequireUser authenticates the bearer token and stores the user in Locals.
// The token may also come from the "token" query parameter because browsers
// cannot set headers on a WebSocket upgrade.
func (h *AuthHandler) RequireUser(c *fiber.Ctx) error {
	token, ok := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" {
		return sendError(c, fiber.StatusUnauthorized, "Not authenticated")
	}

	email, err := h.issuer.Verify(token)
	if err != nil {
		return sendError(c, fiber.StatusUnauthorized, "Invalid token")
	}
	user, _, err := h.users.GetUserByEmail(c.UserContext(), email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return sendError(c, fiber.StatusNotFound, "User not found in database")
	}
	if err != nil {
		return sendError(c, fiber.StatusInternalServerError, err.Error())
	}
	if !user.IsActive {
		return sendError(c, fiber.StatusUnauthorized, "Account is disabled")
	}

	c.Locals(localUser, user)
	c.Locals(localToken, token)
	return c.Next()
}

func currentUser(c *fiber.Ctx) domain.User {
	user, _ := c.Locals(localUser).(domain.User)
	return user
}
