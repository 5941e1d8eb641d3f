package httpx

import (
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	goJwt "github.com/golang-jwt/jwt/v5"

	"github.com/superlearn/school-central/pkg/id"
	"github.com/superlearn/school-central/pkg/log"
)

// Locals keys set by the middleware below.
const (
	LocalUserID    = "userId"
	LocalRequestID = "requestId"
)

// RequestIDMiddleware assigns a correlation id to every request and carries
// it on the user context so provider calls can log it.
func RequestIDMiddleware(c *fiber.Ctx) error {
	reqID := c.Get("X-Request-Id")
	if reqID == "" {
		reqID = id.GetXID()
	}
	c.Locals(LocalRequestID, reqID)
	c.Set("X-Request-Id", reqID)
	c.SetUserContext(id.WithCorrelation(c.UserContext(), reqID))
	return c.Next()
}

// AccessLogMiddleware logs requests, excluding operational endpoints.
func AccessLogMiddleware(enabled bool) fiber.Handler {
	if !enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	excludedPaths := []string{"/health", "/metrics"}

	return logger.New(logger.Config{
		TimeFormat: time.RFC3339Nano,
		TimeZone:   "Local",
		Format:     "ip:[${ip}] method:[${method}] path:[${path}] latency:[${latency}] status:[${status}] reqId:[${locals:requestId}] error:[${error}]\n",
		Next: func(c *fiber.Ctx) bool {
			path := c.Path()
			for _, rule := range excludedPaths {
				if path == rule {
					return true
				}
			}
			return false
		},
	})
}

// ExceptionMiddleware recovers panics and answers with a generic error so
// stack details never reach the client.
func ExceptionMiddleware(c *fiber.Ctx) error {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic: %v\n%s", r, debug.Stack())
			_ = WithError(c, fiber.StatusInternalServerError, "internal error, please contact support")
		}
	}()
	return c.Next()
}

// AuthMiddleware validates the bearer token and sets the caller's user id.
// The webhook route is signature-verified instead and must not use this.
func AuthMiddleware(secretKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return WithError(c, fiber.StatusUnauthorized, "authorization required")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return WithError(c, fiber.StatusUnauthorized, "authorization format must be Bearer {token}")
		}

		claims, err := ParseToken(parts[1], secretKey)
		if err != nil {
			if errors.Is(err, goJwt.ErrTokenExpired) {
				return WithError(c, fiber.StatusUnauthorized, "token expired, please sign in again")
			}
			return WithError(c, fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(LocalUserID, claims.UserId)
		return c.Next()
	}
}
