package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vitaspro/storefront/internal/webserver"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const adminSubject = "admin"

type loginPayload struct {
	Password string `json:"password" validate:"required,max=128"`
}

type loginResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func registerAuthRoutes() {
	webserver.PubPOST("/login", Login)
}

// Login exchanges the admin password for a token
// @Summary admin login
// @Tags Auth
// @Param login body loginPayload true "Admin password"
// @Success 200 {object} loginResult
// @Router /api/v1/login [post]
func Login(c echo.Context) error {
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request parameters", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	web := GetAppContext(c).Config().Web
	if web.AdminPassword == "" {
		return fail(c, http.StatusServiceUnavailable, "ADMIN_DISABLED", "No admin password is configured", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(web.AdminPassword), []byte(payload.Password)); err != nil {
		zap.L().Warn("admin login failed", zap.String("namespace", "adminapi"), zap.String("ip", c.RealIP()))
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Wrong password", nil)
	}

	token, expires, err := webserver.IssueToken(web.Secret, adminSubject, web.TokenTTL)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to issue token", err.Error())
	}
	return ok(c, loginResult{Token: token, ExpiresAt: expires.Unix()})
}
