package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/service"
)

// Mensaje genérico para emisión de códigos: no revela si la cuenta existe.
const otpRequestedMessage = "if this account exists, a code has been sent"

// AuthHandler mantiene dependencias para endpoints de autenticación.
type AuthHandler struct {
	logger       *zap.Logger
	userServ     *service.UserService
	sessionServ  *service.SessionService
	cookieDomain string
	cookieSecure bool
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, userServ *service.UserService, sessionServ *service.SessionService, cookieDomain string, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		logger:       logger,
		userServ:     userServ,
		sessionServ:  sessionServ,
		cookieDomain: cookieDomain,
		cookieSecure: cookieSecure,
	}
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	identity, err := service.ParseIdentity(req.Identity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity"})
		return
	}

	user, err := h.userServ.Register(c.Request.Context(), service.RegisterInput{
		Identity: identity,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateIdentity):
			c.JSON(http.StatusConflict, gin.H{"error": "identity already registered"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		case errors.Is(err, service.ErrDeliveryFailure):
			// La cuenta y el código quedaron persistidos; solo falló el envío.
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "code delivery unavailable, try requesting a new code"})
		default:
			h.logger.Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user, "status": "otp_sent"})
}

// RequestOTP maneja POST /auth/otp/request.
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	h.issueChallenge(c)
}

// ForgotPassword maneja POST /auth/password/forgot.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	h.issueChallenge(c)
}

// issueChallenge comparte la emisión entre request y forgot. Una identidad
// desconocida recibe la misma respuesta que una conocida.
func (h *AuthHandler) issueChallenge(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	identity, err := service.ParseIdentity(req.Identity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity"})
		return
	}

	_, err = h.userServ.RequestOTP(c.Request.Context(), identity)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			// Sin fuga de existencia: misma respuesta que el caso exitoso.
			c.JSON(http.StatusOK, gin.H{"status": "otp_sent", "message": otpRequestedMessage})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		case errors.Is(err, service.ErrDeliveryFailure):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "code delivery unavailable, try requesting a new code"})
		default:
			h.logger.Error("request otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not request otp"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "otp_sent", "message": otpRequestedMessage})
}

// VerifyOTP maneja POST /auth/otp/verify.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
		Code     string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	identity, err := service.ParseIdentity(req.Identity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity"})
		return
	}

	user, err := h.userServ.VerifyOTP(c.Request.Context(), identity, req.Code)
	if err != nil {
		h.writeOTPError(c, err, "verify otp failed")
		return
	}

	h.establishSession(c, user, user.Role, gin.H{"user": user})
}

// OTPLogin maneja POST /auth/otp/login.
func (h *AuthHandler) OTPLogin(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
		Code     string `json:"code" binding:"required"`
		LoginAs  string `json:"login_as"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	identity, err := service.ParseIdentity(req.Identity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity"})
		return
	}

	user, err := h.userServ.LoginWithOTP(c.Request.Context(), identity, req.Code)
	if err != nil {
		if errors.Is(err, service.ErrAccountDisabled) {
			c.JSON(http.StatusForbidden, gin.H{"error": "account disabled"})
			return
		}
		h.writeOTPError(c, err, "otp login failed")
		return
	}

	h.establishSession(c, user, req.LoginAs, gin.H{"user": user})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
		Password string `json:"password" binding:"required"`
		LoginAs  string `json:"login_as"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	identity, err := service.ParseIdentity(req.Identity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity"})
		return
	}

	user, err := h.userServ.Authenticate(c.Request.Context(), identity, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		case errors.Is(err, service.ErrNotVerified):
			c.JSON(http.StatusForbidden, gin.H{"error": "account not verified"})
		case errors.Is(err, service.ErrAccountDisabled):
			c.JSON(http.StatusForbidden, gin.H{"error": "account disabled"})
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not login"})
		}
		return
	}

	h.establishSession(c, user, req.LoginAs, gin.H{"user": user})
}

// OAuthLogin maneja POST /auth/oauth.
func (h *AuthHandler) OAuthLogin(c *gin.Context) {
	var req struct {
		Provider string `json:"provider" binding:"required"`
		Subject  string `json:"subject" binding:"required"`
		Email    string `json:"email"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid oauth request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.userServ.UpsertOAuthUser(c.Request.Context(), service.OAuthInput{
		Provider: req.Provider,
		Subject:  req.Subject,
		Email:    req.Email,
		Name:     req.Name,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOAuthInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth data"})
		case errors.Is(err, service.ErrAccountDisabled):
			c.JSON(http.StatusForbidden, gin.H{"error": "account disabled"})
		default:
			h.logger.Error("oauth login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not complete oauth"})
		}
		return
	}

	h.establishSession(c, user, user.Role, gin.H{"user": user})
}

// ResetPassword maneja POST /auth/password/reset.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Identity    string `json:"identity" binding:"required"`
		Code        string `json:"code" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid password reset request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	identity, err := service.ParseIdentity(req.Identity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity"})
		return
	}

	_, err = h.userServ.ResetPassword(c.Request.Context(), identity, req.Code, req.NewPassword)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password too short"})
			return
		}
		h.writeOTPError(c, err, "password reset failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "password_updated"})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, err := c.Cookie(SessionCookieName)
	if err == nil && token != "" {
		if err := h.sessionServ.Destroy(token); err != nil {
			h.logger.Warn("destroy session failed", zap.Error(err))
		}
	}
	c.SetCookie(SessionCookieName, "", -1, "/", h.cookieDomain, h.cookieSecure, true)
	c.Status(http.StatusNoContent)
}

// Me maneja GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	session, ok := GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	user, err := h.userServ.GetByID(c.Request.Context(), session.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("load current user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// establishSession comprueba la superficie de login contra el rol, crea la
// sesión y adjunta la cookie. Ante un rol que no coincide no se crea sesión.
func (h *AuthHandler) establishSession(c *gin.Context, user domain.User, surface string, body gin.H) {
	token, err := h.sessionServ.Issue(user, surface)
	if err != nil {
		if errors.Is(err, service.ErrRoleMismatch) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden for this login surface"})
			return
		}
		h.logger.Error("issue session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}

	maxAge := int(h.sessionServ.TTL().Seconds())
	c.SetCookie(SessionCookieName, token, maxAge, "/", h.cookieDomain, h.cookieSecure, true)
	c.JSON(http.StatusOK, body)
}

// writeOTPError mapea la taxonomía de fallos de verificación a estados HTTP.
func (h *AuthHandler) writeOTPError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, service.ErrOTPNotRequested),
		errors.Is(err, service.ErrOTPExpired),
		errors.Is(err, service.ErrOTPInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(logMsg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify otp"})
	}
}
