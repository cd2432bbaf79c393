package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"otp-auth/internal/domain"
	"otp-auth/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de autenticacion.
type AuthHandler struct {
	logger   *zap.Logger
	authServ *service.AuthService
	jwtServ  *service.JWTService
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, authServ *service.AuthService, jwtServ *service.JWTService) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		authServ: authServ,
		jwtServ:  jwtServ,
	}
}

// Signup maneja POST /api/auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		failJSON(c, http.StatusBadRequest, "Please provide all required fields")
		return
	}

	user, err := h.authServ.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			failJSON(c, http.StatusBadRequest, "Please provide all required fields")
		case errors.Is(err, service.ErrUserExists):
			failJSON(c, http.StatusConflict, "User already exists with this email")
		case errors.Is(err, service.ErrEmailSendFailure):
			failJSON(c, http.StatusServiceUnavailable, "Error sending verification email. Please try again.")
		default:
			h.logger.Error("signup failed", zap.Error(err))
			failJSON(c, http.StatusInternalServerError, "Server error during signup")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Registration successful. OTP sent to your email.",
		"data": gin.H{
			"user_id": user.ID,
			"email":   user.Email,
			"name":    user.Name,
		},
	})
}

// VerifyOTP maneja POST /api/auth/verify-otp.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify otp request", zap.Error(err))
		failJSON(c, http.StatusBadRequest, "Please provide email and OTP")
		return
	}

	user, err := h.authServ.VerifyOTP(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			failJSON(c, http.StatusBadRequest, "Please provide email and OTP")
		case errors.Is(err, service.ErrUserNotFound):
			failJSON(c, http.StatusNotFound, "User not found")
		case errors.Is(err, service.ErrOTPNotRequested), errors.Is(err, service.ErrOTPInvalid):
			failJSON(c, http.StatusBadRequest, "Invalid OTP")
		case errors.Is(err, service.ErrOTPExpired):
			failJSON(c, http.StatusBadRequest, "OTP has expired. Please request a new one.")
		default:
			h.logger.Error("verify otp failed", zap.Error(err))
			failJSON(c, http.StatusInternalServerError, "Server error during OTP verification")
		}
		return
	}

	tokens, err := h.issueTokens(user)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		failJSON(c, http.StatusInternalServerError, "Could not issue tokens")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Email verified successfully",
		"data":    gin.H{"user": user, "tokens": tokens},
	})
}

// Login maneja POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		failJSON(c, http.StatusBadRequest, "Please provide email and password")
		return
	}

	user, err := h.authServ.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			failJSON(c, http.StatusBadRequest, "Please provide email and password")
		case errors.Is(err, service.ErrInvalidCredentials):
			failJSON(c, http.StatusUnauthorized, "Invalid credentials")
		case errors.Is(err, service.ErrNotVerified):
			failJSON(c, http.StatusUnauthorized, "Please verify your email first")
		default:
			h.logger.Error("login failed", zap.Error(err))
			failJSON(c, http.StatusInternalServerError, "Server error during login")
		}
		return
	}

	tokens, err := h.issueTokens(user)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		failJSON(c, http.StatusInternalServerError, "Could not issue tokens")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful",
		"data":    gin.H{"user": user, "tokens": tokens},
	})
}

// ForgotPassword maneja POST /api/auth/forgot-password.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid forgot password request", zap.Error(err))
		failJSON(c, http.StatusBadRequest, "Please provide email")
		return
	}

	if err := h.authServ.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			failJSON(c, http.StatusBadRequest, "Please provide email")
		case errors.Is(err, service.ErrUserNotFound):
			failJSON(c, http.StatusNotFound, "No user found with this email")
		case errors.Is(err, service.ErrEmailSendFailure):
			failJSON(c, http.StatusServiceUnavailable, "Error sending reset email. Please try again.")
		default:
			h.logger.Error("forgot password failed", zap.Error(err))
			failJSON(c, http.StatusInternalServerError, "Server error")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Password reset OTP sent to your email",
	})
}

// ResetPassword maneja POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required,email"`
		Code        string `json:"code" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reset password request", zap.Error(err))
		failJSON(c, http.StatusBadRequest, "Please provide email, OTP, and new password")
		return
	}

	if err := h.authServ.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			failJSON(c, http.StatusBadRequest, "Please provide email, OTP, and new password")
		case errors.Is(err, service.ErrUserNotFound):
			failJSON(c, http.StatusNotFound, "User not found")
		case errors.Is(err, service.ErrOTPNotRequested), errors.Is(err, service.ErrOTPInvalid):
			failJSON(c, http.StatusBadRequest, "Invalid OTP")
		case errors.Is(err, service.ErrOTPExpired):
			failJSON(c, http.StatusBadRequest, "OTP has expired. Please request a new one.")
		default:
			h.logger.Error("reset password failed", zap.Error(err))
			failJSON(c, http.StatusInternalServerError, "Server error during password reset")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Password reset successful. You can now login with your new password.",
	})
}

// ResendOTP maneja POST /api/auth/resend-otp.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid resend otp request", zap.Error(err))
		failJSON(c, http.StatusBadRequest, "Please provide email")
		return
	}

	if err := h.authServ.ResendOTP(c.Request.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			failJSON(c, http.StatusBadRequest, "Please provide email")
		case errors.Is(err, service.ErrUserNotFound):
			failJSON(c, http.StatusNotFound, "User not found")
		case errors.Is(err, service.ErrAlreadyVerified):
			failJSON(c, http.StatusConflict, "User is already verified")
		case errors.Is(err, service.ErrEmailSendFailure):
			failJSON(c, http.StatusServiceUnavailable, "Error sending OTP email. Please try again.")
		default:
			h.logger.Error("resend otp failed", zap.Error(err))
			failJSON(c, http.StatusInternalServerError, "Server error")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "New OTP sent to your email",
	})
}

// RefreshToken maneja POST /api/auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		failJSON(c, http.StatusBadRequest, "Please provide refresh token")
		return
	}
	if h.jwtServ == nil {
		failJSON(c, http.StatusInternalServerError, "JWT not configured")
		return
	}
	tokens, err := h.jwtServ.RefreshPair(req.RefreshToken)
	if err != nil {
		failJSON(c, http.StatusUnauthorized, "Invalid token")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Token refreshed",
		"data":    gin.H{"tokens": tokens},
	})
}

// Profile maneja GET /api/auth/profile (protegida).
func (h *AuthHandler) Profile(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		failJSON(c, http.StatusUnauthorized, "Invalid token")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"user": gin.H{
				"id":          claims.UserID,
				"email":       claims.Email,
				"name":        claims.Name,
				"is_verified": claims.EmailVerified,
			},
		},
	})
}

func (h *AuthHandler) issueTokens(user domain.User) (service.TokenPair, error) {
	if h.jwtServ == nil {
		return service.TokenPair{}, errors.New("jwt not configured")
	}
	return h.jwtServ.GeneratePair(user)
}

func failJSON(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
