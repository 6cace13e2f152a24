package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"clinic-frontdesk-server/internal/config"
	"clinic-frontdesk-server/internal/middleware"
	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/utils"
)

const refreshCookie = "refresh_token"

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	DB  *gorm.DB
	Cfg *config.Config
	Log *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{DB: db, Cfg: cfg, Log: log}
}

// LoginRequest represents the request body for user login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response body for successful login.
type LoginResponse struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	User         models.UserSanitized `json:"user"`
}

// Login handles user login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Invalid username or password")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	if !user.CheckPassword(req.Password) {
		h.Log.Warn("failed login", zap.String("username", req.Username), zap.String("client_ip", c.ClientIP()))
		utils.Unauthorized(c, "Invalid username or password")
		return
	}
	if !user.IsActive {
		utils.Forbidden(c, "Account is disabled")
		return
	}

	accessToken, refreshToken, ok := h.issueTokens(c, &user)
	if !ok {
		return
	}

	h.Log.Info("user logged in", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	utils.Success(c, "Login successful", LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Sanitize(),
	})
}

// RefreshTokenRequest represents the request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshTokenResponse represents the response body for successful token refresh.
type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken exchanges a valid refresh token for a new token pair. The
// presented token is revoked, so each refresh token works once.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	// The HTTP-only cookie wins; the body is for clients without cookies.
	presented, err := c.Cookie(refreshCookie)
	if err != nil || presented == "" {
		var req RefreshTokenRequest
		if !utils.BindAndValidate(c, &req) {
			return
		}
		presented = req.RefreshToken
	}

	claims, err := utils.ValidateToken(presented, h.Cfg.JWTRefreshSecret)
	if err != nil {
		utils.Unauthorized(c, "Invalid refresh token structure or signature: "+err.Error())
		return
	}

	var user models.User
	var accessToken, refreshToken string
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var stored models.RefreshToken
		if err := tx.Where("token = ? AND user_id = ? AND is_revoked = ? AND expires_at > ?",
			presented, claims.UserID, false, time.Now()).First(&stored).Error; err != nil {
			return err
		}

		// Revoke only if still live so two concurrent refreshes cannot both win.
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND is_revoked = ?", stored.ID, false).
			Update("is_revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.First(&user, claims.UserID).Error; err != nil {
			return err
		}
		if !user.IsActive {
			return errAccountDisabled
		}

		var signErr error
		accessToken, refreshToken, signErr = utils.GenerateTokens(&user, h.Cfg)
		if signErr != nil {
			return signErr
		}
		return tx.Omit("User").Create(&models.RefreshToken{
			UserID:    user.ID,
			Token:     refreshToken,
			ExpiresAt: time.Now().Add(utils.RefreshTokenTTL(h.Cfg)),
		}).Error
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
		return
	case errors.Is(err, errAccountDisabled):
		utils.Forbidden(c, "Account is disabled")
		return
	case err != nil:
		utils.InternalServerError(c, "Failed to refresh tokens: "+err.Error())
		return
	}

	h.setRefreshCookie(c, refreshToken, int(utils.RefreshTokenTTL(h.Cfg).Seconds()))
	utils.Success(c, "Access token refreshed successfully", RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

var errAccountDisabled = errors.New("account is disabled")

// LogoutRequest represents the request body for user logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout revokes the presented refresh token. Unknown or already revoked
// tokens still log out successfully.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		req.RefreshToken, _ = c.Cookie(refreshCookie)
	}
	if req.RefreshToken == "" {
		utils.BadRequest(c, "Refresh token is required")
		return
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	res := h.DB.Model(&models.RefreshToken{}).
		Where("token = ? AND user_id = ? AND is_revoked = ?", req.RefreshToken, userID, false).
		Updates(map[string]interface{}{"is_revoked": true, "expires_at": time.Now()})
	if res.Error != nil {
		utils.InternalServerError(c, "Failed to revoke refresh token: "+res.Error.Error())
		return
	}

	h.setRefreshCookie(c, "", -1)
	if res.RowsAffected == 0 {
		utils.Success(c, "Logout successful (token not found or already invalid).", nil)
		return
	}
	utils.Success(c, "Logout successful. Refresh token has been invalidated.", nil)
}

// GetProfile handles fetching the currently authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}

// UpdateProfileRequest represents the request body for updating user profile.
type UpdateProfileRequest struct {
	FullName string `json:"fullName" binding:"required,max=200"`
}

// UpdateProfile handles updating the currently authenticated user's profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	user.FullName = req.FullName
	if err := h.DB.Model(user).Update("full_name", user.FullName).Error; err != nil {
		utils.InternalServerError(c, "Failed to update profile: "+err.Error())
		return
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}

// ChangePasswordRequest represents the request body for a password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

// ChangePassword replaces the caller's password and revokes all of their
// refresh tokens.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if !user.CheckPassword(req.CurrentPassword) {
		utils.Unauthorized(c, "Current password is incorrect")
		return
	}
	if err := user.SetPassword(req.NewPassword); err != nil {
		utils.InternalServerError(c, "Failed to hash password: "+err.Error())
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Update("password", user.Password).Error; err != nil {
			return err
		}
		return tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND is_revoked = ?", user.ID, false).
			Update("is_revoked", true).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to change password: "+err.Error())
		return
	}

	h.Log.Info("password changed", zap.Uint("user_id", user.ID))
	utils.Success(c, "Password changed successfully. Please log in again on other devices.", nil)
}

// issueTokens generates a token pair, stores the refresh token and sets the
// refresh cookie. It answers the request itself on failure.
func (h *AuthHandler) issueTokens(c *gin.Context, user *models.User) (string, string, bool) {
	accessToken, refreshToken, err := utils.GenerateTokens(user, h.Cfg)
	if err != nil {
		utils.InternalServerError(c, "Failed to generate tokens: "+err.Error())
		return "", "", false
	}

	stored := models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(utils.RefreshTokenTTL(h.Cfg)),
	}
	if err := h.DB.Omit("User").Create(&stored).Error; err != nil {
		utils.InternalServerError(c, "Failed to store refresh token: "+err.Error())
		return "", "", false
	}

	h.setRefreshCookie(c, refreshToken, int(utils.RefreshTokenTTL(h.Cfg).Seconds()))
	return accessToken, refreshToken, true
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetCookie(
		refreshCookie,
		value,
		maxAge,
		"/",
		"",
		h.Cfg.Environment != "development", // Secure
		true,                               // HttpOnly
	)
}

func (h *AuthHandler) currentUser(c *gin.Context) (*models.User, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return nil, false
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User profile not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return nil, false
	}
	return &user, true
}
