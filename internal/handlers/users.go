package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"clinic-frontdesk-server/internal/middleware"
	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/utils"
)

// UserHandler handles staff account management (admin operations).
type UserHandler struct {
	DB *gorm.DB
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{DB: db}
}

// CreateUserRequest represents the request body for creating a user by an admin.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"fullName" binding:"required,max=200"`
	Role     string `json:"role" binding:"required,oneof=admin receptionist doctor"`
	IsActive *bool  `json:"isActive"`
}

// CreateUser handles creating a new staff account (admin).
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user := models.User{
		Username: req.Username,
		FullName: req.FullName,
		Role:     models.Role(req.Role),
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password: "+err.Error())
		return
	}

	if err := h.DB.Omit("RefreshTokens").Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Conflict(c, "User with this username already exists")
			return
		}
		utils.InternalServerError(c, "Failed to create user: "+err.Error())
		return
	}

	utils.Created(c, "User created successfully", user.Sanitize())
}

// GetUsers handles fetching all users (admin). ?role= filters by role.
func (h *UserHandler) GetUsers(c *gin.Context) {
	q := h.DB.Order("id ASC")
	if role := c.Query("role"); role != "" {
		if !models.Role(role).IsValid() {
			utils.BadRequest(c, "Invalid role: must be one of admin, receptionist, doctor")
			return
		}
		q = q.Where("role = ?", role)
	}

	var users []models.User
	if err := q.Find(&users).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch users: "+err.Error())
		return
	}

	sanitizedUsers := make([]models.UserSanitized, len(users))
	for i := range users {
		sanitizedUsers[i] = users[i].Sanitize()
	}

	utils.Success(c, "Users fetched successfully", sanitizedUsers)
}

// GetUserByID handles fetching a single user by ID (admin).
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserRequest represents the request body for updating a user by an admin.
// A non-empty Password resets the user's password.
type UpdateUserRequest struct {
	FullName *string `json:"fullName" binding:"omitempty,max=200"`
	Role     *string `json:"role" binding:"omitempty,oneof=admin receptionist doctor"`
	IsActive *bool   `json:"isActive"`
	Password *string `json:"password" binding:"omitempty,min=8"`
}

// UpdateUser handles updating a user by ID (admin).
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, ok := h.findUser(c)
	if !ok {
		return
	}

	self, _ := middleware.GetUserIDFromContext(c)
	if user.ID == self && ((req.IsActive != nil && !*req.IsActive) || (req.Role != nil && models.Role(*req.Role) != models.RoleAdmin)) {
		utils.BadRequest(c, "Admins cannot disable or demote their own account")
		return
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Role != nil {
		user.Role = models.Role(*req.Role)
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.Password != nil {
		if err := user.SetPassword(*req.Password); err != nil {
			utils.InternalServerError(c, "Failed to hash password: "+err.Error())
			return
		}
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("RefreshTokens").Save(user).Error; err != nil {
			return err
		}
		if req.Password == nil && user.IsActive {
			return nil
		}
		// Credentials changed or the account was disabled: end its sessions.
		return tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND is_revoked = ?", user.ID, false).
			Update("is_revoked", true).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to update user: "+err.Error())
		return
	}

	utils.Success(c, "User updated successfully", user.Sanitize())
}

// DeleteUser handles deleting a user by ID (admin).
func (h *UserHandler) DeleteUser(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}

	if self, _ := middleware.GetUserIDFromContext(c); self == user.ID {
		utils.BadRequest(c, "Admins cannot delete their own account")
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, user.ID).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete user: "+err.Error())
		return
	}

	utils.Success(c, "User deleted successfully", nil)
}

func (h *UserHandler) findUser(c *gin.Context) (*models.User, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, false
	}

	var user models.User
	if err := h.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return nil, false
	}
	return &user, true
}
