package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quocanhngo/managex/internal/middleware"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/internal/service"
)

// AuthHandler handles administrator authentication endpoints
type AuthHandler struct {
	adminService *service.AdminService
}

func NewAuthHandler(adminService *service.AdminService) *AuthHandler {
	return &AuthHandler{adminService: adminService}
}

// Login godoc
// @Summary Login with email and password
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body model.LoginRequest true "Login request"
// @Success 200 {object} model.LoginResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /admin/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.adminService.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid email or password"})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout godoc
// @Summary Revoke the current token
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SuccessResponse
// @Router /admin/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.adminService.Logout(c.Request.Context(), c.GetString(middleware.KeyToken)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Logged out"})
}

// Me godoc
// @Summary Get current administrator
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.AdminResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /admin/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	value, _ := c.Get(middleware.KeyAdminID)
	adminID, ok := value.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Unauthorized"})
		return
	}

	profile, err := h.adminService.Profile(c.Request.Context(), adminID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}
