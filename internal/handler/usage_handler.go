package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/quocanhngo/managex/internal/middleware"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/internal/service"
)

// UsageHandler ingests process snapshots from agents
type UsageHandler struct {
	usageService *service.UsageService
}

func NewUsageHandler(usageService *service.UsageService) *UsageHandler {
	return &UsageHandler{usageService: usageService}
}

// ProcessSnapshot godoc
// @Summary Report the processes currently running on a device
// @Tags Usage
// @Accept json
// @Produce json
// @Param X-Device-Token header string true "Device token"
// @Param body body model.SnapshotRequest true "Snapshot"
// @Success 200 {object} model.SnapshotResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /usage/process-snapshot [post]
func (h *UsageHandler) ProcessSnapshot(c *gin.Context) {
	var req model.SnapshotRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c, err)
		return
	}

	count, err := h.usageService.IngestSnapshot(c.Request.Context(), c.GetString(middleware.KeyDeviceID), req.Processes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SnapshotResponse{OK: true, SoftwareCount: count})
}
