package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/quocanhngo/managex/internal/middleware"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/internal/service"
)

// DeviceHandler serves the agent check-in endpoints and the admin device views
type DeviceHandler struct {
	deviceService  *service.DeviceService
	commandService *service.CommandService
}

func NewDeviceHandler(deviceService *service.DeviceService, commandService *service.CommandService) *DeviceHandler {
	return &DeviceHandler{
		deviceService:  deviceService,
		commandService: commandService,
	}
}

// ==================== Agent ====================

// Register godoc
// @Summary Register a device and receive its token
// @Tags Device
// @Accept json
// @Produce json
// @Param body body model.RegisterDeviceRequest true "Device identity"
// @Success 200 {object} model.RegisterDeviceResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /device/register [post]
func (h *DeviceHandler) Register(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.deviceService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Heartbeat godoc
// @Summary Device check-in; refreshes presence and IP location
// @Tags Device
// @Accept json
// @Produce json
// @Param X-Device-Token header string true "Device token"
// @Param body body model.DeviceAuthRequest true "Device id"
// @Success 200 {object} model.OKResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /device/heartbeat [post]
func (h *DeviceHandler) Heartbeat(c *gin.Context) {
	deviceID := c.GetString(middleware.KeyDeviceID)

	if _, err := h.deviceService.Heartbeat(c.Request.Context(), deviceID, c.ClientIP()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.OKResponse{OK: true})
}

// Location godoc
// @Summary Report device coordinates
// @Tags Device
// @Accept json
// @Produce json
// @Param X-Device-Token header string true "Device token"
// @Param body body model.LocationRequest true "Coordinates"
// @Success 200 {object} model.OKResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /device/location [post]
func (h *DeviceHandler) Location(c *gin.Context) {
	var req model.LocationRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c, err)
		return
	}
	req.DeviceID = c.GetString(middleware.KeyDeviceID)

	if _, err := h.deviceService.ReportLocation(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.OKResponse{OK: true})
}

// ==================== Admin ====================

// List godoc
// @Summary List devices with presence derived at request time
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.DeviceListResponse
// @Router /device/list [get]
func (h *DeviceHandler) List(c *gin.Context) {
	devices, err := h.deviceService.ListDevices(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.DeviceListResponse{Devices: devices})
}

// Detail godoc
// @Summary Device detail with today's summary and usage
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param deviceId path string true "Device ID"
// @Success 200 {object} model.DeviceDetailResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /device/{deviceId}/details [get]
func (h *DeviceHandler) Detail(c *gin.Context) {
	detail, err := h.deviceService.GetDeviceDetail(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// SoftwareToday godoc
// @Summary Software seen on the device today, by name
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param deviceId path string true "Device ID"
// @Success 200 {object} model.SoftwareTodayResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /device/{deviceId}/software-today [get]
func (h *DeviceHandler) SoftwareToday(c *gin.Context) {
	resp, err := h.deviceService.ListTodaySoftware(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Command godoc
// @Summary Send LOCK or UNLOCK to a device (best effort)
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param deviceId path string true "Device ID"
// @Param body body model.CommandRequest true "Command"
// @Success 200 {object} model.OKResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /device/{deviceId}/command [post]
func (h *DeviceHandler) Command(c *gin.Context) {
	var req model.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.commandService.Dispatch(c.Request.Context(), c.Param("deviceId"), req.Command); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.OKResponse{OK: true})
}
