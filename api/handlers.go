package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tvbridge/adb"
	"tvbridge/models"
	"tvbridge/service"
)

// ScanDevices lists reachable devices with name/model enrichment.
func ScanDevices(c *gin.Context, ds *service.DeviceService) {
	devices, err := ds.Scan(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(devices))
}

// GetCurrentDevice returns the active device, or null data when none
// is selected.
func GetCurrentDevice(c *gin.Context, registry *service.SessionRegistry) {
	c.JSON(http.StatusOK, models.SuccessResponse(registry.Get()))
}

type connectRequest struct {
	// Address is a host:port network target; Serial selects an already
	// attached USB target. Exactly one must be set.
	Address string `json:"address"`
	Serial  string `json:"serial"`
}

// ConnectDevice establishes a target and makes it the active device.
func ConnectDevice(c *gin.Context, ds *service.DeviceService) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
		return
	}

	var device *models.DeviceInfo
	var err error
	switch {
	case req.Address != "":
		device, err = ds.ConnectNetwork(c.Request.Context(), req.Address)
	case req.Serial != "":
		device, err = ds.ConnectUSB(c.Request.Context(), req.Serial)
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse("address or serial is required"))
		return
	}
	if err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(device))
}

// DisconnectDevice tears down and deselects the active device.
func DisconnectDevice(c *gin.Context, ds *service.DeviceService) {
	if err := ds.Disconnect(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("disconnected"))
}

type installRequest struct {
	ApkPath   string `json:"apk_path" binding:"required"`
	Replace   bool   `json:"replace"`
	Force     bool   `json:"force"`
	Downgrade bool   `json:"downgrade"`
}

// InstallAPK installs a package on the active device.
func InstallAPK(c *gin.Context, ds *service.DeviceService) {
	var req installRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
		return
	}

	opts := adb.InstallOptions{Replace: req.Replace, Force: req.Force, Downgrade: req.Downgrade}
	if err := ds.Install(c.Request.Context(), req.ApkPath, opts); err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("installed"))
}

// Screenshot captures the active device's screen and returns raw PNG.
func Screenshot(c *gin.Context, ds *service.DeviceService) {
	png, err := ds.Screenshot(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

type shellRequest struct {
	// Command is split on whitespace; quoting is not honored. Clients
	// that need arguments containing spaces send Args instead.
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// ShellCommand runs a free-form shell command on the active device.
func ShellCommand(c *gin.Context, ds *service.DeviceService) {
	var req shellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
		return
	}
	args := req.Args
	if len(args) == 0 {
		args = strings.Fields(req.Command)
	}
	if len(args) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse("command or args is required"))
		return
	}
	output, err := ds.ShellCommand(c.Request.Context(), args)
	if err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"output": output}))
}

// DeviceHistory lists previously connected devices.
func DeviceHistory(c *gin.Context, ds *service.DeviceService) {
	entries, err := ds.History()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(entries))
}

// statusFor maps service errors to HTTP statuses: registry empty →
// 409, bridge binary unavailable → 503, everything else → 500.
func statusFor(err error) int {
	var resErr *adb.ResolutionError
	switch {
	case errors.Is(err, service.ErrNoActiveDevice):
		return http.StatusConflict
	case errors.As(err, &resErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
