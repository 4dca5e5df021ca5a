package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"climate_bridge/internal/models"
	"climate_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK       = "ok"
	statusStateSet = "state_set"
	statusModeSet  = "mode_set"
	statusReset    = "reset"
	statusPatched  = "patched"

	errListDevices     = "failed to load devices"
	errSetState        = "failed to set device state"
	errSetMode         = "failed to set device mode"
	errResetDevices    = "failed to reset devices"
	errGetConfig       = "failed to load config"
	errPatchConfig     = "failed to update config"
	errGetAlerts       = "failed to load alerts"
	errStoreDown       = "state store unavailable"
	errInvalidRelay    = "invalid relay; use 1..4"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// serviceError maps a service error to a response: validation problems are
// 400 with the message, an unreachable store is 503, anything else 500.
func (h *Handler) serviceError(c *gin.Context, userMsg, logKey string, err error, kv ...interface{}) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, service.ErrInvalidRelay),
		errors.Is(err, service.ErrInvalidMode),
		errors.Is(err, service.ErrEmptyPatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrStoreUnavailable):
		h.logAndJSONError(c, http.StatusServiceUnavailable, errStoreDown, logKey, err, kv...)
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, userMsg, logKey, err, kv...)
	}
}

// audit logs a state change made over HTTP together with the operator.
func (h *Handler) audit(c *gin.Context, event string, kv ...interface{}) {
	if h.log == nil {
		return
	}
	h.log.Infow(event, append([]interface{}{"operator_id", operatorID(c)}, kv...)...)
}

func relayParam(c *gin.Context) (int, bool) {
	relay, err := strconv.Atoi(c.Param("relay"))
	if err != nil || !models.ValidRelay(relay) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRelay})
		return 0, false
	}
	return relay, true
}

type stateRequest struct {
	On *bool `json:"on" binding:"required"`
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"` // OFF | FORCED_ON | AUTO | MANUAL
}

type commandRequest struct {
	Text string `json:"text" binding:"required"`
}

// SetModeRequest is an exported model for Swagger docs of the setDeviceMode payload.
type SetModeRequest struct {
	// Mode to set. Allowed: OFF, FORCED_ON, AUTO, MANUAL (or 0..3)
	Mode string `json:"mode" example:"AUTO"`
}

// CommandRequest is an exported model for Swagger docs of the command payload.
type CommandRequest struct {
	// Spanish utterance, as typed in the chat
	Text string `json:"text" example:"enciende el ventilador"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Live telemetry
// @Description  Last sensor, relay and config telemetry with freshness and link state
// @Tags         monitoring
// @Produce      json
// @Success      200  {object}  service.TelemetryView
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/telemetry [get]
// @Security     BearerAuth
func (h *Handler) getTelemetry(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.Telemetry(c.Request.Context()))
}

// @Summary      Recent alerts
// @Tags         monitoring
// @Produce      json
// @Param        limit  query  int  false  "Max alerts (default 20, max 200)"
// @Success      200  {object}  map[string]interface{}  "count, alerts"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/alerts [get]
// @Security     BearerAuth
func (h *Handler) getAlerts(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit'"})
			return
		}
		limit = v
	}
	alerts, err := h.services.Monitoring.Alerts(c.Request.Context(), limit)
	if err != nil {
		h.serviceError(c, errGetAlerts, "alerts_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(alerts), "alerts": alerts})
}

// @Summary      Run a command
// @Description  Interprets a Spanish utterance exactly like the chat does and returns the reply
// @Tags         assistant
// @Accept       json
// @Produce      json
// @Param        body  body   CommandRequest  true  "Utterance"
// @Success      200   {object}  service.Reply
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/command [post]
// @Security     BearerAuth
func (h *Handler) postCommand(c *gin.Context) {
	var req commandRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + "empty text"})
		return
	}
	reply := h.services.Assistant.Handle(c.Request.Context(), service.Request{
		Source:     models.SourceHTTP,
		OperatorID: operatorID(c),
		Text:       text,
	})
	c.JSON(http.StatusOK, reply)
}

// @Summary      List devices
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, devices"
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     BearerAuth
func (h *Handler) listDevices(c *gin.Context) {
	devices, err := h.services.Devices.List(c.Request.Context())
	if err != nil {
		h.serviceError(c, errListDevices, "devices_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(devices), "devices": devices})
}

// @Summary      Switch a device
// @Description  Switching manually puts the relay in MANUAL mode
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        relay  path  int  true  "Relay number 1..4"
// @Success      200   {object}  map[string]interface{}  "status, device"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/devices/{relay}/state [post]
// @Security     BearerAuth
func (h *Handler) setDeviceState(c *gin.Context) {
	relay, ok := relayParam(c)
	if !ok {
		return
	}
	var req stateRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	st, err := h.services.Devices.SetState(c.Request.Context(), relay, *req.On)
	if err != nil {
		h.serviceError(c, errSetState, "device_set_state_failed", err, "relay", relay, "operator_id", operatorID(c))
		return
	}
	h.audit(c, "device_state_set", "relay", relay, "on", st.On)
	c.JSON(http.StatusOK, gin.H{"status": statusStateSet, "device": st})
}

// @Summary      Set device mode
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        relay  path  int             true  "Relay number 1..4"
// @Param        body   body  SetModeRequest  true  "Mode payload"
// @Success      200   {object}  map[string]interface{}  "status, device"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/devices/{relay}/mode [post]
// @Security     BearerAuth
func (h *Handler) setDeviceMode(c *gin.Context) {
	relay, ok := relayParam(c)
	if !ok {
		return
	}
	var req modeRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	mode, err := models.ParseRelayMode(strings.ToUpper(strings.TrimSpace(req.Mode)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrInvalidMode.Error()})
		return
	}
	st, err := h.services.Devices.SetMode(c.Request.Context(), relay, mode)
	if err != nil {
		h.serviceError(c, errSetMode, "device_set_mode_failed", err, "relay", relay, "mode", mode.String(), "operator_id", operatorID(c))
		return
	}
	h.audit(c, "device_mode_set", "relay", relay, "mode", mode.String())
	c.JSON(http.StatusOK, gin.H{"status": statusModeSet, "device": st})
}

// @Summary      Reset all devices
// @Description  Turns every relay off in OFF mode
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/devices/reset [post]
// @Security     BearerAuth
func (h *Handler) resetDevices(c *gin.Context) {
	if err := h.services.Devices.ResetAll(c.Request.Context()); err != nil {
		h.serviceError(c, errResetDevices, "devices_reset_failed", err, "operator_id", operatorID(c))
		return
	}
	h.audit(c, "devices_reset")
	c.JSON(http.StatusOK, gin.H{"status": statusReset})
}

// @Summary      Get climate config
// @Tags         config
// @Produce      json
// @Success      200  {object}  models.SystemConfig
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/config [get]
// @Security     BearerAuth
func (h *Handler) getConfig(c *gin.Context) {
	cfg, err := h.services.Settings.Get(c.Request.Context())
	if err != nil {
		h.serviceError(c, errGetConfig, "config_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// @Summary      Patch climate config
// @Description  Only the fields present are changed; each is range checked
// @Tags         config
// @Accept       json
// @Produce      json
// @Param        body  body   models.ConfigPatch  true  "Partial config"
// @Success      200   {object}  map[string]interface{}  "status, config"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/config [patch]
// @Security     BearerAuth
func (h *Handler) patchConfig(c *gin.Context) {
	var patch models.ConfigPatch
	if !h.bindJSONOrBadRequest(c, &patch) {
		return
	}
	cfg, err := h.services.Settings.Patch(c.Request.Context(), patch)
	if err != nil {
		h.serviceError(c, errPatchConfig, "config_patch_failed", err, "operator_id", operatorID(c))
		return
	}
	h.audit(c, "config_patched", "setpoint", cfg.Setpoint)
	c.JSON(http.StatusOK, gin.H{"status": statusPatched, "config": cfg})
}
