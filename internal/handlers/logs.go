package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"climate_bridge/internal/models"
	"climate_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid     = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid       = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"
	errRangeInverted   = "'from' must be <= 'to'"
	errSourceInvalid   = "invalid 'source'; use TEXT, VOICE, CALLBACK or HTTP"
	errOperatorInvalid = "invalid 'operator'; use 'me' or an operator id"
	errListLogs        = "failed to load logs"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// @Summary      List command log
// @Description  Journal of interpreted commands, oldest first. Times are RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD'; a date-only 'to' covers that whole day.
// @Tags         logs
// @Produce      json
// @Param        from      query  string  false  "Start of range"  example(2025-08-01)
// @Param        to        query  string  false  "End of range"    example(2025-08-31)
// @Param        intent    query  string  false  "Interpreted intent"  Enums(temperature,humidity,status,devices,config,help,turn_on,turn_off,mode,config_change,unknown)
// @Param        source    query  string  false  "Where the command came from"  Enums(TEXT,VOICE,CALLBACK,HTTP)
// @Param        operator  query  string  false  "'me' or an operator id; HTTP commands only"
// @Success      200  {object}  map[string]interface{}  "count, events"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	f, msg := logFilterFromQuery(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	events, err := h.services.EventLog.List(c.Request.Context(), f)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListLogs, "logs_list_failed", err,
			"from", f.From, "to", f.To, "intent", f.Intent, "source", f.Source, "operator_id", f.OperatorID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// logFilterFromQuery reads the query string into a filter. A non-empty
// message means the request is invalid.
func logFilterFromQuery(c *gin.Context) (service.LogFilter, string) {
	var f service.LogFilter
	if qs := c.Query("from"); qs != "" {
		t, err := parseQueryTime(qs)
		if err != nil {
			return f, errFromInvalid
		}
		f.From = t
	}
	if qs := c.Query("to"); qs != "" {
		t, err := parseQueryTime(qs)
		if err != nil {
			return f, errToInvalid
		}
		if !strings.ContainsAny(qs, "T ") {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		f.To = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return f, errRangeInverted
	}

	f.Intent = strings.ToLower(strings.TrimSpace(c.Query("intent")))

	if src := strings.ToUpper(strings.TrimSpace(c.Query("source"))); src != "" {
		if !models.ValidSource(src) {
			return f, errSourceInvalid
		}
		f.Source = src
	}

	switch op := strings.TrimSpace(c.Query("operator")); op {
	case "":
	case "me":
		f.OperatorID = operatorID(c)
	default:
		id, err := strconv.Atoi(op)
		if err != nil || id <= 0 {
			return f, errOperatorInvalid
		}
		f.OperatorID = id
	}
	return f, ""
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD'", s)
}
