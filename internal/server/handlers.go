package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/services/notify"
	"github.com/j-veylop/claude-usage-monitor/internal/services/quota"
)

// SourceAPI tags snapshots pushed over HTTP.
const SourceAPI = "api"

// windowView is a quota window with its remaining time computed at response time.
type windowView struct {
	models.QuotaWindow
	Countdown        string `json:"countdown"`
	RemainingMinutes int    `json:"remainingMinutes"`
}

type usageView struct {
	AccountID      string     `json:"accountId"`
	Source         string     `json:"source,omitempty"`
	URL            string     `json:"url,omitempty"`
	Updated        string     `json:"updated"`
	ParseWarnings  []string   `json:"parseWarnings,omitempty"`
	CurrentSession windowView `json:"currentSession"`
	WeeklyLimits   windowView `json:"weeklyLimits"`
	FiveHourLimit  windowView `json:"fiveHourLimit"`
	Timestamp      int64      `json:"timestamp"`
	IsCurrent      bool       `json:"isCurrent"`
}

func newWindowView(w models.QuotaWindow, now time.Time) windowView {
	return windowView{
		QuotaWindow:      w,
		RemainingMinutes: quota.RemainingMinutes(w.ResetTimestamp, now),
		Countdown:        quota.FormatCountdown(w.ResetTimestamp, now),
	}
}

func newUsageView(snap *models.UsageSnapshot, current string, now time.Time) usageView {
	return usageView{
		AccountID:      snap.AccountID,
		Source:         snap.Source,
		URL:            snap.URL,
		Updated:        quota.FormatAge(snap.CapturedAt(), now),
		ParseWarnings:  snap.ParseWarnings,
		CurrentSession: newWindowView(snap.CurrentSession, now),
		WeeklyLimits:   newWindowView(snap.WeeklyLimits, now),
		FiveHourLimit:  newWindowView(snap.FiveHourLimit, now),
		Timestamp:      snap.Timestamp,
		IsCurrent:      snap.AccountID == current,
	}
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status":         "ok",
		"currentAccount": s.backend.CurrentAccount(),
	}
	if last := s.backend.LastUpdate(); !last.IsZero() {
		resp["lastUpdate"] = last.UnixMilli()
	}
	c.JSON(http.StatusOK, resp)
}

// postUsage accepts either {"text": "<page text>"} or a snapshot object.
func (s *Server) postUsage(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		errorResponse(c, http.StatusRequestEntityTooLarge, fmt.Errorf("failed to read body: %w", err))
		return
	}
	if !gjson.ValidBytes(body) {
		errorResponse(c, http.StatusBadRequest, errors.New("body is not valid JSON"))
		return
	}

	ctx := c.Request.Context()
	var stored *models.UsageSnapshot

	if text := gjson.GetBytes(body, "text"); text.Exists() {
		if text.Type != gjson.String || text.String() == "" {
			errorResponse(c, http.StatusBadRequest, errors.New("text must be a non-empty string"))
			return
		}
		var capturedAt time.Time
		if ts := gjson.GetBytes(body, "capturedAt"); ts.Type == gjson.Number && ts.Int() > 0 {
			capturedAt = time.UnixMilli(ts.Int())
		}
		stored, err = s.backend.IngestText(ctx, text.String(), SourceAPI, capturedAt)
	} else {
		windows := gjson.GetManyBytes(body, "currentSession", "weeklyLimits", "fiveHourLimit")
		if !windows[0].IsObject() && !windows[1].IsObject() && !windows[2].IsObject() {
			errorResponse(c, http.StatusBadRequest, errors.New("body needs text or at least one quota window"))
			return
		}

		var snap models.UsageSnapshot
		if err := json.Unmarshal(body, &snap); err != nil {
			errorResponse(c, http.StatusBadRequest, fmt.Errorf("invalid snapshot: %w", err))
			return
		}
		if snap.Source == "" {
			snap.Source = SourceAPI
		}
		stored, err = s.backend.Ingest(ctx, &snap)
	}

	switch {
	case errors.Is(err, quota.ErrOutdated):
		errorResponse(c, http.StatusConflict, err)
		return
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"snapshot": newUsageView(stored, s.backend.CurrentAccount(), s.now()),
	})
}

func (s *Server) getLatestUsage(c *gin.Context) {
	snap, err := s.backend.Latest(c.Request.Context())
	s.writeSnapshot(c, snap, err)
}

func (s *Server) getAccountUsage(c *gin.Context) {
	snap, err := s.backend.Snapshot(c.Request.Context(), c.Param("accountId"))
	s.writeSnapshot(c, snap, err)
}

func (s *Server) deleteAccountUsage(c *gin.Context) {
	accountID := c.Param("accountId")
	err := s.backend.ForgetAccount(c.Request.Context(), accountID)
	switch {
	case errors.Is(err, quota.ErrNoSnapshot):
		errorResponse(c, http.StatusNotFound, err)
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "accountId": accountID})
	}
}

func (s *Server) writeSnapshot(c *gin.Context, snap *models.UsageSnapshot, err error) {
	switch {
	case errors.Is(err, quota.ErrNoSnapshot):
		errorResponse(c, http.StatusNotFound, err)
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusOK, newUsageView(snap, s.backend.CurrentAccount(), s.now()))
	}
}

func (s *Server) getAccounts(c *gin.Context) {
	accounts, err := s.backend.Accounts(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}

	now := s.now()
	current := s.backend.CurrentAccount()
	views := make([]usageView, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Snapshot == nil {
			continue
		}
		views = append(views, newUsageView(acc.Snapshot, current, now))
	}

	c.JSON(http.StatusOK, gin.H{
		"currentAccount": current,
		"accounts":       views,
	})
}

func (s *Server) getSettings(c *gin.Context) {
	settings, err := s.backend.Settings(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, settings.Masked())
}

// putSettings merges the body over the stored settings.
func (s *Server) putSettings(c *gin.Context) {
	var patch models.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		errorResponse(c, http.StatusBadRequest, fmt.Errorf("invalid settings: %w", err))
		return
	}
	if patch.NotifyThreshold != nil && *patch.NotifyThreshold <= 0 {
		errorResponse(c, http.StatusBadRequest, errors.New("notifyThreshold must be positive"))
		return
	}
	if patch.AutoRefreshInterval != nil && *patch.AutoRefreshInterval <= 0 {
		errorResponse(c, http.StatusBadRequest, errors.New("autoRefreshInterval must be positive"))
		return
	}

	updated, err := s.backend.UpdateSettings(c.Request.Context(), patch)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": updated.Masked()})
}

func (s *Server) postTestNotification(c *gin.Context) {
	res := s.backend.SendTestNotification(c.Request.Context())

	resp := gin.H{
		"success": res.Type == notify.ResultSent,
		"id":      res.ID,
	}
	if res.Err != nil {
		resp["error"] = res.Err.Error()
	}

	status := http.StatusOK
	switch {
	case notify.IsNotConfigured(res.Err):
		status = http.StatusPreconditionFailed
	case res.Err != nil:
		status = http.StatusBadGateway
	}
	c.JSON(status, resp)
}
