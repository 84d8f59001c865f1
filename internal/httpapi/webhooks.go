package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"voicebot-platform/internal/engine"
	"voicebot-platform/internal/session"
	"voicebot-platform/internal/telephony"
	"voicebot-platform/pkg/logger"
	"voicebot-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

const activeCallsKey = "active_calls"

// callCapTTL guards against leaked slots when a status callback never
// arrives; long enough to outlast any real call.
const callCapTTL = 2 * time.Hour

// TwilioVoice handles both the answer URL and the gather action URL.
// Twilio retries on 5xx, so webhook errors degrade to spoken TwiML instead.
func (h Handlers) TwilioVoice(c *gin.Context) {
	form, err := telephony.ParseTwilioVoiceForm(c.Request)
	if err != nil || form.CallSid == "" {
		c.String(http.StatusBadRequest, "bad webhook form")
		return
	}
	ev := form.ToCallEvent(time.Now())

	if ev.Kind == telephony.EventCallStarted && !h.acquireCallSlot(c) {
		h.renderTwiML(c, telephony.Reply{
			Say:    "We are sorry, all of our lines are busy right now. Please call back in a few minutes.",
			Hangup: true,
		})
		return
	}

	rep, err := h.Engine.HandleEvent(c.Request.Context(), ev)
	switch {
	case errors.Is(err, engine.ErrBusy), errors.Is(err, session.ErrVersionConflict):
		// A turn is still in flight, or another writer got to the session
		// first. Either way nothing was lost; ask the caller to hold and
		// re-gather.
		h.renderTwiML(c, telephony.Reply{
			Say:          "One moment please.",
			GatherAction: h.GatherPath,
		})
		return
	case err != nil:
		logger.FromGin(c).Error("engine turn failed", "call_id", ev.CallID, "error", err)
		h.renderTwiML(c, telephony.Reply{
			Say:    "I'm sorry, something went wrong on our end. Please call back shortly.",
			Hangup: true,
		})
		return
	}

	out := telephony.Reply{Say: rep.Text, GatherAction: h.GatherPath}
	if rep.EndCall {
		out.GatherAction = ""
		out.Hangup = true
	}
	h.renderTwiML(c, out)
}

// TwilioStatus receives the call status callback. Final statuses close the
// session and release the active-call slot. No TwiML is expected back.
func (h Handlers) TwilioStatus(c *gin.Context) {
	form, err := telephony.ParseTwilioVoiceForm(c.Request)
	if err != nil || form.CallSid == "" {
		c.String(http.StatusBadRequest, "bad webhook form")
		return
	}
	ev := form.ToCallEvent(time.Now())
	if ev.Kind != telephony.EventCallEnded {
		c.Status(http.StatusNoContent)
		return
	}

	if _, err := h.Engine.HandleEvent(c.Request.Context(), ev); err != nil {
		logger.FromGin(c).Error("call end handling failed", "call_id", ev.CallID, "error", err)
	}
	h.releaseCallSlot(c)
	c.Status(http.StatusNoContent)
}

func (h Handlers) acquireCallSlot(c *gin.Context) bool {
	if h.Redis == nil || h.MaxActiveCalls <= 0 {
		return true
	}
	ok, err := utils.AcquireCallCap(c.Request.Context(), h.Redis, activeCallsKey, h.MaxActiveCalls, callCapTTL)
	if err != nil {
		// Fail open: a capacity-counter outage must not drop calls.
		logger.FromGin(c).Warn("call cap acquire failed", "error", err)
		return true
	}
	return ok
}

func (h Handlers) releaseCallSlot(c *gin.Context) {
	if h.Redis == nil || h.MaxActiveCalls <= 0 {
		return
	}
	if err := utils.ReleaseCallCap(c.Request.Context(), h.Redis, activeCallsKey); err != nil {
		logger.FromGin(c).Warn("call cap release failed", "error", err)
	}
}

func (h Handlers) renderTwiML(c *gin.Context, rep telephony.Reply) {
	body, err := telephony.RenderReply(rep)
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "error", err)
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(body))
}

// Healthz reports process liveness plus backing-store connectivity.
func Healthz(db *sql.DB, checkRedis func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		checks := gin.H{}

		if db != nil {
			if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
				status = http.StatusServiceUnavailable
				checks["postgres"] = err.Error()
			} else {
				checks["postgres"] = "ok"
			}
		}
		if checkRedis != nil {
			if err := checkRedis(c); err != nil {
				status = http.StatusServiceUnavailable
				checks["redis"] = err.Error()
			} else {
				checks["redis"] = "ok"
			}
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
	}
}
