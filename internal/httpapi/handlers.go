// Package httpapi holds the HTTP handlers for the staff API and the
// telephony webhooks. Keep these thin: parse/validate input, call internal
// services, return JSON or TwiML.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"voicebot-platform/internal/audit"
	"voicebot-platform/internal/auth"
	"voicebot-platform/internal/engine"
	"voicebot-platform/internal/rbac"
	"voicebot-platform/internal/reservation"
	"voicebot-platform/internal/schedule"
	"voicebot-platform/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
type Handlers struct {
	Auth         *auth.Manager
	Reservations *reservation.Service
	Sessions     session.Store
	Audit        *audit.Service
	Engine       *engine.Engine
	Policy       *schedule.Policy

	// Redis and MaxActiveCalls bound concurrent calls across processes.
	// Nil Redis disables the cap.
	Redis          *redis.Client
	MaxActiveCalls int

	// GatherPath is the webhook Twilio posts caller speech to.
	GatherPath string
}

// --- Auth ---

type loginRequest struct {
	StaffID string `json:"staff_id"`
	Role    string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.StaffID == "" || !rbac.IsKnownRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "staff_id and a known role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.StaffID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Reservations (staff) ---

type createReservationRequest struct {
	PhoneNumber string `json:"phone_number"`
	GuestName   string `json:"guest_name"`
	PartySize   int    `json:"party_size"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Notes       string `json:"notes"`
	// Confirmed skips the pending step; walk-in phone bookings taken by
	// staff are final immediately.
	Confirmed bool `json:"confirmed"`
}

func (h Handlers) CreateReservation(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	slot, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.Time, h.Policy.Location())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid date/time"})
		return
	}

	r, err := h.Reservations.Create(c.Request.Context(), reservation.CreateInput{
		PhoneNumber: req.PhoneNumber,
		GuestName:   req.GuestName,
		PartySize:   req.PartySize,
		SlotStart:   slot,
		Notes:       req.Notes,
	})
	if err != nil {
		h.reservationError(c, err)
		return
	}
	if req.Confirmed {
		if r, err = h.Reservations.Confirm(c.Request.Context(), r.ID, ""); err != nil {
			h.reservationError(c, err)
			return
		}
	}
	h.recordStaffAction(c, audit.ActionReservationCreated, r.ID, map[string]any{"party_size": r.PartySize})
	c.JSON(http.StatusCreated, r)
}

func (h Handlers) ListReservations(c *gin.Context) {
	var f reservation.ListFilter
	f.Status = reservation.Status(c.Query("status"))
	if d := c.Query("date"); d != "" {
		day, err := time.ParseInLocation("2006-01-02", d, h.Policy.Location())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
			return
		}
		f.From = day
		f.To = day.AddDate(0, 0, 1)
	}
	list, err := h.Reservations.List(c.Request.Context(), f)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": list})
}

func (h Handlers) GetReservation(c *gin.Context) {
	r, err := h.Reservations.Get(c.Request.Context(), c.Param("id"), "")
	if err != nil {
		h.reservationError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type updateReservationRequest struct {
	GuestName *string `json:"guest_name"`
	PartySize *int    `json:"party_size"`
	Date      *string `json:"date"`
	Time      *string `json:"time"`
	Notes     *string `json:"notes"`
}

func (h Handlers) UpdateReservation(c *gin.Context) {
	var req updateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	in := reservation.ModifyInput{
		GuestName: req.GuestName,
		PartySize: req.PartySize,
		Notes:     req.Notes,
	}
	if req.Date != nil || req.Time != nil {
		if req.Date == nil || req.Time == nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "date and time must be changed together"})
			return
		}
		slot, err := time.ParseInLocation("2006-01-02 15:04", *req.Date+" "+*req.Time, h.Policy.Location())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid date/time"})
			return
		}
		in.SlotStart = &slot
	}

	r, err := h.Reservations.Modify(c.Request.Context(), c.Param("id"), "", in)
	if err != nil {
		h.reservationError(c, err)
		return
	}
	h.recordStaffAction(c, audit.ActionReservationUpdated, r.ID, nil)
	c.JSON(http.StatusOK, r)
}

func (h Handlers) CancelReservation(c *gin.Context) {
	r, err := h.Reservations.Cancel(c.Request.Context(), c.Param("id"), "")
	if err != nil {
		h.reservationError(c, err)
		return
	}
	h.recordStaffAction(c, audit.ActionReservationCanceled, r.ID, nil)
	c.JSON(http.StatusOK, r)
}

func (h Handlers) CompleteReservation(c *gin.Context) {
	r, err := h.Reservations.MarkCompleted(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.reservationError(c, err)
		return
	}
	h.recordStaffAction(c, audit.ActionReservationUpdated, r.ID, map[string]any{"status": r.Status})
	c.JSON(http.StatusOK, r)
}

func (h Handlers) NoShowReservation(c *gin.Context) {
	r, err := h.Reservations.MarkNoShow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.reservationError(c, err)
		return
	}
	h.recordStaffAction(c, audit.ActionReservationUpdated, r.ID, map[string]any{"status": r.Status})
	c.JSON(http.StatusOK, r)
}

func (h Handlers) Availability(c *gin.Context) {
	d := c.Query("date")
	day, err := time.ParseInLocation("2006-01-02", d, h.Policy.Location())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "date=YYYY-MM-DD required"})
		return
	}
	slots, err := h.Reservations.Availability(c.Request.Context(), day.Year(), day.Month(), day.Day())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "availability failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": d, "slots": slots})
}

// --- Calls and audit (admin) ---

func (h Handlers) ListCalls(c *gin.Context) {
	list, err := h.Sessions.List(c.Request.Context(), session.ListFilter{
		Status:      session.CallStatus(c.Query("status")),
		PhoneNumber: c.Query("phone"),
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": list})
}

func (h Handlers) GetCall(c *gin.Context) {
	s, err := h.Sessions.Load(c.Request.Context(), c.Param("call_id"))
	if errors.Is(err, session.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "load failed"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) ListAudit(c *gin.Context) {
	entries, err := h.Audit.List(c.Request.Context(), audit.ListFilter{
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
		Action:     c.Query("action"),
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// --- helpers ---

func (h Handlers) reservationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, reservation.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "reservation not found"})
	case errors.Is(err, reservation.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, reservation.ErrSlotUnavailable):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "slot is fully booked"})
	case errors.Is(err, reservation.ErrNotActive):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h Handlers) recordStaffAction(c *gin.Context, action, reservationID string, metadata map[string]any) {
	staffID, _ := auth.StaffID(c.Request.Context())
	// Best-effort: the write already happened; a failed audit append is
	// logged by the audit layer, not surfaced to staff.
	_ = h.Audit.RecordStaffAction(c.Request.Context(), action, staffID, audit.EntityReservation, reservationID, metadata)
}
