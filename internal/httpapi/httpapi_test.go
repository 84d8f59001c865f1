package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"voicebot-platform/internal/audit"
	"voicebot-platform/internal/auth"
	"voicebot-platform/internal/config"
	"voicebot-platform/internal/engine"
	"voicebot-platform/internal/llm"
	"voicebot-platform/internal/lock"
	"voicebot-platform/internal/rbac"
	"voicebot-platform/internal/reservation"
	"voicebot-platform/internal/schedule"
	"voicebot-platform/internal/session"
	"voicebot-platform/internal/tools"

	"github.com/gin-gonic/gin"
)

type stubGenerator struct {
	mu      sync.Mutex
	outputs []llm.Output

	// hook runs once per Generate call, letting a test interleave work
	// with an in-flight turn.
	hook func()
}

func (g *stubGenerator) Generate(_ context.Context, _ []llm.Message, _ []tools.Definition) (llm.Output, error) {
	g.mu.Lock()
	hook := g.hook
	var out llm.Output
	if len(g.outputs) == 0 {
		out = llm.Output{Text: "How else can I help?"}
	} else {
		out = g.outputs[0]
		g.outputs = g.outputs[1:]
	}
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (g *stubGenerator) push(outs ...llm.Output) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputs = append(g.outputs, outs...)
}

type fixture struct {
	router    *gin.Engine
	handlers  Handlers
	store     *session.MemoryStore
	locker    *lock.MemoryLocker
	gen       *stubGenerator
	auditRepo *audit.MemoryRepo
	resSvc    *reservation.Service
	now       time.Time
}

func testConfig() config.Config {
	var c config.Config
	c.Engine = config.EngineConfig{
		MaxConsecutiveErrors: 3,
		LockLease:            30 * time.Second,
		GenerationRetries:    1,
		GenerationBackoff:    time.Millisecond,
		GenerationTimeout:    time.Second,
		ToolTimeout:          time.Second,
	}
	c.Restaurant = config.RestaurantConfig{
		Name:                     "Testaurant",
		Timezone:                 "America/New_York",
		OpenTime:                 "11:00",
		CloseTime:                "22:00",
		SlotGranularityMinutes:   30,
		LastSeatingOffsetMinutes: 90,
		MinLeadTimeMinutes:       60,
		MaxHorizonDays:           60,
		MinPartySize:             1,
		MaxPartySize:             12,
		SlotDurationMinutes:      120,
		MaxReservationsPerSlot:   2,
		MaxGuestsPerSlot:         10,
	}
	return c
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()

	policy, err := schedule.NewPolicy(cfg.Restaurant)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, policy.Location())
	clock := func() time.Time { return now }

	resSvc := reservation.NewService(reservation.NewMemoryRepo(), policy).WithClock(clock)
	auditRepo := audit.NewMemoryRepo()
	auditSvc := audit.NewService(auditRepo).WithClock(clock)
	reg := tools.NewRegistry(auditSvc, tools.NewMemoryDedupStore())
	if err := tools.NewReservationToolset(reg, resSvc, policy, cfg.Restaurant); err != nil {
		t.Fatalf("toolset: %v", err)
	}

	store := session.NewMemoryStore()
	locker := lock.NewMemoryLocker()
	gen := &stubGenerator{}
	eng := engine.New(store, locker, reg, gen, auditSvc, policy, cfg).
		WithClock(clock).
		WithSleep(func(time.Duration) {})

	authMgr, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		JWTIssuer:       "voicebot",
		JWTAudience:     "staff-api",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	h := Handlers{
		Auth:         authMgr,
		Reservations: resSvc,
		Sessions:     store,
		Audit:        auditSvc,
		Engine:       eng,
		Policy:       policy,
		GatherPath:   "/twilio/gather",
	}

	f := &fixture{
		handlers:  h,
		store:     store,
		locker:    locker,
		gen:       gen,
		auditRepo: auditRepo,
		resSvc:    resSvc,
		now:       now,
	}
	f.router = f.buildRouter()
	return f
}

// buildRouter mirrors the production route layout, with JWT verification
// replaced by a fixed staff identity.
func (f *fixture) buildRouter() *gin.Engine {
	r := gin.New()

	r.POST("/twilio/voice", f.handlers.TwilioVoice)
	r.POST("/twilio/gather", f.handlers.TwilioVoice)
	r.POST("/twilio/status", f.handlers.TwilioStatus)
	r.POST("/v1/auth/login", f.handlers.Login)

	asStaff := func(role string) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "staff-1", role))
		}
	}

	v1 := r.Group("/v1", asStaff(rbac.RoleManager))
	{
		res := v1.Group("/reservations")
		res.POST("", f.handlers.CreateReservation)
		res.GET("", f.handlers.ListReservations)
		res.GET("/:id", f.handlers.GetReservation)
		res.PATCH("/:id", f.handlers.UpdateReservation)
		res.DELETE("/:id", f.handlers.CancelReservation)
		res.POST("/:id/complete", f.handlers.CompleteReservation)
		res.POST("/:id/no-show", f.handlers.NoShowReservation)

		v1.GET("/availability", f.handlers.Availability)
		v1.GET("/calls", f.handlers.ListCalls)
		v1.GET("/calls/:call_id", f.handlers.GetCall)
		v1.GET("/audit", f.handlers.ListAudit)
	}
	return r
}

func (f *fixture) postForm(t *testing.T, path string, form map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	vals := url.Values{}
	for k, v := range form {
		vals.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(vals.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// --- Twilio webhooks ---

func TestTwilioVoiceAnswerGreetsAndGathers(t *testing.T) {
	f := newFixture(t)

	w := f.postForm(t, "/twilio/voice", map[string]string{
		"CallSid":    "CA100",
		"From":       "+15550100",
		"CallStatus": "in-progress",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("expected text/xml, got %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Testaurant") {
		t.Fatalf("expected greeting in TwiML, got %s", body)
	}
	if !strings.Contains(body, `action="/twilio/gather"`) {
		t.Fatalf("expected gather action, got %s", body)
	}

	s, err := f.store.Load(context.Background(), "CA100")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if s.Status != session.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", s.Status)
	}
}

func TestTwilioVoiceBusyAsksCallerToHold(t *testing.T) {
	f := newFixture(t)
	f.postForm(t, "/twilio/voice", map[string]string{"CallSid": "CA101", "From": "+15550100"})

	if _, err := f.locker.Acquire(context.Background(), "CA101", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	w := f.postForm(t, "/twilio/gather", map[string]string{
		"CallSid":      "CA101",
		"From":         "+15550100",
		"SpeechResult": "hello",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "One moment please.") {
		t.Fatalf("expected hold prompt, got %s", w.Body.String())
	}
}

func TestTwilioVoiceVersionConflictAsksCallerToHold(t *testing.T) {
	f := newFixture(t)
	f.postForm(t, "/twilio/voice", map[string]string{"CallSid": "CA105", "From": "+15550100"})

	// A concurrent writer bumps the session mid-turn, so the turn's own
	// save loses the version race.
	f.gen.hook = func() {
		s, err := f.store.Load(context.Background(), "CA105")
		if err != nil {
			t.Errorf("load: %v", err)
			return
		}
		if err := f.store.Save(context.Background(), s, s.Version); err != nil {
			t.Errorf("save: %v", err)
		}
	}

	w := f.postForm(t, "/twilio/gather", map[string]string{
		"CallSid":      "CA105",
		"From":         "+15550100",
		"SpeechResult": "hello",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "One moment please.") {
		t.Fatalf("expected hold prompt, got %s", body)
	}
	if strings.Contains(body, "<Hangup>") {
		t.Fatalf("a lost version race must not hang up, got %s", body)
	}
}

func TestTwilioVoiceHangsUpWhenGeneratorEndsCall(t *testing.T) {
	f := newFixture(t)
	f.postForm(t, "/twilio/voice", map[string]string{"CallSid": "CA102", "From": "+15550100"})
	f.gen.push(llm.Output{Text: "Goodbye!", EndCall: true})

	w := f.postForm(t, "/twilio/gather", map[string]string{
		"CallSid":      "CA102",
		"From":         "+15550100",
		"SpeechResult": "that's all, thanks",
	})
	body := w.Body.String()
	if !strings.Contains(body, "<Hangup>") {
		t.Fatalf("expected hangup, got %s", body)
	}
	if strings.Contains(body, "<Gather") {
		t.Fatalf("did not expect gather after hangup, got %s", body)
	}
}

func TestTwilioStatusFinalClosesSession(t *testing.T) {
	f := newFixture(t)
	f.postForm(t, "/twilio/voice", map[string]string{"CallSid": "CA103", "From": "+15550100"})

	w := f.postForm(t, "/twilio/status", map[string]string{
		"CallSid":    "CA103",
		"From":       "+15550100",
		"CallStatus": "completed",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	s, err := f.store.Load(context.Background(), "CA103")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Status != session.StatusAbandoned {
		t.Fatalf("expected abandoned, got %s", s.Status)
	}
}

func TestTwilioStatusNonFinalIsIgnored(t *testing.T) {
	f := newFixture(t)
	w := f.postForm(t, "/twilio/status", map[string]string{
		"CallSid":    "CA104",
		"CallStatus": "ringing",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if _, err := f.store.Load(context.Background(), "CA104"); err == nil {
		t.Fatalf("expected no session for non-final status")
	}
}

func TestTwilioVoiceRejectsMissingCallSid(t *testing.T) {
	f := newFixture(t)
	w := f.postForm(t, "/twilio/voice", map[string]string{"From": "+15550100"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// --- Staff API ---

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	f := newFixture(t)
	w := f.doJSON(t, http.MethodPost, "/v1/auth/login", gin.H{"staff_id": "staff-7", "role": "manager"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := f.handlers.Auth.Verify(resp.AccessToken, auth.TokenTypeAccess, time.Now())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.StaffID != "staff-7" || claims.Role != "manager" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLoginRejectsUnknownRole(t *testing.T) {
	f := newFixture(t)
	w := f.doJSON(t, http.MethodPost, "/v1/auth/login", gin.H{"staff_id": "staff-7", "role": "intern"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateReservationConfirmedRecordsAudit(t *testing.T) {
	f := newFixture(t)
	w := f.doJSON(t, http.MethodPost, "/v1/reservations", gin.H{
		"phone_number": "+15550111",
		"guest_name":   "Dana",
		"party_size":   4,
		"date":         "2026-06-02",
		"time":         "18:30",
		"confirmed":    true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var r reservation.Reservation
	if err := json.Unmarshal(w.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Status != reservation.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", r.Status)
	}

	var found bool
	for _, e := range f.auditRepo.Entries() {
		if e.Action == audit.ActionReservationCreated && e.ActorStaffID == "staff-1" && e.EntityID == r.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected staff audit entry for creation")
	}
}

func TestCreateReservationFullSlotConflicts(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		w := f.doJSON(t, http.MethodPost, "/v1/reservations", gin.H{
			"phone_number": "+15550111",
			"guest_name":   "Dana",
			"party_size":   2,
			"date":         "2026-06-02",
			"time":         "18:30",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("seed booking %d: got %d: %s", i, w.Code, w.Body.String())
		}
	}
	w := f.doJSON(t, http.MethodPost, "/v1/reservations", gin.H{
		"phone_number": "+15550112",
		"guest_name":   "Eli",
		"party_size":   2,
		"date":         "2026-06-02",
		"time":         "18:30",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateReservationRejectsBadSlot(t *testing.T) {
	f := newFixture(t)
	w := f.doJSON(t, http.MethodPost, "/v1/reservations", gin.H{
		"phone_number": "+15550111",
		"guest_name":   "Dana",
		"party_size":   4,
		"date":         "2026-06-02",
		"time":         "23:00",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdateReservationRequiresDateAndTimeTogether(t *testing.T) {
	f := newFixture(t)
	created := f.doJSON(t, http.MethodPost, "/v1/reservations", gin.H{
		"phone_number": "+15550111",
		"guest_name":   "Dana",
		"party_size":   4,
		"date":         "2026-06-02",
		"time":         "18:30",
	})
	var r reservation.Reservation
	if err := json.Unmarshal(created.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w := f.doJSON(t, http.MethodPatch, "/v1/reservations/"+r.ID, gin.H{"date": "2026-06-03"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = f.doJSON(t, http.MethodPatch, "/v1/reservations/"+r.ID, gin.H{"party_size": 6})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCancelAndTerminalTransitions(t *testing.T) {
	f := newFixture(t)
	created := f.doJSON(t, http.MethodPost, "/v1/reservations", gin.H{
		"phone_number": "+15550111",
		"guest_name":   "Dana",
		"party_size":   4,
		"date":         "2026-06-02",
		"time":         "18:30",
		"confirmed":    true,
	})
	var r reservation.Reservation
	if err := json.Unmarshal(created.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w := f.doJSON(t, http.MethodPost, "/v1/reservations/"+r.ID+"/complete", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Terminal states cannot be canceled.
	w = f.doJSON(t, http.MethodDelete, "/v1/reservations/"+r.ID, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetReservationNotFound(t *testing.T) {
	f := newFixture(t)
	w := f.doJSON(t, http.MethodGet, "/v1/reservations/does-not-exist", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.doJSON(t, http.MethodGet, "/v1/availability", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without date, got %d", w.Code)
	}

	w = f.doJSON(t, http.MethodGet, "/v1/availability?date=2026-06-02", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Slots []reservation.SlotAvailability `json:"slots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Slots) != 20 {
		t.Fatalf("expected 20 slots for an 11:00-20:30 day, got %d", len(resp.Slots))
	}
}

func TestCallHistoryEndpoints(t *testing.T) {
	f := newFixture(t)
	f.postForm(t, "/twilio/voice", map[string]string{"CallSid": "CA200", "From": "+15550100"})

	w := f.doJSON(t, http.MethodGet, "/v1/calls?phone=%2B15550100", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Calls []*session.CallSession `json:"calls"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Calls) != 1 || resp.Calls[0].CallID != "CA200" {
		t.Fatalf("unexpected calls list: %+v", resp.Calls)
	}

	if w := f.doJSON(t, http.MethodGet, "/v1/calls/CA200", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := f.doJSON(t, http.MethodGet, "/v1/calls/CA999", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAuditEndpointFilters(t *testing.T) {
	f := newFixture(t)
	f.postForm(t, "/twilio/voice", map[string]string{"CallSid": "CA300", "From": "+15550100"})

	w := f.doJSON(t, http.MethodGet, "/v1/audit?entity_type=call_session&action=call.started", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Entries []audit.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].EntityID != "CA300" {
		t.Fatalf("unexpected audit entries: %+v", resp.Entries)
	}
}
