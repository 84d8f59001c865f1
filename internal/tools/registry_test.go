package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"voicebot-platform/internal/audit"
	"voicebot-platform/internal/config"
	"voicebot-platform/internal/reservation"
	"voicebot-platform/internal/schedule"
)

func testRestaurantConfig() config.RestaurantConfig {
	return config.RestaurantConfig{
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
		MaxReservationsPerSlot:   15,
		MaxGuestsPerSlot:         120,
	}
}

type fixture struct {
	reg       *Registry
	auditRepo *audit.MemoryRepo
	resSvc    *reservation.Service
	policy    *schedule.Policy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rc := testRestaurantConfig()
	policy, err := schedule.NewPolicy(rc)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, policy.Location())
	resSvc := reservation.NewService(reservation.NewMemoryRepo(), policy).
		WithClock(func() time.Time { return now })
	auditRepo := audit.NewMemoryRepo()
	reg := NewRegistry(audit.NewService(auditRepo), NewMemoryDedupStore())
	if err := NewReservationToolset(reg, resSvc, policy, rc); err != nil {
		t.Fatalf("toolset: %v", err)
	}
	return &fixture{reg: reg, auditRepo: auditRepo, resSvc: resSvc, policy: policy}
}

func createArgs() json.RawMessage {
	return json.RawMessage(`{
		"guest_name": "Dana",
		"party_size": 4,
		"date": "2026-06-01",
		"time": "18:30"
	}`)
}

func TestInvokeUnknownTool(t *testing.T) {
	f := newFixture(t)
	call := CallContext{CallID: "CA1", Step: "s1", PhoneNumber: "+15550100"}

	_, err := f.reg.Invoke(context.Background(), call, "drop_tables", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}

	entries := f.auditRepo.Entries()
	if len(entries) != 1 || entries[0].Action != audit.ActionToolFailed {
		t.Fatalf("expected one tool.failed audit entry, got %+v", entries)
	}
}

func TestInvokeRejectsBadArguments(t *testing.T) {
	f := newFixture(t)
	call := CallContext{CallID: "CA1", Step: "s1", PhoneNumber: "+15550100"}

	cases := []json.RawMessage{
		json.RawMessage(`{"guest_name": "Dana"}`),
		json.RawMessage(`{"guest_name": "Dana", "party_size": "four", "date": "2026-06-01", "time": "18:30"}`),
		json.RawMessage(`{"guest_name": "Dana", "party_size": 4, "date": "june 1st", "time": "18:30"}`),
		json.RawMessage(`not json`),
	}
	for i, args := range cases {
		if _, err := f.reg.Invoke(context.Background(), call, "create_reservation", args); !errors.Is(err, ErrInvalidArguments) {
			t.Fatalf("case %d: expected ErrInvalidArguments, got %v", i, err)
		}
	}
	// Nothing was booked.
	list, _ := f.resSvc.Lookup(context.Background(), "+15550100")
	if len(list) != 0 {
		t.Fatalf("expected no bookings after rejected calls")
	}
}

func TestInvokeAuditsEveryAttemptOnce(t *testing.T) {
	f := newFixture(t)
	call := CallContext{CallID: "CA1", Step: "s1", PhoneNumber: "+15550100"}
	ctx := context.Background()

	if _, err := f.reg.Invoke(ctx, call, "create_reservation", createArgs()); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = f.reg.Invoke(ctx, call, "create_reservation", json.RawMessage(`{}`))
	if _, err := f.reg.Invoke(ctx, call, "create_reservation", createArgs()); err != nil {
		t.Fatalf("replay: %v", err)
	}

	entries := f.auditRepo.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}
	want := []string{audit.ActionToolInvoked, audit.ActionToolFailed, audit.ActionToolDeduplicated}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], e.Action)
		}
	}
}

func TestEffectfulInvokeIsDeduplicated(t *testing.T) {
	f := newFixture(t)
	call := CallContext{CallID: "CA1", Step: "s1", PhoneNumber: "+15550100"}
	ctx := context.Background()

	first, err := f.reg.Invoke(ctx, call, "create_reservation", createArgs())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.reg.Invoke(ctx, call, "create_reservation", createArgs())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Message != second.Message || string(first.Data) != string(second.Data) {
		t.Fatalf("expected replayed result, got different results")
	}

	// Only one booking exists.
	list, _ := f.resSvc.Lookup(ctx, "+15550100")
	if len(list) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(list))
	}
}

func TestDedupRejectsSameTokenDifferentArguments(t *testing.T) {
	f := newFixture(t)
	call := CallContext{CallID: "CA1", Step: "s1", PhoneNumber: "+15550100"}
	ctx := context.Background()

	if _, err := f.reg.Invoke(ctx, call, "create_reservation", createArgs()); err != nil {
		t.Fatalf("first: %v", err)
	}
	other := json.RawMessage(`{
		"guest_name": "Dana",
		"party_size": 6,
		"date": "2026-06-01",
		"time": "18:30"
	}`)
	_, err := f.reg.Invoke(ctx, call, "create_reservation", other)
	if !errors.Is(err, ErrDedupConflict) {
		t.Fatalf("expected ErrDedupConflict, got %v", err)
	}

	// The original booking stands, unchanged and alone.
	list, _ := f.resSvc.Lookup(ctx, "+15550100")
	if len(list) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(list))
	}
	if list[0].PartySize != 4 {
		t.Fatalf("expected party of 4, got %d", list[0].PartySize)
	}

	entries := f.auditRepo.Entries()
	last := entries[len(entries)-1]
	if last.Action != audit.ActionToolFailed {
		t.Fatalf("expected tool.failed audit entry, got %s", last.Action)
	}
}

func TestDedupReplayIgnoresKeyOrder(t *testing.T) {
	f := newFixture(t)
	call := CallContext{CallID: "CA1", Step: "s1", PhoneNumber: "+15550100"}
	ctx := context.Background()

	first, err := f.reg.Invoke(ctx, call, "create_reservation", createArgs())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	reordered := json.RawMessage(`{"time":"18:30","date":"2026-06-01","party_size":4,"guest_name":"Dana"}`)
	second, err := f.reg.Invoke(ctx, call, "create_reservation", reordered)
	if err != nil {
		t.Fatalf("reordered retry: %v", err)
	}
	if first.Message != second.Message {
		t.Fatalf("expected replayed result for equivalent arguments")
	}
}

func TestDedupScopedToStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.reg.Invoke(ctx, CallContext{CallID: "CA1", Step: "s1", PhoneNumber: "+15550100"}, "create_reservation", createArgs()); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := f.reg.Invoke(ctx, CallContext{CallID: "CA1", Step: "s2", PhoneNumber: "+15550100"}, "create_reservation", createArgs()); err != nil {
		t.Fatalf("second step: %v", err)
	}

	list, _ := f.resSvc.Lookup(ctx, "+15550100")
	if len(list) != 2 {
		t.Fatalf("expected 2 bookings across distinct steps, got %d", len(list))
	}
}

func TestSafeToolsAreNotDeduplicated(t *testing.T) {
	f := newFixture(t)
	call := CallContext{CallID: "CA1", Step: "s1", PhoneNumber: "+15550100"}
	ctx := context.Background()

	if _, err := f.reg.Invoke(ctx, call, "create_reservation", createArgs()); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Two lookups on the same step both run; the second sees fresh state.
	for i := 0; i < 2; i++ {
		res, err := f.reg.Invoke(ctx, call, "lookup_reservation", nil)
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if res.Message == "" {
			t.Fatalf("lookup %d: empty message", i)
		}
	}
}

func TestDefinitionsHideConfirm(t *testing.T) {
	f := newFixture(t)
	defs := f.reg.Definitions()
	if len(defs) != 6 {
		t.Fatalf("expected 6 advertised tools, got %d", len(defs))
	}
	for _, d := range defs {
		if d.Name == "confirm_reservation" {
			t.Fatalf("confirm_reservation must not be advertised")
		}
	}
}

func TestConfirmToolFinalizesPendingBooking(t *testing.T) {
	f := newFixture(t)
	call := CallContext{CallID: "CA1", Step: "s1", PhoneNumber: "+15550100"}
	ctx := context.Background()

	res, err := f.reg.Invoke(ctx, call, "create_reservation", createArgs())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created reservation.Reservation
	if err := json.Unmarshal(res.Data, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	confirmCall := CallContext{CallID: "CA1", Step: "s2", PhoneNumber: "+15550100"}
	args := json.RawMessage(fmt.Sprintf(`{"reservation_id": %q}`, created.ID))
	out, err := f.reg.Invoke(ctx, confirmCall, "confirm_reservation", args)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	var confirmed reservation.Reservation
	if err := json.Unmarshal(out.Data, &confirmed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if confirmed.Status != reservation.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", confirmed.Status)
	}
}

func TestCheckAvailabilityFiltersByPartySize(t *testing.T) {
	f := newFixture(t)
	call := CallContext{CallID: "CA1", Step: "s1", PhoneNumber: "+15550100"}
	ctx := context.Background()

	res, err := f.reg.Invoke(ctx, call, "check_availability", json.RawMessage(`{"date": "2026-06-01", "party_size": 4}`))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	var open []reservation.SlotAvailability
	if err := json.Unmarshal(res.Data, &open); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(open) != 20 {
		t.Fatalf("expected all 20 slots open, got %d", len(open))
	}
}
