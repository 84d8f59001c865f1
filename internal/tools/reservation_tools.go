package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voicebot-platform/internal/config"
	"voicebot-platform/internal/reservation"
	"voicebot-platform/internal/schedule"
)

// NewReservationToolset registers the reservation tools on a registry.
// confirm_reservation is hidden: only the engine invokes it, after the
// caller has said yes.
func NewReservationToolset(reg *Registry, svc *reservation.Service, policy *schedule.Policy, rc config.RestaurantConfig) error {
	for _, t := range []Tool{
		&createReservationTool{svc: svc, policy: policy},
		&modifyReservationTool{svc: svc, policy: policy},
		&cancelReservationTool{svc: svc},
		&lookupReservationTool{svc: svc, policy: policy},
		&checkAvailabilityTool{svc: svc, policy: policy},
		&restaurantInfoTool{rc: rc},
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return reg.RegisterHidden(&confirmReservationTool{svc: svc})
}

func parseSlot(date, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q", date, clock)
	}
	return t, nil
}

func reservationData(r *reservation.Reservation) json.RawMessage {
	b, _ := json.Marshal(r)
	return b
}

type createReservationTool struct {
	svc    *reservation.Service
	policy *schedule.Policy
}

func (t *createReservationTool) Name() string { return "create_reservation" }
func (t *createReservationTool) Description() string {
	return "Book a table. The booking starts pending and must be confirmed by the caller before it is final."
}
func (t *createReservationTool) Class() Class { return ClassEffectful }
func (t *createReservationTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"guest_name": {"type": "string", "minLength": 1},
			"party_size": {"type": "integer", "minimum": 1},
			"date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"time": {"type": "string", "pattern": "^\\d{2}:\\d{2}$"},
			"notes": {"type": "string"}
		},
		"required": ["guest_name", "party_size", "date", "time"],
		"additionalProperties": false
	}`)
}

func (t *createReservationTool) Invoke(ctx context.Context, call CallContext, args json.RawMessage) (Result, error) {
	var in struct {
		GuestName string `json:"guest_name"`
		PartySize int    `json:"party_size"`
		Date      string `json:"date"`
		Time      string `json:"time"`
		Notes     string `json:"notes"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Result{}, err
	}
	slot, err := parseSlot(in.Date, in.Time, t.policy.Location())
	if err != nil {
		return Result{}, err
	}
	r, err := t.svc.Create(ctx, reservation.CreateInput{
		PhoneNumber: call.PhoneNumber,
		GuestName:   in.GuestName,
		PartySize:   in.PartySize,
		SlotStart:   slot,
		Notes:       in.Notes,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Message: fmt.Sprintf("Pending booking for %d under %s on %s at %s. Awaiting caller confirmation.",
			r.PartySize, r.GuestName, in.Date, in.Time),
		Data: reservationData(r),
	}, nil
}

type modifyReservationTool struct {
	svc    *reservation.Service
	policy *schedule.Policy
}

func (t *modifyReservationTool) Name() string { return "modify_reservation" }
func (t *modifyReservationTool) Description() string {
	return "Change an existing booking's name, party size, date, time or notes."
}
func (t *modifyReservationTool) Class() Class { return ClassEffectful }
func (t *modifyReservationTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"reservation_id": {"type": "string", "minLength": 1},
			"guest_name": {"type": "string", "minLength": 1},
			"party_size": {"type": "integer", "minimum": 1},
			"date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"time": {"type": "string", "pattern": "^\\d{2}:\\d{2}$"},
			"notes": {"type": "string"}
		},
		"required": ["reservation_id"],
		"additionalProperties": false
	}`)
}

func (t *modifyReservationTool) Invoke(ctx context.Context, call CallContext, args json.RawMessage) (Result, error) {
	var in struct {
		ReservationID string  `json:"reservation_id"`
		GuestName     *string `json:"guest_name"`
		PartySize     *int    `json:"party_size"`
		Date          *string `json:"date"`
		Time          *string `json:"time"`
		Notes         *string `json:"notes"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Result{}, err
	}

	var mi reservation.ModifyInput
	mi.GuestName = in.GuestName
	mi.PartySize = in.PartySize
	mi.Notes = in.Notes
	if in.Date != nil || in.Time != nil {
		if in.Date == nil || in.Time == nil {
			return Result{}, fmt.Errorf("date and time must be changed together")
		}
		slot, err := parseSlot(*in.Date, *in.Time, t.policy.Location())
		if err != nil {
			return Result{}, err
		}
		mi.SlotStart = &slot
	}

	r, err := t.svc.Modify(ctx, in.ReservationID, call.PhoneNumber, mi)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Message: fmt.Sprintf("Booking updated: party of %d under %s.", r.PartySize, r.GuestName),
		Data:    reservationData(r),
	}, nil
}

type cancelReservationTool struct {
	svc *reservation.Service
}

func (t *cancelReservationTool) Name() string { return "cancel_reservation" }
func (t *cancelReservationTool) Description() string {
	return "Cancel an existing booking. Ask the caller to confirm before calling this."
}
func (t *cancelReservationTool) Class() Class { return ClassEffectful }
func (t *cancelReservationTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"reservation_id": {"type": "string", "minLength": 1}
		},
		"required": ["reservation_id"],
		"additionalProperties": false
	}`)
}

func (t *cancelReservationTool) Invoke(ctx context.Context, call CallContext, args json.RawMessage) (Result, error) {
	var in struct {
		ReservationID string `json:"reservation_id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Result{}, err
	}
	r, err := t.svc.Cancel(ctx, in.ReservationID, call.PhoneNumber)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Message: fmt.Sprintf("Booking for %s is canceled.", r.GuestName),
		Data:    reservationData(r),
	}, nil
}

type confirmReservationTool struct {
	svc *reservation.Service
}

func (t *confirmReservationTool) Name() string { return "confirm_reservation" }
func (t *confirmReservationTool) Description() string {
	return "Finalize a pending booking after the caller has said yes."
}
func (t *confirmReservationTool) Class() Class { return ClassEffectful }
func (t *confirmReservationTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"reservation_id": {"type": "string", "minLength": 1}
		},
		"required": ["reservation_id"],
		"additionalProperties": false
	}`)
}

func (t *confirmReservationTool) Invoke(ctx context.Context, call CallContext, args json.RawMessage) (Result, error) {
	var in struct {
		ReservationID string `json:"reservation_id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Result{}, err
	}
	r, err := t.svc.Confirm(ctx, in.ReservationID, call.PhoneNumber)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Message: fmt.Sprintf("Booking for %s is confirmed.", r.GuestName),
		Data:    reservationData(r),
	}, nil
}

type lookupReservationTool struct {
	svc    *reservation.Service
	policy *schedule.Policy
}

func (t *lookupReservationTool) Name() string { return "lookup_reservation" }
func (t *lookupReservationTool) Description() string {
	return "List the caller's upcoming bookings, identified by their phone number."
}
func (t *lookupReservationTool) Class() Class { return ClassSafe }
func (t *lookupReservationTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {},
		"additionalProperties": false
	}`)
}

func (t *lookupReservationTool) Invoke(ctx context.Context, call CallContext, _ json.RawMessage) (Result, error) {
	list, err := t.svc.Lookup(ctx, call.PhoneNumber)
	if err != nil {
		return Result{}, err
	}
	if len(list) == 0 {
		return Result{Message: "No upcoming bookings for this phone number."}, nil
	}
	b, _ := json.Marshal(list)
	first := list[0]
	return Result{
		Message: fmt.Sprintf("Found %d upcoming booking(s); next is a party of %d under %s on %s.",
			len(list), first.PartySize, first.GuestName,
			first.SlotStart.In(t.policy.Location()).Format("Jan 2 at 3:04 PM")),
		Data: b,
	}, nil
}

type checkAvailabilityTool struct {
	svc    *reservation.Service
	policy *schedule.Policy
}

func (t *checkAvailabilityTool) Name() string { return "check_availability" }
func (t *checkAvailabilityTool) Description() string {
	return "List open seating times for a date, optionally for a given party size."
}
func (t *checkAvailabilityTool) Class() Class { return ClassSafe }
func (t *checkAvailabilityTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"party_size": {"type": "integer", "minimum": 1}
		},
		"required": ["date"],
		"additionalProperties": false
	}`)
}

func (t *checkAvailabilityTool) Invoke(ctx context.Context, _ CallContext, args json.RawMessage) (Result, error) {
	var in struct {
		Date      string `json:"date"`
		PartySize int    `json:"party_size"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Result{}, err
	}
	day, err := time.ParseInLocation("2006-01-02", in.Date, t.policy.Location())
	if err != nil {
		return Result{}, fmt.Errorf("invalid date %q", in.Date)
	}
	all, err := t.svc.Availability(ctx, day.Year(), day.Month(), day.Day())
	if err != nil {
		return Result{}, err
	}

	var open []reservation.SlotAvailability
	for _, sa := range all {
		if sa.RemainingReservations == 0 {
			continue
		}
		if in.PartySize > 0 && sa.RemainingGuests < in.PartySize {
			continue
		}
		open = append(open, sa)
	}
	b, _ := json.Marshal(open)
	return Result{
		Message: fmt.Sprintf("%d open seating time(s) on %s.", len(open), in.Date),
		Data:    b,
	}, nil
}

type restaurantInfoTool struct {
	rc config.RestaurantConfig
}

func (t *restaurantInfoTool) Name() string { return "get_restaurant_info" }
func (t *restaurantInfoTool) Description() string {
	return "Answer questions about hours, location and booking policy."
}
func (t *restaurantInfoTool) Class() Class { return ClassSafe }
func (t *restaurantInfoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {},
		"additionalProperties": false
	}`)
}

func (t *restaurantInfoTool) Invoke(_ context.Context, _ CallContext, _ json.RawMessage) (Result, error) {
	info := map[string]any{
		"name":            t.rc.Name,
		"timezone":        t.rc.Timezone,
		"open_time":       t.rc.OpenTime,
		"close_time":      t.rc.CloseTime,
		"max_party_size":  t.rc.MaxPartySize,
		"min_lead_time_m": t.rc.MinLeadTimeMinutes,
	}
	b, _ := json.Marshal(info)
	return Result{
		Message: fmt.Sprintf("%s is open daily %s to %s.", t.rc.Name, t.rc.OpenTime, t.rc.CloseTime),
		Data:    b,
	}, nil
}
