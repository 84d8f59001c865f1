package telephony

import (
	"net/http"
	"strings"
	"time"
)

// TwilioVoiceForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
//
// Keep it minimal and provider-adapter-only.

type TwilioVoiceForm struct {
	CallSid      string
	AccountSid   string
	From         string
	To           string
	CallStatus   string
	Direction    string
	SpeechResult string
	Confidence   string
	Digits       string
}

func ParseTwilioVoiceForm(r *http.Request) (TwilioVoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioVoiceForm{}, err
	}
	return TwilioVoiceForm{
		CallSid:      r.PostFormValue("CallSid"),
		AccountSid:   r.PostFormValue("AccountSid"),
		From:         normalizePhone(r.PostFormValue("From")),
		To:           normalizePhone(r.PostFormValue("To")),
		CallStatus:   r.PostFormValue("CallStatus"),
		Direction:    r.PostFormValue("Direction"),
		SpeechResult: strings.TrimSpace(r.PostFormValue("SpeechResult")),
		Confidence:   r.PostFormValue("Confidence"),
		Digits:       r.PostFormValue("Digits"),
	}, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}

// ToCallEvent normalizes the webhook into an engine event. The first hit on
// the answer URL has no speech yet and becomes call_started; later hits on
// the gather URL carry the utterance.
func (f TwilioVoiceForm) ToCallEvent(occurredAt time.Time) CallEvent {
	e := CallEvent{
		CallID:     f.CallSid,
		From:       f.From,
		To:         f.To,
		OccurredAt: occurredAt,
	}
	switch {
	case isFinalStatus(f.CallStatus):
		e.Kind = EventCallEnded
		e.EndedReason = f.CallStatus
	case f.SpeechResult != "" || f.Digits != "":
		e.Kind = EventUtterance
		e.Utterance = f.SpeechResult
		if e.Utterance == "" {
			e.Utterance = f.Digits
		}
	default:
		e.Kind = EventCallStarted
	}
	return e
}

func isFinalStatus(s string) bool {
	switch strings.ToLower(s) {
	case "completed", "busy", "failed", "no-answer", "canceled":
		return true
	default:
		return false
	}
}
