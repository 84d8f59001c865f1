package telephony

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func postForm(values url.Values) *TwilioVoiceForm {
	req := httptest.NewRequest("POST", "/twilio/voice", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	f, err := ParseTwilioVoiceForm(req)
	if err != nil {
		panic(err)
	}
	return &f
}

func TestToCallEventStart(t *testing.T) {
	f := postForm(url.Values{
		"CallSid":    {"CA123"},
		"From":       {"+15550100"},
		"To":         {"+15550999"},
		"CallStatus": {"ringing"},
	})
	e := f.ToCallEvent(time.Now())
	if e.Kind != EventCallStarted {
		t.Fatalf("expected call_started, got %s", e.Kind)
	}
	if e.CallID != "CA123" || e.From != "+15550100" {
		t.Fatalf("unexpected event fields: %+v", e)
	}
}

func TestToCallEventUtterance(t *testing.T) {
	f := postForm(url.Values{
		"CallSid":      {"CA123"},
		"From":         {"+15550100"},
		"CallStatus":   {"in-progress"},
		"SpeechResult": {"  table for four tonight "},
	})
	e := f.ToCallEvent(time.Now())
	if e.Kind != EventUtterance {
		t.Fatalf("expected utterance, got %s", e.Kind)
	}
	if e.Utterance != "table for four tonight" {
		t.Fatalf("expected trimmed utterance, got %q", e.Utterance)
	}
}

func TestToCallEventDigitsFallback(t *testing.T) {
	f := postForm(url.Values{
		"CallSid":    {"CA123"},
		"CallStatus": {"in-progress"},
		"Digits":     {"1"},
	})
	e := f.ToCallEvent(time.Now())
	if e.Kind != EventUtterance || e.Utterance != "1" {
		t.Fatalf("expected digits as utterance, got %+v", e)
	}
}

func TestToCallEventEnded(t *testing.T) {
	for _, status := range []string{"completed", "no-answer", "failed"} {
		f := postForm(url.Values{
			"CallSid":    {"CA123"},
			"CallStatus": {status},
		})
		e := f.ToCallEvent(time.Now())
		if e.Kind != EventCallEnded {
			t.Fatalf("status %s: expected call_ended, got %s", status, e.Kind)
		}
		if e.EndedReason != status {
			t.Fatalf("status %s: expected reason carried, got %q", status, e.EndedReason)
		}
	}
}

func TestRenderReplyGather(t *testing.T) {
	out, err := RenderReply(Reply{Say: "Table for four, got it.", GatherAction: "/twilio/gather"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"<Gather", `action="/twilio/gather"`, "<Say", "Table for four, got it.", "<Redirect"} {
		if !strings.Contains(out, want) {
			t.Fatalf("twiml missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReplyHangup(t *testing.T) {
	out, err := RenderReply(Reply{Say: "Goodbye.", Hangup: true})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<Hangup") || !strings.Contains(out, "Goodbye.") {
		t.Fatalf("unexpected twiml:\n%s", out)
	}
	if strings.Contains(out, "<Gather") {
		t.Fatalf("hangup reply must not gather:\n%s", out)
	}
}

func TestRenderReplyRequiresGatherAction(t *testing.T) {
	if _, err := RenderReply(Reply{Say: "hello"}); err == nil {
		t.Fatalf("expected error without gather action")
	}
}
