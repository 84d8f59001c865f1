package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name  `xml:"Gather"`
	Input         string    `xml:"input,attr"`
	Action        string    `xml:"action,attr"`
	Method        string    `xml:"method,attr"`
	SpeechTimeout string    `xml:"speechTimeout,attr,omitempty"`
	Say           *twimlSay `xml:"Say,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	URL     string   `xml:",chardata"`
}

const sayVoice = "Polly.Joanna"

// RenderReply maps an engine Reply to TwiML. Non-hangup replies speak
// inside a Gather so the caller can answer immediately, then redirect back
// to the gather URL if the caller stays silent.
func RenderReply(rep Reply) (string, error) {
	var r twimlResponse

	if rep.Hangup {
		if rep.Say != "" {
			r.Verbs = append(r.Verbs, twimlSay{Voice: sayVoice, Text: rep.Say})
		}
		r.Verbs = append(r.Verbs, twimlHangup{})
		return encodeTwiML(r)
	}

	if strings.TrimSpace(rep.GatherAction) == "" {
		return "", errors.New("telephony: gather action required unless hanging up")
	}
	g := twimlGather{
		Input:         "speech dtmf",
		Action:        rep.GatherAction,
		Method:        "POST",
		SpeechTimeout: "auto",
	}
	if rep.Say != "" {
		g.Say = &twimlSay{Voice: sayVoice, Text: rep.Say}
	}
	r.Verbs = append(r.Verbs, g)
	r.Verbs = append(r.Verbs, twimlRedirect{URL: rep.GatherAction})
	return encodeTwiML(r)
}

func encodeTwiML(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
