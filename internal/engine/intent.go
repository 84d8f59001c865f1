package engine

import (
	"regexp"

	"voicebot-platform/internal/session"
)

// Intent detection is a cheap regex pass over the utterance. It only seeds
// the session's intent field for routing and reporting; the turn generator
// still sees the raw words.

var (
	cancelRe  = regexp.MustCompile(`(?i)\b(cancel|call (it )?off|drop (my|the) (reservation|booking))\b`)
	modifyRe  = regexp.MustCompile(`(?i)\b(change|move|reschedule|modify|update|push back|different time)\b`)
	lookupRe  = regexp.MustCompile(`(?i)\b(look up|find my|do i have|check (my|on)|existing (reservation|booking)|my (reservation|booking))\b`)
	createRe  = regexp.MustCompile(`(?i)\b(book|reserve|reservation|a table|table for)\b`)
	inquiryRe = regexp.MustCompile(`(?i)\b(hours?|open|close|closing|address|location|located|parking|menu|dress code)\b`)

	yesRe = regexp.MustCompile(`(?i)\b(yes|yeah|yep|yup|sure|correct|right|confirm|go ahead|please do|sounds good|that works)\b`)
	noRe  = regexp.MustCompile(`(?i)\b(no|nope|don't|do not|never mind|nevermind|wrong|not that|leave it)\b`)
)

// classifyIntent maps an utterance to a session intent. Order matters:
// "cancel my reservation" must not read as a booking request.
func classifyIntent(utterance string) session.Intent {
	switch {
	case cancelRe.MatchString(utterance):
		return session.IntentReservationCancel
	case modifyRe.MatchString(utterance):
		return session.IntentReservationModify
	case lookupRe.MatchString(utterance):
		return session.IntentLookup
	case createRe.MatchString(utterance):
		return session.IntentReservationCreate
	case inquiryRe.MatchString(utterance):
		return session.IntentGeneralInquiry
	default:
		return session.IntentUnknown
	}
}

type confirmAnswer int

const (
	answerAmbiguous confirmAnswer = iota
	answerYes
	answerNo
)

// classifyConfirmation reads a yes/no answer. An utterance matching both
// ("yes, wait, no") is ambiguous and gets re-asked.
func classifyConfirmation(utterance string) confirmAnswer {
	yes := yesRe.MatchString(utterance)
	no := noRe.MatchString(utterance)
	switch {
	case yes && !no:
		return answerYes
	case no && !yes:
		return answerNo
	default:
		return answerAmbiguous
	}
}
