package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"voicebot-platform/internal/reservation"
)

// Caller-facing wording lives here so the state machine reads cleanly.

func greeting(restaurantName string) string {
	return fmt.Sprintf("Thank you for calling %s. How can I help you today?", restaurantName)
}

const (
	replyRetry = "Sorry, I didn't catch that. Could you say it again?"

	replyEscalate = "I'm sorry, I'm having trouble helping you right now. " +
		"Please call back in a few minutes or reach us during opening hours to speak with our staff. Goodbye."

	replyReconfirm = "Sorry, I need a yes or no. Should I go ahead?"

	replyCallOver = "This call has already ended. Goodbye."
)

func confirmBookingQuestion(raw json.RawMessage, loc *time.Location) string {
	var r reservation.Reservation
	if err := json.Unmarshal(raw, &r); err != nil || r.ID == "" {
		return "Should I confirm that booking? Please say yes or no."
	}
	return fmt.Sprintf("I have a table for %d under %s on %s. Shall I confirm it?",
		r.PartySize, r.GuestName, r.SlotStart.In(loc).Format("Monday, January 2 at 3:04 PM"))
}

const (
	confirmCancelQuestion = "Just to be sure: you'd like me to cancel that booking. Is that right?"
	confirmModifyQuestion = "Just to be sure: you'd like me to change that booking as described. Is that right?"

	replyBookingDeclined = "Okay, I haven't booked anything. Is there something else I can help with?"
	replyCancelDeclined  = "Okay, your booking stays as it is. Anything else?"
	replyModifyDeclined  = "Okay, I've left your booking unchanged. Anything else?"
)

func confirmedFollowUp(message string) string {
	return message + " Is there anything else I can help with?"
}
