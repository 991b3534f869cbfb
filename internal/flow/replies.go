package flow

import (
	"fmt"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/clock"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// Dispatcher reply templates for the text channel. Kept as functions rather
// than a template engine: the dispatcher's lines are few and tightly coupled
// to session state.

func greetingReply() string {
	return "Hi, this is dispatch. Could I get your name before we sort out a schedule change?"
}

func delayExplanationReply(sess *models.Session) string {
	original := clock.FormatForSpeech(sess.Params.OriginalAppointment)
	arrival := clock.FormatForSpeech(sess.Strategy.ActualArrival)
	name := sess.ContactName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"Thanks %s. Our driver for the %s appointment is running about %d minutes behind and now expects to arrive around %s. What's the earliest slot you could fit us in?",
		name, original, sess.Params.DelayMinutes, arrival)
}

func pushbackReply(strategy models.NegotiationStrategy) string {
	return fmt.Sprintf(
		"That slot is tough on our end. Detention and penalties start adding up past %s. Could you fit us in any earlier than that?",
		clock.FormatForSpeech(strategy.AcceptableBefore))
}

func askDockReply(confirmedTime string) string {
	return fmt.Sprintf("%s works for us. Which dock should the driver head to?", clock.FormatForSpeech(confirmedTime))
}

func confirmReply(sess *models.Session) string {
	return fmt.Sprintf("Perfect — rescheduling to %s at dock %s. Can you confirm that's locked in?",
		clock.FormatForSpeech(sess.ConfirmedTime), sess.ConfirmedDock)
}

func doneReply(sess *models.Session) string {
	return fmt.Sprintf("Appreciate it. We're confirmed for %s at dock %s. The driver will see you then.",
		clock.FormatForSpeech(sess.ConfirmedTime), sess.ConfirmedDock)
}

func askTimeAgainReply() string {
	return "Sorry, I didn't catch a time there. What's the earliest slot you could take the truck?"
}
