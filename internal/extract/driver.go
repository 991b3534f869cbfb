package extract

import (
	"regexp"
	"strings"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/clock"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// Phrase lists for driver-response classification. Matching is
// case-insensitive on the whole utterance.
var (
	uncertaintyPhrases = []string{
		"don't think", "dont think", "not sure", "i doubt", "hard to say",
		"no idea", "can't tell", "cant tell", "might not", "maybe", "i guess",
		"let me check", "have to check", "not certain",
	}
	counterFramingPhrases = []string{
		"how about", "what about", "could do", "can do", "can we do",
		"instead", "rather", "better for me", "works better", "make it",
	}
	rejectionPhrases = []string{
		"won't work", "wont work", "doesn't work", "doesnt work", "not possible",
		"impossible", "can't make", "cant make", "cannot make", "no way",
		"can't do", "cant do", "cannot do", "not going to happen",
	}
	affirmativePhrases = []string{
		"yes", "yeah", "yep", "yup", "sure", "sounds good", "that works",
		"works for me", "works fine", "confirmed", "confirm", "will do",
		"no problem", "no worries", "ok", "okay", "absolutely", "perfect",
		"got it", "see you then", "i'll be there", "ill be there",
	}

	bareNoRe = regexp.MustCompile(`(?i)\bno\b`)

	phraseRes = map[string]*regexp.Regexp{}
)

func init() {
	for _, list := range [][]string{uncertaintyPhrases, counterFramingPhrases, rejectionPhrases, affirmativePhrases} {
		for _, p := range list {
			phraseRes[p] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(p) + `\b`)
		}
	}
}

// DriverResponseFromMessage classifies a driver's utterance as a reaction to
// a proposed time ("HH:MM").
//
// The priority order is a deliberate heuristic tie-break and must be
// preserved exactly:
//
//  1. Negation/uncertainty phrases force unclear even when a time is
//     mentioned, so "I don't think 3:30 works" is never read as accepting
//     3:30.
//  2. A mentioned time different from the proposal, especially with counter
//     framing, is a counter-proposal; the same time mentioned back is not.
//  3. Explicit rejection phrases reject.
//  4. Explicit or implicit affirmatives confirm.
//  5. Otherwise there is no signal.
func DriverResponseFromMessage(text, proposedTime string) models.DriverResponse {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return models.DriverResponse{Kind: models.DriverNone}
	}

	if containsAny(lower, uncertaintyPhrases) {
		return models.DriverResponse{Kind: models.DriverUnclear}
	}

	if mentioned, ok := TimeFromMessage(text); ok && !sameClockTime(mentioned, proposedTime) {
		if containsAny(lower, counterFramingPhrases) || !containsAny(lower, rejectionPhrases) {
			return models.DriverResponse{Kind: models.DriverCounterProposal, CounterTime: mentioned}
		}
	}

	if containsAny(lower, rejectionPhrases) || isBareNo(lower) {
		return models.DriverResponse{Kind: models.DriverRejected}
	}

	if containsAny(lower, affirmativePhrases) {
		return models.DriverResponse{Kind: models.DriverConfirmed}
	}

	return models.DriverResponse{Kind: models.DriverNone}
}

// sameClockTime reports whether two "HH:MM" times refer to the same moment,
// treating a 12-hour ambiguous mention as equal to its 24-hour counterpart
// ("3:30" counts as "15:30").
func sameClockTime(a, b string) bool {
	ma, errA := clock.MinuteOfDay(a)
	mb, errB := clock.MinuteOfDay(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ma%720 == mb%720
}

// containsAny matches phrases on word boundaries so that short tokens like
// "ok" never match inside words like "booking".
func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if phraseRes[p].MatchString(text) {
			return true
		}
	}
	return false
}

// isBareNo detects a standalone "no" that is not part of an affirmative
// idiom like "no problem".
func isBareNo(lower string) bool {
	if strings.Contains(lower, "no problem") || strings.Contains(lower, "no worries") {
		return false
	}
	return bareNoRe.MatchString(lower)
}
