// Package extract implements the utterance extraction heuristics: pulling
// clock times, dock identifiers and names out of free-text chat and
// transcript utterances.
//
// These are deliberately small regex heuristics, not NLP. Each extractor
// tries its patterns in a fixed priority order and the first match wins;
// returning no match is normal and results in a re-prompt upstream, never an
// error.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/clock"
)

var (
	// Explicit "H:MM" with optional meridiem, e.g. "2:30 pm", "14:00".
	clockTimeRe = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*(a\.?m\.?|p\.?m\.?)?`)
	// Bare hour with meridiem, e.g. "2 pm", "9am".
	bareHourRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(a\.?m\.?|p\.?m\.?)\b`)
	// "around H" / "about H".
	aroundRe = regexp.MustCompile(`(?i)\b(?:around|about)\s+(\d{1,2})\b`)
	// "H o'clock".
	oclockRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s*o'?\s?clock\b`)

	dockRe         = regexp.MustCompile(`(?i)\b(?:dock|bay|door)\s*#?\s*([A-Za-z]?\d+)\b`)
	dockFallbackRe = regexp.MustCompile(`(?i)\b(?:at|to)\s+#?(\d{1,2})\b`)

	nameThisIsRe = regexp.MustCompile(`(?i)\b(?:this is|my name is|it's|name's)\s+([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)`)
	nameHereRe   = regexp.MustCompile(`\b([A-Z][a-z]+)\s+here\b`)
	nameFromRe   = regexp.MustCompile(`\b([A-Z][a-z]+)\s+from\s+(?:receiving|the warehouse|shipping|the dock)`)
)

// TimeFromMessage extracts the first clock time mentioned in the text,
// normalized to 24-hour "HH:MM". Patterns are tried in order: explicit H:MM
// with optional am/pm, bare hour with am/pm, "around H", "H o'clock".
//
// A bare hour without a meridiem is resolved by a business-hours heuristic:
// 1 through 6 are assumed PM, 7 through 11 AM. This is documented ambiguity,
// not a bug to fix.
func TimeFromMessage(text string) (string, bool) {
	if m := clockTimeRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if minute > 59 || hour > 23 {
			return "", false
		}
		if hour > 12 {
			// Already 24-hour; meridiem, if any, is ignored.
			return formatHM(hour, minute), true
		}
		return formatHM(resolveHour(hour, m[3]), minute), true
	}
	if m := bareHourRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour >= 1 && hour <= 12 {
			return formatHM(resolveHour(hour, m[2]), 0), true
		}
	}
	for _, re := range []*regexp.Regexp{aroundRe, oclockRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			hour, _ := strconv.Atoi(m[1])
			if hour >= 0 && hour <= 23 {
				if hour > 12 {
					return formatHM(hour, 0), true
				}
				return formatHM(resolveHour(hour, ""), 0), true
			}
		}
	}
	return "", false
}

// resolveHour maps a 1-12 hour plus an optional meridiem to a 24-hour hour.
// Without a meridiem: 1-6 assumed PM, 12 is noon, the rest AM.
func resolveHour(h12 int, meridiem string) int {
	h := h12
	switch normalizeMeridiem(meridiem) {
	case "pm":
		if h != 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	default:
		if h >= 1 && h <= 6 {
			h += 12
		} else if h == 12 {
			// noon
		}
	}
	return h
}

func normalizeMeridiem(m string) string {
	m = strings.ToLower(strings.ReplaceAll(m, ".", ""))
	switch m {
	case "am", "pm":
		return m
	default:
		return ""
	}
}

func formatHM(h, m int) string {
	return clock.FromMinuteOfDay(h*60 + m)
}

// DockFromMessage extracts a dock identifier like "dock 7", "Bay #3" or
// "door B2", falling back to "at 7" / "to 12" phrasing.
func DockFromMessage(text string) (string, bool) {
	if m := dockRe.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1]), true
	}
	if m := dockFallbackRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return "", false
}

// ManagerNameFromMessage extracts a self-introduced name from patterns like
// "this is Sarah", "Sarah here" or "Mike from receiving".
func ManagerNameFromMessage(text string) (string, bool) {
	for _, re := range []*regexp.Regexp{nameThisIsRe, nameHereRe, nameFromRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}
