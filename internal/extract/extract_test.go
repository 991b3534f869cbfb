package extract

import "testing"

func TestTimeFromMessage(t *testing.T) {
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"I can do 2:30 pm", "14:30", true},
		{"we have 2:30 PM open", "14:30", true},
		{"how about 14:00", "14:00", true},
		{"earliest is 9 AM", "09:00", true},
		{"maybe 10:15a.m. works", "10:15", true},
		// Bare-hour business-hours heuristic: 1-6 assumed PM.
		{"I can do 2:15", "14:15", true},
		{"around 3 should be fine", "15:00", true},
		{"come by 4 o'clock", "16:00", true},
		{"around 9 we have space", "09:00", true},
		{"12:00 sharp", "12:00", true},
		{"12 pm works", "12:00", true},
		{"12 am is rough", "00:00", true},
		{"no times mentioned here", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := TimeFromMessage(c.text)
		if ok != c.ok {
			t.Errorf("TimeFromMessage(%q) ok = %v, want %v", c.text, ok, c.ok)
			continue
		}
		if got != c.want {
			t.Errorf("TimeFromMessage(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

// Round-trip: a spoken form produced by the formatter must extract back to
// the same minute of day.
func TestTimeExtractionRoundTrip(t *testing.T) {
	for _, spoken := range []string{"2:30 PM", "9 AM", "11:45 PM"} {
		got, ok := TimeFromMessage("let's say " + spoken)
		if !ok {
			t.Fatalf("failed to extract %q", spoken)
		}
		back, ok2 := TimeFromMessage(got)
		if !ok2 || back != got {
			t.Errorf("round trip for %q: %q -> %q", spoken, got, back)
		}
	}
}

func TestDockFromMessage(t *testing.T) {
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"come to dock 7", "7", true},
		{"Dock #12 is open", "12", true},
		{"use bay 3", "3", true},
		{"door B2 around back", "B2", true},
		{"send him to 9", "9", true},
		{"no dock info", "", false},
	}
	for _, c := range cases {
		got, ok := DockFromMessage(c.text)
		if ok != c.ok {
			t.Errorf("DockFromMessage(%q) ok = %v, want %v", c.text, ok, c.ok)
			continue
		}
		if got != c.want {
			t.Errorf("DockFromMessage(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestManagerNameFromMessage(t *testing.T) {
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"Hi, this is Sarah", "Sarah", true},
		{"Mike here, what's up", "Mike", true},
		{"Dana from receiving speaking", "Dana", true},
		{"my name is Robert Paulson", "Robert Paulson", true},
		{"yeah who is this", "", false},
	}
	for _, c := range cases {
		got, ok := ManagerNameFromMessage(c.text)
		if ok != c.ok {
			t.Errorf("ManagerNameFromMessage(%q) ok = %v, want %v", c.text, ok, c.ok)
			continue
		}
		if got != c.want {
			t.Errorf("ManagerNameFromMessage(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}
