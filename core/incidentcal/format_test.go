package incidentcal

import (
	"strings"
	"testing"
	"time"
)

func TestEmojiAndColorMappings(t *testing.T) {
	cases := []struct {
		priority, emoji, color string
	}{
		{"urgent", "🔴", "#dc2626"},
		{"high", "🟠", "#ea580c"},
		{"medium", "🟡", "#ca8a04"},
		{"low", "🟢", "#16a34a"},
		{"critical", "⚪", "#6b7280"},
		{"", "⚪", "#6b7280"},
	}
	for _, tc := range cases {
		if got := PriorityEmoji(tc.priority); got != tc.emoji {
			t.Fatalf("PriorityEmoji(%q) = %q", tc.priority, got)
		}
		if got := PriorityColor(tc.priority); got != tc.color {
			t.Fatalf("PriorityColor(%q) = %q", tc.priority, got)
		}
	}
	statuses := map[string]string{"open": "📋", "in_progress": "🔧", "resolved": "✅", "closed": "🔒", "archived": "📌"}
	for status, want := range statuses {
		if got := StatusEmoji(status); got != want {
			t.Fatalf("StatusEmoji(%q) = %q", status, got)
		}
	}
}

func TestDescriptionLineOrder(t *testing.T) {
	f := NewFormatter("en", time.UTC)
	inc := powerOutage()
	loc := "Building A"
	role := "maintenance"
	assignee := int64(7)
	inc.Location = &loc
	inc.AssigneeRole = &role
	inc.AssigneeID = &assignee
	inc.AssigneeName = "Bob Stone"

	want := strings.Join([]string{
		"Category: Facilities",
		"Priority: Urgent",
		"Status: Open",
		"Location: Building A",
		"",
		"Description:",
		"No power in wing B",
		"Assigned to: Bob Stone",
		"",
		"---",
		"Reported by A. Martin on 2026-03-14 08:15",
	}, "\n")
	if got := f.Description(inc); got != want {
		t.Fatalf("description mismatch:\n%s\nwant:\n%s", got, want)
	}

	inc.AssigneeID = nil
	inc.AssigneeName = ""
	inc.Location = nil
	got := f.Description(inc)
	if !strings.Contains(got, "Assigned role: maintenance") || strings.Contains(got, "Assigned to:") {
		t.Fatalf("role attribution expected:\n%s", got)
	}
	if strings.Contains(got, "Location:") {
		t.Fatalf("absent location must not render:\n%s", got)
	}
	lines := strings.Split(got, "\n")
	if lines[3] != "" || lines[4] != "Description:" {
		t.Fatalf("blank line must follow status when location is absent: %q", lines)
	}

	inc.AssigneeRole = nil
	if got := f.Description(inc); strings.Contains(got, "Assigned") {
		t.Fatalf("no attribution expected:\n%s", got)
	}
}

func TestDescriptionUnknownEnumsAndFrench(t *testing.T) {
	inc := powerOutage()
	inc.Priority = "critical"
	inc.Status = "archived"
	got := NewFormatter("en", time.UTC).Description(inc)
	if !strings.Contains(got, "Priority: critical") || !strings.Contains(got, "Status: archived") {
		t.Fatalf("unknown values must print raw:\n%s", got)
	}

	fr := NewFormatter("fr-CA", time.UTC).Description(powerOutage())
	if !strings.Contains(fr, "Priorité : Urgente") || !strings.Contains(fr, "Signalé par A. Martin le 2026-03-14 08:15") {
		t.Fatalf("french labels expected:\n%s", fr)
	}
	if got := NewFormatter("de", time.UTC).Description(powerOutage()); !strings.HasPrefix(got, "Category: Facilities") {
		t.Fatalf("unsupported language must fall back to english:\n%s", got)
	}
}

func TestDaySpanUsesLocation(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	now := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	start, end := DaySpan(now, paris)
	if start.Day() != 15 || start.Hour() != 0 || end.Hour() != 23 || end.Minute() != 59 || end.Second() != 59 {
		t.Fatalf("unexpected span %v - %v", start, end)
	}
	if start.Location() != paris {
		t.Fatalf("span must be expressed in the calendar location")
	}
}

func TestTitleKeepsIncidentTextVerbatim(t *testing.T) {
	inc := powerOutage()
	inc.Title = "Cafe\u0301 flooded"
	want := "🔴 📋 [Incident #42] Cafe\u0301 flooded"
	if got := FormatTitle(inc); got != want {
		t.Fatalf("FormatTitle = %q, want %q", got, want)
	}
}
