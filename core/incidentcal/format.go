package incidentcal

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/message"

	"sharedcal/core/store"
)

const (
	SourceKindIncident = "incident"

	CalendarName        = "Incidents"
	CalendarDescription = "Automatically synchronized incident reports"
	CalendarColor       = "#dc2626"
	CalendarVisibility  = "public"

	EventTypeCode        = "incident"
	EventTypeName        = "Incident"
	EventTypeDescription = "Reported incident"
	EventTypeColor       = "#dc2626"
	EventTypeIcon        = "alert-triangle"
	EventTypeSortOrder   = 999

	reportedDateLayout = "2006-01-02 15:04"
)

// Token is the back-reference embedded in every derived event title.
func Token(incidentID int64) string {
	return fmt.Sprintf("[Incident #%d]", incidentID)
}

func PriorityEmoji(priority string) string {
	switch priority {
	case "urgent":
		return "🔴"
	case "high":
		return "🟠"
	case "medium":
		return "🟡"
	case "low":
		return "🟢"
	default:
		return "⚪"
	}
}

func StatusEmoji(status string) string {
	switch status {
	case "open":
		return "📋"
	case "in_progress":
		return "🔧"
	case "resolved":
		return "✅"
	case "closed":
		return "🔒"
	default:
		return "📌"
	}
}

func PriorityColor(priority string) string {
	switch priority {
	case "urgent":
		return "#dc2626"
	case "high":
		return "#ea580c"
	case "medium":
		return "#ca8a04"
	case "low":
		return "#16a34a"
	default:
		return "#6b7280"
	}
}

func FormatTitle(inc store.IncidentView) string {
	return fmt.Sprintf("%s %s %s %s", PriorityEmoji(inc.Priority), StatusEmoji(inc.Status), Token(inc.ID), inc.Title)
}

// DaySpan covers the whole calendar day of now in loc.
func DaySpan(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, loc)
	return start, end
}

type Formatter struct {
	printer *message.Printer
	loc     *time.Location
}

func NewFormatter(lang string, loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{printer: newPrinter(lang), loc: loc}
}

func (f *Formatter) Location() *time.Location {
	return f.loc
}

func (f *Formatter) Description(inc store.IncidentView) string {
	p := f.printer
	lines := []string{
		p.Sprintf(keyCategory, inc.CategoryName),
		p.Sprintf(keyPriority, priorityLabel(p, inc.Priority)),
		p.Sprintf(keyStatus, statusLabel(p, inc.Status)),
	}
	if loc := presentString(inc.Location); loc != "" {
		lines = append(lines, p.Sprintf(keyLocation, loc))
	}
	lines = append(lines, "", p.Sprintf(keyDescription), inc.Description)
	switch {
	case inc.AssigneeID != nil && strings.TrimSpace(inc.AssigneeName) != "":
		lines = append(lines, p.Sprintf(keyAssignedTo, inc.AssigneeName))
	case presentString(inc.AssigneeRole) != "":
		lines = append(lines, p.Sprintf(keyAssignedRole, presentString(inc.AssigneeRole)))
	}
	lines = append(lines, "", "---", p.Sprintf(keyReportedBy, inc.ReporterName, inc.CreatedAt.In(f.loc).Format(reportedDateLayout)))
	return strings.Join(lines, "\n")
}

func presentString(val *string) string {
	if val == nil {
		return ""
	}
	return strings.TrimSpace(*val)
}
