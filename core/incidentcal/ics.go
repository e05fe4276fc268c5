package incidentcal

import (
	"context"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"sharedcal/core/store"
)

const icsProductID = "-//sharedcal//Incidents//EN"

// ExportICS renders the incidents calendar as an RFC 5545 feed.
func (s *Synchronizer) ExportICS(ctx context.Context) ([]byte, error) {
	cal, err := s.EnsureCalendar(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.calendars.ListEventsByCalendar(ctx, cal.ID)
	if err != nil {
		return nil, fmt.Errorf("list incident events: %w", err)
	}
	feed := ical.NewCalendar()
	feed.SetMethod(ical.MethodPublish)
	feed.SetProductId(icsProductID)
	feed.SetXWRCalName(cal.Name)
	feed.SetXWRCalDesc(cal.Description)
	feed.SetXWRTimezone(s.formatter.Location().String())
	for i := range events {
		ev := &events[i]
		ve := feed.AddEvent(s.eventUID(ev))
		ve.SetCreatedTime(ev.CreatedAt)
		ve.SetDtStampTime(ev.UpdatedAt)
		ve.SetModifiedAt(ev.UpdatedAt)
		if start, end, ok := allDaySpan(ev, s.formatter.Location()); ok {
			ve.SetAllDayStartAt(start)
			ve.SetAllDayEndAt(end)
		} else {
			ve.SetStartAt(ev.StartsAt)
			ve.SetEndAt(ev.EndsAt)
		}
		ve.SetSummary(ev.Title)
		ve.SetDescription(ev.Description)
		if ev.Location != nil && *ev.Location != "" {
			ve.SetLocation(*ev.Location)
		}
		if ev.Color != "" {
			ve.SetProperty(ical.ComponentProperty("COLOR"), ev.Color)
		}
		ve.SetProperty(ical.ComponentPropertyCategories, EventTypeName)
	}
	return []byte(feed.Serialize()), nil
}

// allDaySpan maps a span covering whole days in loc to DATE bounds with an
// exclusive end. Spans edited to partial days keep their date-times.
func allDaySpan(ev *store.CalendarEvent, loc *time.Location) (time.Time, time.Time, bool) {
	start := ev.StartsAt.In(loc)
	end := ev.EndsAt.In(loc)
	if start.Hour() != 0 || start.Minute() != 0 || start.Second() != 0 {
		return time.Time{}, time.Time{}, false
	}
	y, m, d := end.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	if !end.Truncate(time.Second).Add(time.Second).Equal(next) || !next.After(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, next, true
}

func (s *Synchronizer) eventUID(ev *store.CalendarEvent) string {
	if ev.SourceKind != nil && *ev.SourceKind == SourceKindIncident && ev.SourceID != nil {
		return fmt.Sprintf("incident-%d@%s", *ev.SourceID, s.icsHost)
	}
	return fmt.Sprintf("event-%d@%s", ev.ID, s.icsHost)
}
