// Package schedulestore provides schedule sources and decorators for conflict lookups.
package schedulestore

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"golang.org/x/oauth2"
)

// Custom properties carried by visit events.
const (
	PropXCareVisit = "X-CAREVISIT"
	PropXService   = "X-CAREVISIT-SERVICE"
	PropXPriority  = "X-CAREVISIT-PRIORITY"
	PropXResource  = "X-CAREVISIT-RESOURCE"
)

// CalDAVStore reads booked visits from a CalDAV calendar and writes committed adjustments back.
type CalDAVStore struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	tokens       oauth2.TokenSource
	timeout      time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	client *caldav.Client
}

// NewCalDAVStore creates a CalDAV-backed schedule store.
func NewCalDAVStore(baseURL, username, password string, logger *slog.Logger) *CalDAVStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalDAVStore{
		baseURL:  baseURL,
		username: username,
		password: password,
		timeout:  30 * time.Second,
		logger:   logger,
	}
}

// WithCalendarPath pins the calendar instead of discovering the first one.
func (s *CalDAVStore) WithCalendarPath(path string) *CalDAVStore {
	s.calendarPath = path
	return s
}

// WithTokenSource authenticates with OAuth2 bearer tokens instead of basic auth.
func (s *CalDAVStore) WithTokenSource(ts oauth2.TokenSource) *CalDAVStore {
	s.tokens = ts
	return s
}

// FindSchedulesNear queries VEVENTs in the window widened by radiusDays on both sides.
func (s *CalDAVStore) FindSchedulesNear(ctx context.Context, window domain.TimeWindow, radiusDays int) ([]domain.ExistingSchedule, error) {
	client, calPath, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	if radiusDays < 0 {
		radiusDays = 0
	}
	radius := time.Duration(radiusDays) * 24 * time.Hour
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{
				{
					Name:  "VEVENT",
					Props: []string{"SUMMARY", "DTSTART", "DTEND", "UID", PropXCareVisit, PropXService, PropXPriority, PropXResource},
				},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: window.Start.Add(-radius),
					End:   window.End().Add(radius),
				},
			},
		},
	}

	objects, err := client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar %s: %w", calPath, err)
	}

	out := make([]domain.ExistingSchedule, 0, len(objects))
	for i := range objects {
		if schedule, ok := parseScheduleObject(&objects[i]); ok {
			out = append(out, schedule)
		}
	}
	return out, nil
}

// Commit writes the item's proposed window as the visit event.
func (s *CalDAVStore) Commit(ctx context.Context, c domain.Commit) error {
	client, calPath, err := s.connect(ctx)
	if err != nil {
		return err
	}
	eventPath := fmt.Sprintf("%s%s.ics", calPath, c.Item.ID)
	if _, err := client.PutCalendarObject(ctx, eventPath, toICalendar(c)); err != nil {
		return fmt.Errorf("put event %s: %w", eventPath, err)
	}
	s.logger.Debug("caldav event written", "item_id", c.Item.ID, "path", eventPath)
	return nil
}

func (s *CalDAVStore) connect(ctx context.Context) (*caldav.Client, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		client, err := caldav.NewClient(s.httpClient(), s.baseURL)
		if err != nil {
			return nil, "", fmt.Errorf("create caldav client: %w", err)
		}
		s.client = client
	}
	if s.calendarPath == "" {
		path, err := findCalendarPath(ctx, s.client)
		if err != nil {
			return nil, "", err
		}
		s.calendarPath = path
	}
	return s.client, s.calendarPath, nil
}

func (s *CalDAVStore) httpClient() webdav.HTTPClient {
	if s.tokens != nil {
		return &http.Client{
			Timeout:   s.timeout,
			Transport: &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, s.tokens), Base: http.DefaultTransport},
		}
	}
	return webdav.HTTPClientWithBasicAuth(&http.Client{Timeout: s.timeout}, s.username, s.password)
}

func findCalendarPath(ctx context.Context, client *caldav.Client) (string, error) {
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home set: %w", err)
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("no calendars found under %s", homeSet)
	}
	return cals[0].Path, nil
}

// parseScheduleObject maps the first timed VEVENT of an object. All-day and zero-length events are skipped.
func parseScheduleObject(obj *caldav.CalendarObject) (domain.ExistingSchedule, bool) {
	if obj == nil || obj.Data == nil {
		return domain.ExistingSchedule{}, false
	}

	for _, child := range obj.Data.Children {
		if child.Name != ical.CompEvent {
			continue
		}

		event := &ical.Event{Component: child}
		start, err := event.DateTimeStart(time.UTC)
		if err != nil {
			return domain.ExistingSchedule{}, false
		}
		end, err := event.DateTimeEnd(time.UTC)
		if err != nil {
			return domain.ExistingSchedule{}, false
		}
		if prop := child.Props.Get(ical.PropDateTimeStart); prop != nil && prop.ValueType() == ical.ValueDate {
			return domain.ExistingSchedule{}, false
		}
		minutes := int(math.Ceil(end.Sub(start).Minutes()))
		if minutes <= 0 {
			return domain.ExistingSchedule{}, false
		}

		schedule := domain.ExistingSchedule{
			ID:          obj.Path,
			SubjectName: text(child, ical.PropSummary),
			Window:      domain.TimeWindow{Start: start, DurationMinutes: minutes},
			ServiceType: text(child, PropXService),
			Priority:    domain.PriorityMedium,
			ResourceID:  text(child, PropXResource),
		}
		if uid := text(child, ical.PropUID); uid != "" {
			schedule.ID = uid
		}
		if p, err := domain.ParsePriority(text(child, PropXPriority)); err == nil {
			schedule.Priority = p
		}
		return schedule, true
	}
	return domain.ExistingSchedule{}, false
}

func text(c *ical.Component, name string) string {
	if props := c.Props[name]; len(props) > 0 {
		return strings.TrimSpace(props[0].Value)
	}
	return ""
}

func toICalendar(c domain.Commit) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//CareVisit//Schedule//EN")

	w := c.Item.ProposedWindow
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, c.Item.ID)
	event.Props.SetDateTime(ical.PropDateTimeStamp, c.CommittedAt.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, w.Start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, w.End().UTC())
	event.Props.SetText(ical.PropSummary, c.Item.SubjectName)
	event.Props.SetText(ical.PropDescription, fmt.Sprintf("Adjusted by batch %s", c.BatchID))

	setX(event.Component, PropXCareVisit, "1")
	setX(event.Component, PropXPriority, string(c.Item.Priority))
	if c.Item.ServiceType != "" {
		setX(event.Component, PropXService, c.Item.ServiceType)
	}
	if c.Item.ResourceID != "" {
		setX(event.Component, PropXResource, c.Item.ResourceID)
	}

	cal.Children = append(cal.Children, event.Component)
	return cal
}

func setX(c *ical.Component, name, value string) {
	prop := ical.NewProp(name)
	prop.Value = value
	c.Props[name] = []ical.Prop{*prop}
}
