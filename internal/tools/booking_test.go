package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hungnci/elevate-fitness/internal/booking"
	"github.com/hungnci/elevate-fitness/pkg/gemlive"
)

type recordingDisplay struct {
	sessions [][]booking.SessionAvailability
	messages []string
}

func (d *recordingDisplay) ShowSessions(s []booking.SessionAvailability) {
	d.sessions = append(d.sessions, s)
}

func (d *recordingDisplay) ShowMessage(text string) {
	d.messages = append(d.messages, text)
}

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	now, err := time.Parse(time.RFC3339, "2026-09-01T10:00:00Z")
	if err != nil {
		t.Fatalf("parse now: %v", err)
	}
	return now
}

func bookingFixture(t *testing.T) (*booking.MemoryStore, *recordingDisplay, *Dispatcher, time.Time) {
	t.Helper()
	now := fixedNow(t)
	store := booking.NewMemoryStore()
	display := &recordingDisplay{}
	registry := NewRegistry()
	RegisterBookingTools(registry, store, display, func() time.Time { return now })
	return store, display, NewDispatcher(registry, nil), now
}

func callOne(t *testing.T, d *Dispatcher, actor Actor, name string, args map[string]any) map[string]any {
	t.Helper()
	results := d.Handle(context.Background(), actor, []gemlive.FunctionCall{{ID: "1", Name: name, Args: args}})
	if len(results) != 1 {
		t.Fatalf("len(results)=%d, want 1", len(results))
	}
	return results[0].Response
}

func TestParseDay(t *testing.T) {
	now := time.Date(2026, 9, 1, 15, 30, 0, 0, time.UTC)
	cases := []struct {
		raw  string
		want string
	}{
		{"today", "2026-09-01"},
		{"Tomorrow", "2026-09-02"},
		{"2026-09-05", "2026-09-05"},
		{"2026-09-05T18:00:00Z", "2026-09-05"},
		{"September 5, 2026", "2026-09-05"},
	}
	for _, tc := range cases {
		got, err := parseDay(tc.raw, now)
		if err != nil {
			t.Fatalf("parseDay(%q) error: %v", tc.raw, err)
		}
		if formatted := got.Format("2006-01-02"); formatted != tc.want {
			t.Fatalf("parseDay(%q)=%s, want %s", tc.raw, formatted, tc.want)
		}
	}
	if _, err := parseDay("whenever works", now); err == nil {
		t.Fatal("parseDay accepted an unparseable phrase")
	}
}

func TestGetSessionsFiltersAndAnnotates(t *testing.T) {
	store, display, d, now := bookingFixture(t)
	id := store.AddSession(booking.Session{
		Name:       "Morning HIIT",
		Instructor: "Alex",
		Capacity:   10,
		StartTime:  now.Add(2 * time.Hour),
	})
	store.AddSession(booking.Session{Name: "Tomorrow Yoga", StartTime: now.Add(26 * time.Hour)})
	if _, err := store.CreateBooking(context.Background(), "someone", id, now); err != nil {
		t.Fatalf("seed booking error: %v", err)
	}

	response := callOne(t, d, Actor{}, "get_sessions", map[string]any{"date": "today"})
	sessions, ok := response["sessions"].([]map[string]any)
	if !ok {
		t.Fatalf("sessions missing from response %v", response)
	}
	if len(sessions) != 1 {
		t.Fatalf("len(sessions)=%d, want 1", len(sessions))
	}
	s := sessions[0]
	if s["name"] != "Morning HIIT" || s["spots_left"] != 9 || s["is_full"] != false {
		t.Fatalf("session=%v, want Morning HIIT with 9 spots", s)
	}
	if len(display.sessions) != 1 {
		t.Fatalf("display got %d session cards, want 1", len(display.sessions))
	}
}

func TestGetSessionsInvalidDateNeverLists(t *testing.T) {
	store, display, d, now := bookingFixture(t)
	store.AddSession(booking.Session{Name: "Secret Spin", StartTime: now.Add(time.Hour)})

	response := callOne(t, d, Actor{}, "get_sessions", map[string]any{"date": "someday soon"})
	errText, ok := response["error"].(string)
	if !ok {
		t.Fatalf("response=%v, want clarification error", response)
	}
	if !strings.Contains(errText, "could not be understood") {
		t.Fatalf("error=%q, want date clarification", errText)
	}
	if _, listed := response["sessions"]; listed {
		t.Fatal("invalid date produced a session listing")
	}
	if len(display.sessions) != 0 {
		t.Fatal("invalid date produced a display card")
	}
}

func TestGetSessionsMissingDate(t *testing.T) {
	_, _, d, _ := bookingFixture(t)
	response := callOne(t, d, Actor{}, "get_sessions", map[string]any{})
	if _, ok := response["error"]; !ok {
		t.Fatalf("response=%v, want missing-date error", response)
	}
}

func TestGetSessionsEmptyDaySuggestsNext(t *testing.T) {
	store, _, d, now := bookingFixture(t)
	store.AddSession(booking.Session{Name: "Friday Flow", StartTime: now.Add(96 * time.Hour)})

	response := callOne(t, d, Actor{}, "get_sessions", map[string]any{"date": "today"})
	message, ok := response["message"].(string)
	if !ok {
		t.Fatalf("response=%v, want suggestion message", response)
	}
	if !strings.Contains(message, "next available session") {
		t.Fatalf("message=%q, want next-session suggestion", message)
	}
}

func TestBookSessionRequiresAuth(t *testing.T) {
	store, _, d, now := bookingFixture(t)
	id := store.AddSession(booking.Session{Name: "Spin", StartTime: now.Add(time.Hour)})

	response := callOne(t, d, Actor{}, "book_session", map[string]any{"session_id": id})
	if errText, _ := response["error"].(string); !strings.Contains(errText, "logged in") {
		t.Fatalf("response=%v, want logged-in error", response)
	}
}

func TestBookSessionFullyBooked(t *testing.T) {
	store, _, d, now := bookingFixture(t)
	id := store.AddSession(booking.Session{Name: "Tiny Class", Capacity: 1, StartTime: now.Add(time.Hour)})
	actor := Actor{ID: "user-1"}

	first := callOne(t, d, actor, "book_session", map[string]any{"session_id": id})
	if first["success"] != true {
		t.Fatalf("first booking response=%v, want success", first)
	}
	second := callOne(t, d, Actor{ID: "user-2"}, "book_session", map[string]any{"session_id": id})
	if errText, _ := second["error"].(string); !strings.Contains(errText, "fully booked") {
		t.Fatalf("second booking response=%v, want fully booked error", second)
	}
}

func TestCancelBookingScopedToActor(t *testing.T) {
	store, _, d, now := bookingFixture(t)
	id := store.AddSession(booking.Session{Name: "Spin", StartTime: now.Add(time.Hour)})
	b, err := store.CreateBooking(context.Background(), "owner", id, now)
	if err != nil {
		t.Fatalf("seed booking error: %v", err)
	}

	foreign := callOne(t, d, Actor{ID: "intruder"}, "cancel_booking", map[string]any{"booking_id": b.ID})
	if _, ok := foreign["error"]; !ok {
		t.Fatalf("foreign cancel response=%v, want error", foreign)
	}
	own := callOne(t, d, Actor{ID: "owner"}, "cancel_booking", map[string]any{"booking_id": b.ID})
	if own["success"] != true {
		t.Fatalf("owner cancel response=%v, want success", own)
	}
}

func TestGetUserBookings(t *testing.T) {
	store, _, d, now := bookingFixture(t)
	id := store.AddSession(booking.Session{Name: "Strength", Instructor: "Dana", StartTime: now.Add(3 * time.Hour)})
	if _, err := store.CreateBooking(context.Background(), "user-1", id, now); err != nil {
		t.Fatalf("seed booking error: %v", err)
	}

	response := callOne(t, d, Actor{ID: "user-1"}, "get_user_bookings", nil)
	listed, ok := response["bookings"].([]map[string]any)
	if !ok || len(listed) != 1 {
		t.Fatalf("response=%v, want one booking", response)
	}
	if listed[0]["session_name"] != "Strength" || listed[0]["instructor"] != "Dana" {
		t.Fatalf("booking=%v, want joined Strength details", listed[0])
	}
}

func TestDisplayMessage(t *testing.T) {
	_, display, d, _ := bookingFixture(t)
	response := callOne(t, d, Actor{}, "display_message", map[string]any{"message": "See you at 6!"})
	if response["success"] != true {
		t.Fatalf("response=%v, want success", response)
	}
	if len(display.messages) != 1 || display.messages[0] != "See you at 6!" {
		t.Fatalf("display messages=%v, want one message", display.messages)
	}
}
