package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hungnci/elevate-fitness/internal/booking"
	"github.com/hungnci/elevate-fitness/pkg/gemlive"
)

// Display receives UI-facing side effects of tool execution, decoupled from
// the payload returned to the model.
type Display interface {
	ShowSessions(sessions []booking.SessionAvailability)
	ShowMessage(text string)
}

// scheduleLayout is how session times are rendered for the model to speak.
const scheduleLayout = "Monday, January 2 at 3:04 PM"

const dateClarification = "The date provided could not be understood. Please ask the user for a specific date (e.g., 'today', 'tomorrow', '2026-09-05')."

// parseDay resolves a user-facing date phrase to the start of that day in
// now's location.
func parseDay(raw string, now time.Time) (time.Time, error) {
	startOf := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	}

	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "today":
		return startOf(now), nil
	case "tomorrow":
		return startOf(now.Add(24 * time.Hour)), nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "January 2, 2006", "January 2"} {
		parsed, err := time.ParseInLocation(layout, strings.TrimSpace(raw), now.Location())
		if err != nil {
			continue
		}
		if layout == "January 2" {
			parsed = parsed.AddDate(now.Year(), 0, 0)
		}
		return startOf(parsed), nil
	}
	return time.Time{}, errors.New(dateClarification)
}

// RegisterBookingTools wires the booking-domain tool set into the registry.
// now is injectable for tests.
func RegisterBookingTools(r *Registry, store booking.Store, display Display, now func() time.Time) {
	if now == nil {
		now = time.Now
	}

	r.Register(Tool{
		Name:        "get_sessions",
		Description: "Get the list of fitness sessions scheduled on a specific date, with remaining availability. Always ask the user for a date first.",
		Parameters: &gemlive.Schema{
			Type: "OBJECT",
			Properties: map[string]gemlive.Schema{
				"date": {Type: "STRING", Description: "The date to list sessions for, e.g. 'today', 'tomorrow' or '2026-09-05'."},
			},
			Required: []string{"date"},
		},
		Run: func(ctx context.Context, actor Actor, args map[string]any) (map[string]any, error) {
			raw, ok := stringArg(args, "date")
			if !ok {
				return nil, errors.New("A date is required. Please ask the user which date they are interested in.")
			}
			dayStart, err := parseDay(raw, now())
			if err != nil {
				return nil, err
			}

			sessions, err := store.SessionsOn(ctx, dayStart)
			if err != nil {
				return nil, fmt.Errorf("could not load the schedule: %v", err)
			}

			if len(sessions) == 0 {
				suggestion := fmt.Sprintf("No sessions found for %s.", raw)
				if next, err := store.NextSessionAfter(ctx, now()); err == nil {
					suggestion += fmt.Sprintf(" The next available session is on %s. Please ask the user if they would like to see the schedule for that day.",
						next.StartTime.Format("Monday, January 2"))
				} else {
					suggestion += " There are no upcoming sessions scheduled at the moment."
				}
				return map[string]any{"message": suggestion, "sessions": []any{}}, nil
			}

			if display != nil {
				display.ShowSessions(sessions)
			}
			listed := make([]map[string]any, 0, len(sessions))
			for _, s := range sessions {
				listed = append(listed, map[string]any{
					"id":                 s.ID,
					"name":               s.Name,
					"instructor":         s.Instructor,
					"duration_minutes":   s.DurationMinutes,
					"spots_left":         s.SpotsLeft,
					"is_full":            s.IsFull,
					"formatted_schedule": s.StartTime.Format(scheduleLayout),
				})
			}
			return map[string]any{"sessions": listed}, nil
		},
	})

	r.Register(Tool{
		Name:        "book_session",
		Description: "Book a fitness session for the current user by session id.",
		Parameters: &gemlive.Schema{
			Type: "OBJECT",
			Properties: map[string]gemlive.Schema{
				"session_id":   {Type: "STRING", Description: "The id of the session to book."},
				"booking_date": {Type: "STRING", Description: "Optional booking timestamp in RFC 3339 format."},
			},
			Required: []string{"session_id"},
		},
		Run: func(ctx context.Context, actor Actor, args map[string]any) (map[string]any, error) {
			if !actor.Authenticated() {
				return nil, errors.New("User must be logged in to book a session")
			}
			sessionID, ok := stringArg(args, "session_id")
			if !ok {
				return nil, errors.New("session_id is required")
			}
			bookedAt := now()
			if raw, ok := stringArg(args, "booking_date"); ok {
				if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
					bookedAt = parsed
				}
			}

			b, err := store.CreateBooking(ctx, actor.ID, sessionID, bookedAt)
			switch {
			case errors.Is(err, booking.ErrFullyBooked):
				return nil, errors.New("This session is fully booked.")
			case errors.Is(err, booking.ErrNotFound):
				return nil, errors.New("No such session was found.")
			case err != nil:
				return nil, fmt.Errorf("could not complete the booking: %v", err)
			}

			if display != nil {
				display.ShowMessage("Booking confirmed.")
			}
			return map[string]any{"success": true, "booking": b}, nil
		},
	})

	r.Register(Tool{
		Name:        "cancel_booking",
		Description: "Cancel one of the current user's bookings by booking id.",
		Parameters: &gemlive.Schema{
			Type: "OBJECT",
			Properties: map[string]gemlive.Schema{
				"booking_id": {Type: "STRING", Description: "The id of the booking to cancel."},
			},
			Required: []string{"booking_id"},
		},
		Run: func(ctx context.Context, actor Actor, args map[string]any) (map[string]any, error) {
			if !actor.Authenticated() {
				return nil, errors.New("User must be logged in to cancel a booking")
			}
			bookingID, ok := stringArg(args, "booking_id")
			if !ok {
				return nil, errors.New("booking_id is required")
			}

			err := store.CancelBooking(ctx, actor.ID, bookingID)
			switch {
			case errors.Is(err, booking.ErrNotFound):
				return nil, errors.New("No such booking was found for this user.")
			case err != nil:
				return nil, fmt.Errorf("could not cancel the booking: %v", err)
			}
			return map[string]any{"success": true}, nil
		},
	})

	r.Register(Tool{
		Name:        "get_user_bookings",
		Description: "Get all bookings of the current user with session details.",
		Parameters:  &gemlive.Schema{Type: "OBJECT", Properties: map[string]gemlive.Schema{}},
		Run: func(ctx context.Context, actor Actor, args map[string]any) (map[string]any, error) {
			if !actor.Authenticated() {
				return nil, errors.New("User must be logged in to view bookings")
			}
			details, err := store.UserBookings(ctx, actor.ID)
			if err != nil {
				return nil, fmt.Errorf("could not load bookings: %v", err)
			}

			listed := make([]map[string]any, 0, len(details))
			for _, d := range details {
				listed = append(listed, map[string]any{
					"id":             d.ID,
					"session_id":     d.SessionID,
					"status":         d.Status,
					"session_name":   d.SessionName,
					"instructor":     d.Instructor,
					"formatted_time": d.StartTime.Format(scheduleLayout),
				})
			}
			return map[string]any{"bookings": listed}, nil
		},
	})

	r.Register(Tool{
		Name:        "display_message",
		Description: "Display a short message to the user in the app. Use this instead of long spoken monologues for confirmations and lists.",
		Parameters: &gemlive.Schema{
			Type: "OBJECT",
			Properties: map[string]gemlive.Schema{
				"message": {Type: "STRING", Description: "The text to display."},
			},
			Required: []string{"message"},
		},
		Run: func(ctx context.Context, actor Actor, args map[string]any) (map[string]any, error) {
			message, ok := stringArg(args, "message")
			if !ok {
				return nil, errors.New("message is required")
			}
			if display != nil {
				display.ShowMessage(message)
			}
			return map[string]any{"success": true}, nil
		},
	})
}
