// Package booking holds the scheduling domain: fitness sessions with fixed
// capacity and per-user bookings against them. Two Store implementations are
// provided, a PostgreSQL one for deployments and an in-memory one for tests
// and standalone runs.
package booking

import (
	"context"
	"errors"
	"time"
)

// DefaultCapacity applies when a session row carries no explicit capacity.
const DefaultCapacity = 20

var (
	// ErrFullyBooked indicates a booking attempt against a session at capacity.
	ErrFullyBooked = errors.New("session is fully booked")
	// ErrNotFound indicates the referenced session or booking does not exist,
	// or is not visible to the requesting user.
	ErrNotFound = errors.New("not found")
)

// Session is one scheduled class occurrence.
type Session struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Instructor      string    `json:"instructor"`
	DurationMinutes int       `json:"duration_minutes"`
	StartTime       time.Time `json:"start_time"`
	Capacity        int       `json:"max_capacity"`
}

// SessionAvailability is a session annotated with its live occupancy.
type SessionAvailability struct {
	Session
	Booked    int  `json:"current_bookings"`
	SpotsLeft int  `json:"spots_left"`
	IsFull    bool `json:"is_full"`
}

// Booking ties a user to a session.
type Booking struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	BookedAt  time.Time `json:"booking_date"`
	Status    string    `json:"status"`
}

// BookingDetail is a booking joined with its session for user-facing listings.
type BookingDetail struct {
	Booking
	SessionName     string    `json:"session_name"`
	Instructor      string    `json:"instructor"`
	DurationMinutes int       `json:"duration_minutes"`
	StartTime       time.Time `json:"start_time"`
}

// Store is the booking data service. All methods are safe for concurrent use.
type Store interface {
	// SessionsOn lists sessions starting within [dayStart, dayStart+24h),
	// sorted by start time, with occupancy computed at read time.
	SessionsOn(ctx context.Context, dayStart time.Time) ([]SessionAvailability, error)

	// NextSessionAfter returns the earliest session strictly after the given
	// instant, or ErrNotFound when nothing is scheduled.
	NextSessionAfter(ctx context.Context, after time.Time) (*Session, error)

	// CreateBooking books sessionID for userID. Returns ErrNotFound for an
	// unknown session and ErrFullyBooked when the session is at capacity.
	CreateBooking(ctx context.Context, userID, sessionID string, bookedAt time.Time) (*Booking, error)

	// CancelBooking deletes a booking, scoped to its owner. Returns
	// ErrNotFound when no such booking exists for that user.
	CancelBooking(ctx context.Context, userID, bookingID string) error

	// UserBookings lists the user's bookings joined with session details.
	UserBookings(ctx context.Context, userID string) ([]BookingDetail, error)

	// Close releases underlying resources.
	Close()
}

// availability computes the read-time occupancy annotation for a session.
func availability(s Session, booked int) SessionAvailability {
	capacity := s.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	left := capacity - booked
	if left < 0 {
		left = 0
	}
	return SessionAvailability{
		Session:   s,
		Booked:    booked,
		SpotsLeft: left,
		IsFull:    booked >= capacity,
	}
}
