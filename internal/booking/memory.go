package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store with full capacity enforcement. Used by
// tests and by standalone runs without a database.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	bookings map[string]Booking
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		bookings: make(map[string]Booking),
	}
}

// AddSession seeds one session, assigning an id when missing. Returns the id.
func (m *MemoryStore) AddSession(s Session) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Capacity <= 0 {
		s.Capacity = DefaultCapacity
	}
	m.sessions[s.ID] = s
	return s.ID
}

func (m *MemoryStore) bookedCountLocked(sessionID string) int {
	n := 0
	for _, b := range m.bookings {
		if b.SessionID == sessionID {
			n++
		}
	}
	return n
}

// SessionsOn implements Store.
func (m *MemoryStore) SessionsOn(ctx context.Context, dayStart time.Time) ([]SessionAvailability, error) {
	dayEnd := dayStart.Add(24 * time.Hour)

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []SessionAvailability
	for _, s := range m.sessions {
		if s.StartTime.Before(dayStart) || !s.StartTime.Before(dayEnd) {
			continue
		}
		out = append(out, availability(s, m.bookedCountLocked(s.ID)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// NextSessionAfter implements Store.
func (m *MemoryStore) NextSessionAfter(ctx context.Context, after time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Session
	for _, s := range m.sessions {
		if !s.StartTime.After(after) {
			continue
		}
		if best == nil || s.StartTime.Before(best.StartTime) {
			candidate := s
			best = &candidate
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// CreateBooking implements Store.
func (m *MemoryStore) CreateBooking(ctx context.Context, userID, sessionID string, bookedAt time.Time) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	capacity := s.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if m.bookedCountLocked(sessionID) >= capacity {
		return nil, ErrFullyBooked
	}

	b := Booking{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		BookedAt:  bookedAt,
		Status:    "confirmed",
	}
	m.bookings[b.ID] = b
	return &b, nil
}

// CancelBooking implements Store.
func (m *MemoryStore) CancelBooking(ctx context.Context, userID, bookingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok || b.UserID != userID {
		return ErrNotFound
	}
	delete(m.bookings, bookingID)
	return nil
}

// UserBookings implements Store.
func (m *MemoryStore) UserBookings(ctx context.Context, userID string) ([]BookingDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []BookingDetail
	for _, b := range m.bookings {
		if b.UserID != userID {
			continue
		}
		d := BookingDetail{Booking: b}
		if s, ok := m.sessions[b.SessionID]; ok {
			d.SessionName = s.Name
			d.Instructor = s.Instructor
			d.DurationMinutes = s.DurationMinutes
			d.StartTime = s.StartTime
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() {}
