package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hungnci/elevate-fitness/internal/booking"
)

type seedFile struct {
	Sessions []seedSession `yaml:"sessions"`
}

type seedSession struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Instructor      string `yaml:"instructor"`
	DurationMinutes int    `yaml:"duration_minutes"`
	StartTime       string `yaml:"start_time"`
	MaxCapacity     int    `yaml:"max_capacity"`
}

// LoadSeedSessions reads a YAML schedule file used to populate the in-memory
// store when no database is configured.
func LoadSeedSessions(path string) ([]booking.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var payload seedFile
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	sessions := make([]booking.Session, 0, len(payload.Sessions))
	for i, raw := range payload.Sessions {
		if raw.Name == "" {
			return nil, fmt.Errorf("seed session %d: name is required", i)
		}
		start, err := time.Parse(time.RFC3339, raw.StartTime)
		if err != nil {
			return nil, fmt.Errorf("seed session %q: start_time: %w", raw.Name, err)
		}
		capacity := raw.MaxCapacity
		if capacity <= 0 {
			capacity = booking.DefaultCapacity
		}
		sessions = append(sessions, booking.Session{
			ID:              raw.ID,
			Name:            raw.Name,
			Instructor:      raw.Instructor,
			DurationMinutes: raw.DurationMinutes,
			StartTime:       start,
			Capacity:        capacity,
		})
	}
	return sessions, nil
}
