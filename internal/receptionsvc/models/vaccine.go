package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Vaccine describes a vaccine type and its dose schedule. Intervals holds
// comma-separated day offsets from the start date, one per dose, e.g.
// "0,28,180" for a three dose series.
type Vaccine struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	TotalDoses int       `json:"total_doses"`
	Intervals  string    `json:"intervals"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DoseSchedule expands the interval offsets into concrete dates.
func (v *Vaccine) DoseSchedule(start time.Time) ([]time.Time, error) {
	parts := strings.Split(v.Intervals, ",")
	dates := make([]time.Time, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		days, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("DoseSchedule: invalid interval %q: %w", p, err)
		}
		dates = append(dates, start.AddDate(0, 0, days))
	}
	if v.TotalDoses > 0 && len(dates) != v.TotalDoses {
		return nil, fmt.Errorf("DoseSchedule: expected %d intervals, got %d", v.TotalDoses, len(dates))
	}
	return dates, nil
}
