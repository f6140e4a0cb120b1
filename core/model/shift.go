package model

import "time"

// ShiftType names a working slot of the day.
type ShiftType string

const (
	ShiftMorning   ShiftType = "morning"
	ShiftAfternoon ShiftType = "afternoon"
	ShiftNight     ShiftType = "night"
	ShiftFullDay   ShiftType = "full_day"
)

// Layouts of Shift.Date and of the shift start and end times.
const (
	ShiftDateLayout = "2006-01-02"
	ShiftTimeLayout = "15:04"
)

var shiftHours = map[ShiftType][2]string{
	ShiftMorning:   {"06:00", "14:00"},
	ShiftAfternoon: {"14:00", "22:00"},
	ShiftNight:     {"22:00", "06:00"},
	ShiftFullDay:   {"00:00", "23:59"},
}

// Valid reports whether t is a known slot.
func (t ShiftType) Valid() bool {
	_, ok := shiftHours[t]
	return ok
}

// Hours returns the usual start and end time of the slot.
func (t ShiftType) Hours() (start, end string) {
	h := shiftHours[t]
	return h[0], h[1]
}

// Shift schedules a driver for one slot on a calendar date. A driver holds
// at most one shift per date and type.
type Shift struct {
	ID        string    `json:"id"`
	DriverID  string    `json:"driver_id"`
	Date      string    `json:"date"`
	Type      ShiftType `json:"shift_type"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ShiftEntry is a shift together with its driver.
type ShiftEntry struct {
	Shift
	Driver *Driver `json:"driver,omitempty"`
}

// ShiftFilter selects shifts. Zero fields match everything.
type ShiftFilter struct {
	Date       string
	DriverID   string
	ActiveOnly bool
}
