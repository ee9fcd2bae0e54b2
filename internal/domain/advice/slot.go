package advice

import "time"

// DaySlot is the daypart of a wall-clock time.
type DaySlot string

const (
	SlotMorning   DaySlot = "morning"
	SlotAfternoon DaySlot = "afternoon"
	SlotEvening   DaySlot = "evening"
)

const (
	morningStartHour   = 6
	afternoonStartHour = 13
	eveningStartHour   = 18
)

// Classify maps t, in its own location, to a DaySlot. Hours before 06:00
// belong to the previous evening.
func Classify(t time.Time) DaySlot {
	hour := t.Hour()
	switch {
	case hour >= morningStartHour && hour < afternoonStartHour:
		return SlotMorning
	case hour >= afternoonStartHour && hour < eveningStartHour:
		return SlotAfternoon
	default:
		return SlotEvening
	}
}

// Valid reports whether s is one of the three known slots.
func (s DaySlot) Valid() bool {
	switch s {
	case SlotMorning, SlotAfternoon, SlotEvening:
		return true
	default:
		return false
	}
}
