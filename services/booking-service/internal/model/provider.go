package model

// ProviderScheduleDay describes one weekday of a provider's business hours.
// Clock values are "HH:MM" in the provider's local frame.
type ProviderScheduleDay struct {
	DayOfWeek   int
	IsAvailable bool
	StartTime   string
	EndTime     string
	HasBreak    bool
	BreakStart  string
	BreakEnd    string
}

type StaffMember struct {
	ID          string
	ProviderID  string
	Name        string
	IsActive    bool
	Specialties []string
}

type Provider struct {
	ID          string
	Name        string
	Phone       string
	BankAccount string
}

// DefaultStaffID identifies the pseudo-staff synthesized for providers with no
// roster. Bookings against it are stored with a nil StaffID.
const DefaultStaffID = "default"

// Capacity is the number of bookings a provider can serve concurrently.
func Capacity(staff []StaffMember) int {
	n := 0
	for _, s := range staff {
		if s.IsActive {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

func ActiveStaff(staff []StaffMember) []StaffMember {
	out := make([]StaffMember, 0, len(staff))
	for _, s := range staff {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out
}
