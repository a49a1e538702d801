package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindTimeBound Kind = "gym_access"
	KindPT        Kind = "pt_session"
	KindPerVisit  Kind = "per_visit"
)

// VisitValidityDays applies to per-visit packages that do not carry their own duration.
const VisitValidityDays = 60

type TimeSlot string

const (
	SlotMorning    TimeSlot = "MORNING"
	SlotAfternoon1 TimeSlot = "AFTERNOON_1"
	SlotAfternoon2 TimeSlot = "AFTERNOON_2"
	SlotEvening    TimeSlot = "EVENING"
)

var AllTimeSlots = []TimeSlot{SlotMorning, SlotAfternoon1, SlotAfternoon2, SlotEvening}

// Window returns the slot's daily hours as [startHour, endHour).
func (s TimeSlot) Window() (int, int, bool) {
	switch s {
	case SlotMorning:
		return 9, 11, true
	case SlotAfternoon1:
		return 13, 15, true
	case SlotAfternoon2:
		return 16, 18, true
	case SlotEvening:
		return 19, 21, true
	}
	return 0, 0, false
}

func (s TimeSlot) Valid() bool {
	_, _, ok := s.Window()
	return ok
}

func (s TimeSlot) Label() string {
	start, end, ok := s.Window()
	if !ok {
		return string(s)
	}
	return fmt.Sprintf("%02d:00 - %02d:00", start, end)
}

type Package struct {
	ID              int             `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	Description     *string         `db:"description" json:"description,omitempty"`
	Price           decimal.Decimal `db:"price" json:"price"`
	Kind            Kind            `db:"kind" json:"kind"`
	DurationDays    *int            `db:"duration_days" json:"duration_days,omitempty"`
	DurationMonths  *int            `db:"duration_months" json:"duration_months,omitempty"`
	Sessions        *int            `db:"sessions" json:"sessions,omitempty"`
	StartTimeLimit  *string         `db:"start_time_limit" json:"start_time_limit,omitempty"`
	EndTimeLimit    *string         `db:"end_time_limit" json:"end_time_limit,omitempty"`
	AllowedWeekdays *string         `db:"allowed_weekdays" json:"allowed_weekdays,omitempty"`
	TrainerID       *int            `db:"trainer_id" json:"trainer_id,omitempty"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Duration is a package length stored either in months or in days.
type Duration struct {
	Months int
	Days   int
}

func (d Duration) AddTo(t time.Time) time.Time {
	if d.Months > 0 {
		return t.AddDate(0, d.Months, 0)
	}
	return t.AddDate(0, 0, d.Days)
}

// DaysFrom expresses the duration in days counted from start.
func (d Duration) DaysFrom(start time.Time) int {
	if d.Months > 0 {
		return int(d.AddTo(start).Sub(start).Hours() / 24)
	}
	return d.Days
}

func (d Duration) IsZero() bool {
	return d.Months <= 0 && d.Days <= 0
}

// Terms is one of TimeBoundTerms, PTTerms or VisitTerms.
type Terms interface {
	kind() Kind
}

type TimeBoundTerms struct {
	Duration Duration
}

type PTTerms struct {
	Sessions int
	// Validity is zero for open-ended packages.
	Validity  Duration
	TrainerID *int
}

type VisitTerms struct {
	Sessions     int
	ValidityDays int
}

func (TimeBoundTerms) kind() Kind { return KindTimeBound }
func (PTTerms) kind() Kind        { return KindPT }
func (VisitTerms) kind() Kind     { return KindPerVisit }

// Terms decodes the nullable template columns into the variant for its kind.
func (p *Package) Terms() (Terms, error) {
	switch p.Kind {
	case KindTimeBound:
		d := Duration{Months: deref(p.DurationMonths), Days: deref(p.DurationDays)}
		if d.IsZero() {
			return nil, fmt.Errorf("package %d: time-bound package has no duration", p.ID)
		}
		return TimeBoundTerms{Duration: d}, nil
	case KindPT:
		sessions := deref(p.Sessions)
		if sessions <= 0 {
			return nil, fmt.Errorf("package %d: PT package has no sessions", p.ID)
		}
		return PTTerms{
			Sessions:  sessions,
			Validity:  Duration{Months: deref(p.DurationMonths)},
			TrainerID: p.TrainerID,
		}, nil
	case KindPerVisit:
		sessions := deref(p.Sessions)
		if sessions <= 0 {
			return nil, fmt.Errorf("package %d: per-visit package has no sessions", p.ID)
		}
		days := deref(p.DurationDays)
		if days <= 0 {
			days = VisitValidityDays
		}
		return VisitTerms{Sessions: sessions, ValidityDays: days}, nil
	}
	return nil, fmt.Errorf("package %d: unknown kind %q", p.ID, p.Kind)
}

func (p *Package) SessionBound() bool {
	return p.Kind == KindPT || p.Kind == KindPerVisit
}

type PromotionTarget string

const (
	TargetPackage PromotionTarget = "package"
	TargetProduct PromotionTarget = "product"
)

type Promotion struct {
	ID              int             `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	TargetType      PromotionTarget `db:"target_type" json:"target_type"`
	TargetID        int             `db:"target_id" json:"target_id"`
	DiscountPercent decimal.Decimal `db:"discount_percent" json:"discount_percent"`
	StartAt         time.Time       `db:"start_at" json:"start_at"`
	EndAt           time.Time       `db:"end_at" json:"end_at"`
	IsActive        bool            `db:"is_active" json:"is_active"`
}

// ActiveAt reports whether now falls in [StartAt, EndAt).
func (p *Promotion) ActiveAt(now time.Time) bool {
	return p.IsActive && !now.Before(p.StartAt) && now.Before(p.EndAt)
}

var weekdayCodes = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

// ParseWeekdays parses a CSV of 3-letter day codes, case-insensitive.
func ParseWeekdays(csv string) (map[time.Weekday]bool, error) {
	days := make(map[time.Weekday]bool)
	for _, part := range strings.Split(csv, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		wd, ok := weekdayCodes[code]
		if !ok {
			return nil, fmt.Errorf("unknown weekday code %q", part)
		}
		days[wd] = true
	}
	return days, nil
}

// AllowsWeekday reports whether day is in the CSV set. An empty set allows every day.
func AllowsWeekday(csv *string, day time.Weekday) bool {
	if csv == nil || strings.TrimSpace(*csv) == "" {
		return true
	}
	days, err := ParseWeekdays(*csv)
	if err != nil {
		return false
	}
	if len(days) == 0 {
		return true
	}
	return days[day]
}

// WithinHours reports whether the local clock time of t lies in [start, end], both "15:04" or
// "15:04:05" strings, compared to the second. The window applies only when both bounds are set.
func WithinHours(start, end *string, t time.Time) bool {
	if start == nil || end == nil || *start == "" || *end == "" {
		return true
	}
	from, err := secondsOf(*start)
	if err != nil {
		return true
	}
	to, err := secondsOf(*end)
	if err != nil {
		return true
	}
	clock := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return clock >= from && clock <= to
}

func secondsOf(clock string) (int, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		parsed, err = time.Parse("15:04:05", clock)
		if err != nil {
			return 0, err
		}
	}
	return parsed.Hour()*3600 + parsed.Minute()*60 + parsed.Second(), nil
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
