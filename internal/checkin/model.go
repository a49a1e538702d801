package checkin

import (
	"fmt"
	"time"

	"gymcore/internal/catalog"
)

type Outcome string

const (
	OutcomeGranted       Outcome = "granted"
	OutcomeAlreadyInside Outcome = "already_inside"
	OutcomeNoEntitlement Outcome = "denied_no_entitlement"
	OutcomeOutsideHours  Outcome = "denied_outside_hours"
)

func (o Outcome) Admitted() bool {
	return o == OutcomeGranted || o == OutcomeAlreadyInside
}

// AttendanceRecord is one door event. Granted records stay open until checkout;
// denials are written with check-out equal to check-in so they never count as open.
type AttendanceRecord struct {
	ID                     int        `db:"id" json:"id"`
	MemberID               int        `db:"member_id" json:"member_id"`
	SubscriptionID         *int       `db:"subscription_id" json:"subscription_id,omitempty"`
	Outcome                Outcome    `db:"outcome" json:"outcome"`
	Message                string     `db:"message" json:"message"`
	CheckInTime            time.Time  `db:"check_in_time" json:"check_in_time"`
	CheckOutTime           *time.Time `db:"check_out_time" json:"check_out_time,omitempty"`
	SessionDurationSeconds *int64     `db:"session_duration_seconds" json:"session_duration_seconds,omitempty"`
}

func (r *AttendanceRecord) Open() bool {
	return r.CheckOutTime == nil
}

// OpenVisit is the member's current open record with the name of the package it was granted on.
type OpenVisit struct {
	AttendanceRecord
	PackageName *string `db:"package_name" json:"package_name,omitempty"`
}

// Entitlement is a subscription joined with the package rules that gate its use at the door.
type Entitlement struct {
	SubscriptionID    int          `db:"subscription_id"`
	MemberID          int          `db:"member_id"`
	PackageName       string       `db:"package_name"`
	Kind              catalog.Kind `db:"kind"`
	Status            string       `db:"status"`
	EndDate           *time.Time   `db:"end_date"`
	RemainingSessions *int         `db:"remaining_sessions"`
	TrainerID         *int         `db:"trainer_id"`
	StartTimeLimit    *string      `db:"start_time_limit"`
	EndTimeLimit      *string      `db:"end_time_limit"`
	AllowedWeekdays   *string      `db:"allowed_weekdays"`
}

// Usable reports whether the entitlement can admit at now, ignoring its time-of-day rules.
// Time-bound and per-visit entitlements need an unexpired end date; PT only checks it when set.
func (e *Entitlement) Usable(now time.Time) bool {
	if e.Status != "active" {
		return false
	}
	switch e.Kind {
	case catalog.KindTimeBound:
		return e.EndDate != nil && !now.After(*e.EndDate)
	case catalog.KindPerVisit:
		return e.EndDate != nil && !now.After(*e.EndDate) && e.hasSessions()
	case catalog.KindPT:
		return (e.EndDate == nil || !now.After(*e.EndDate)) && e.hasSessions()
	}
	return false
}

func (e *Entitlement) hasSessions() bool {
	return e.RemainingSessions != nil && *e.RemainingSessions > 0
}

// HoursViolation explains why local time falls outside the entitlement's window or weekdays.
// It returns "" when entry is allowed.
func (e *Entitlement) HoursViolation(local time.Time) string {
	if !catalog.WithinHours(e.StartTimeLimit, e.EndTimeLimit, local) {
		return fmt.Sprintf("%s is only valid between %s and %s", e.PackageName, deref(e.StartTimeLimit, "00:00"), deref(e.EndTimeLimit, "23:59"))
	}
	if !catalog.AllowsWeekday(e.AllowedWeekdays, local.Weekday()) {
		return fmt.Sprintf("%s is not valid on %s", e.PackageName, local.Weekday())
	}
	return ""
}

func (e *Entitlement) SessionBound() bool {
	return e.Kind == catalog.KindPerVisit || e.Kind == catalog.KindPT
}

// Decision is the result of one door attempt.
type Decision struct {
	Outcome           Outcome    `json:"outcome"`
	Message           string     `json:"message"`
	MemberID          int        `json:"member_id"`
	MemberName        string     `json:"member_name"`
	SubscriptionID    *int       `json:"subscription_id,omitempty"`
	PackageName       string     `json:"package_name,omitempty"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	RemainingSessions *int       `json:"remaining_sessions,omitempty"`
	RecordID          int        `json:"record_id,omitempty"`
}

type CheckoutResult struct {
	RecordID               int       `json:"record_id"`
	MemberID               int       `json:"member_id"`
	SubscriptionID         int       `json:"subscription_id"`
	CheckInTime            time.Time `json:"check_in_time"`
	CheckOutTime           time.Time `json:"check_out_time"`
	SessionDurationSeconds int64     `json:"session_duration_seconds"`
}

// RecordFilter narrows the attendance history. Zero values are unrestricted except
// for the date range, which defaults to the last 30 days.
type RecordFilter struct {
	MemberID       *int
	SubscriptionID *int
	From           time.Time
	To             time.Time
	Limit          int
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
