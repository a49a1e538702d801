package checkin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gymcore/internal/apperr"
	"gymcore/internal/catalog"
	"gymcore/internal/db"
	"gymcore/internal/logger"
	"gymcore/internal/member"
	"gymcore/internal/metrics"
)

const (
	defaultHistoryDays  = 30
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

// entitlementOrder is the fixed order in which kinds are considered at the door.
var entitlementOrder = []catalog.Kind{catalog.KindTimeBound, catalog.KindPerVisit, catalog.KindPT}

type MemberDirectory interface {
	GetByID(ctx context.Context, id int) (*member.Member, error)
	FindByBarcode(ctx context.Context, barcode string) (*member.Member, error)
	FindByPhone(ctx context.Context, phone string) (*member.Member, error)
	LockForUpdate(ctx context.Context, id int) (*member.Member, error)
}

// Engine decides door entry. Denials are returned as decisions, not errors.
type Engine interface {
	CheckIn(ctx context.Context, credential, phone string) (*Decision, error)
	CheckInBySubscription(ctx context.Context, memberID, subscriptionID int) (*Decision, error)
	// Checkout closes the open record on the subscription. A non-nil memberID must own it.
	Checkout(ctx context.Context, memberID *int, subscriptionID int) (*CheckoutResult, error)
	History(ctx context.Context, f RecordFilter) ([]AttendanceRecord, error)
}

type engine struct {
	tx         db.Transactor
	members    MemberDirectory
	attendance Repository
	creds      *Credentials
	loc        *time.Location
	now        func() time.Time
}

func NewEngine(tx db.Transactor, members MemberDirectory, attendance Repository, creds *Credentials, loc *time.Location) Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &engine{
		tx:         tx,
		members:    members,
		attendance: attendance,
		creds:      creds,
		loc:        loc,
		now:        time.Now,
	}
}

func (e *engine) CheckIn(ctx context.Context, credential, phone string) (*Decision, error) {
	m, err := e.resolve(ctx, strings.TrimSpace(credential), strings.TrimSpace(phone))
	if err != nil {
		return nil, err
	}

	var d *Decision
	err = e.tx.WithTransaction(ctx, func(ctx context.Context) error {
		locked, err := e.members.LockForUpdate(ctx, m.ID)
		if err != nil {
			return err
		}
		now := e.now()

		d, err = e.alreadyInside(ctx, locked)
		if err != nil || d != nil {
			return err
		}

		ents, err := e.attendance.ListEntitlements(ctx, locked.ID, entitlementOrder)
		if err != nil {
			return err
		}
		best := choose(ents, now)
		if best == nil {
			d, err = e.deny(ctx, locked, nil, OutcomeNoEntitlement, "no active entitlement", now)
			return err
		}
		d, err = e.admit(ctx, locked, best, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.record(d)
	return d, nil
}

func (e *engine) CheckInBySubscription(ctx context.Context, memberID, subscriptionID int) (*Decision, error) {
	var d *Decision
	err := e.tx.WithTransaction(ctx, func(ctx context.Context) error {
		m, err := e.members.LockForUpdate(ctx, memberID)
		if err != nil {
			return err
		}
		ent, err := e.attendance.GetEntitlement(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if ent.MemberID != m.ID {
			return apperr.AccessDeniedf("subscription %d does not belong to member %d", subscriptionID, m.ID)
		}
		now := e.now()

		d, err = e.alreadyInside(ctx, m)
		if err != nil || d != nil {
			return err
		}

		if ent.Status != "active" {
			d, err = e.deny(ctx, m, &ent.SubscriptionID, OutcomeNoEntitlement, fmt.Sprintf("subscription is %s", ent.Status), now)
			return err
		}
		if !ent.Usable(now) {
			d, err = e.deny(ctx, m, &ent.SubscriptionID, OutcomeNoEntitlement, "subscription has expired or has no sessions left", now)
			return err
		}
		d, err = e.admit(ctx, m, ent, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.record(d)
	return d, nil
}

func (e *engine) Checkout(ctx context.Context, memberID *int, subscriptionID int) (*CheckoutResult, error) {
	var res *CheckoutResult
	err := e.tx.WithTransaction(ctx, func(ctx context.Context) error {
		rec, err := e.attendance.FindOpenBySubscription(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.InvalidStatef("no open check-in for subscription %d", subscriptionID)
		}
		if memberID != nil && rec.MemberID != *memberID {
			return apperr.AccessDeniedf("subscription %d does not belong to member %d", subscriptionID, *memberID)
		}

		now := e.now()
		seconds := int64(now.Sub(rec.CheckInTime) / time.Second)
		if seconds < 0 {
			seconds = 0
		}
		rec.CheckOutTime = &now
		rec.SessionDurationSeconds = &seconds
		if err := e.attendance.CloseRecord(ctx, rec); err != nil {
			return err
		}

		res = &CheckoutResult{
			RecordID:               rec.ID,
			MemberID:               rec.MemberID,
			SubscriptionID:         subscriptionID,
			CheckInTime:            rec.CheckInTime,
			CheckOutTime:           now,
			SessionDurationSeconds: seconds,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("member checked out", "member_id", res.MemberID, "subscription_id", subscriptionID, "duration_seconds", res.SessionDurationSeconds)
	return res, nil
}

func (e *engine) History(ctx context.Context, f RecordFilter) ([]AttendanceRecord, error) {
	now := e.now()
	if f.To.IsZero() {
		f.To = now
	}
	if f.From.IsZero() {
		f.From = f.To.AddDate(0, 0, -defaultHistoryDays)
	}
	if !f.From.Before(f.To) {
		return nil, apperr.Validationf("from must be before to")
	}
	if f.Limit <= 0 {
		f.Limit = defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		f.Limit = maxHistoryLimit
	}
	return e.attendance.ListRecords(ctx, f)
}

// resolve maps a door credential to a member: a signed personal token, the
// venue token plus the member's phone, or else a card barcode.
func (e *engine) resolve(ctx context.Context, credential, phone string) (*member.Member, error) {
	if credential == "" {
		return nil, apperr.Validationf("credential is required")
	}

	switch classify(credential) {
	case credentialMemberToken:
		id, err := e.creds.VerifyMemberToken(credential, e.now())
		if err != nil {
			return nil, err
		}
		return e.members.GetByID(ctx, id)
	case credentialVenueToken:
		if phone == "" {
			return nil, apperr.Validationf("phone number is required with the venue code")
		}
		if err := e.creds.VerifyVenueToken(credential, e.now()); err != nil {
			return nil, err
		}
		return e.members.FindByPhone(ctx, phone)
	}
	return e.members.FindByBarcode(ctx, credential)
}

func (e *engine) alreadyInside(ctx context.Context, m *member.Member) (*Decision, error) {
	open, err := e.attendance.FindOpenVisit(ctx, m.ID)
	if err != nil || open == nil {
		return nil, err
	}
	d := &Decision{
		Outcome:        OutcomeAlreadyInside,
		Message:        "already checked in",
		MemberID:       m.ID,
		MemberName:     m.FullName,
		SubscriptionID: open.SubscriptionID,
		RecordID:       open.ID,
	}
	if open.PackageName != nil {
		d.PackageName = *open.PackageName
	}
	return d, nil
}

// admit applies the time-of-day gate to ent and, when it passes, consumes a
// session for session-bound kinds and opens an attendance record.
func (e *engine) admit(ctx context.Context, m *member.Member, ent *Entitlement, now time.Time) (*Decision, error) {
	if reason := ent.HoursViolation(now.In(e.loc)); reason != "" {
		d, err := e.deny(ctx, m, &ent.SubscriptionID, OutcomeOutsideHours, reason, now)
		if err != nil {
			return nil, err
		}
		d.PackageName = ent.PackageName
		return d, nil
	}

	if ent.SessionBound() {
		remaining, err := e.attendance.ConsumeSession(ctx, ent.SubscriptionID)
		if err != nil {
			return nil, err
		}
		ent.RemainingSessions = &remaining
	}
	if ent.Kind == catalog.KindPT && ent.TrainerID != nil {
		if err := e.attendance.InsertTrainerSession(ctx, *ent.TrainerID, ent.SubscriptionID, now, "check-in"); err != nil {
			return nil, err
		}
	}

	rec := &AttendanceRecord{
		MemberID:       m.ID,
		SubscriptionID: &ent.SubscriptionID,
		Outcome:        OutcomeGranted,
		Message:        "granted via " + ent.PackageName,
		CheckInTime:    now,
	}
	if err := e.attendance.InsertRecord(ctx, rec); err != nil {
		return nil, err
	}

	return &Decision{
		Outcome:           OutcomeGranted,
		Message:           rec.Message,
		MemberID:          m.ID,
		MemberName:        m.FullName,
		SubscriptionID:    &ent.SubscriptionID,
		PackageName:       ent.PackageName,
		EndDate:           ent.EndDate,
		RemainingSessions: ent.RemainingSessions,
		RecordID:          rec.ID,
	}, nil
}

func (e *engine) deny(ctx context.Context, m *member.Member, subscriptionID *int, outcome Outcome, reason string, now time.Time) (*Decision, error) {
	rec := &AttendanceRecord{
		MemberID:       m.ID,
		SubscriptionID: subscriptionID,
		Outcome:        outcome,
		Message:        reason,
		CheckInTime:    now,
		CheckOutTime:   &now,
	}
	if err := e.attendance.InsertRecord(ctx, rec); err != nil {
		return nil, err
	}
	return &Decision{
		Outcome:        outcome,
		Message:        reason,
		MemberID:       m.ID,
		MemberName:     m.FullName,
		SubscriptionID: subscriptionID,
		RecordID:       rec.ID,
	}, nil
}

func (e *engine) record(d *Decision) {
	metrics.RecordCheckIn(string(d.Outcome))
	if d.Outcome.Admitted() {
		logger.Info("check-in", "outcome", d.Outcome, "member_id", d.MemberID, "package", d.PackageName)
		return
	}
	logger.Warn("check-in denied", "outcome", d.Outcome, "member_id", d.MemberID, "reason", d.Message)
}

// choose returns the entitlement that admits at now: the first kind in
// entitlementOrder with a usable subscription wins. Within a kind, time-bound and
// PT prefer the latest end date and per-visit the earliest.
func choose(ents []Entitlement, now time.Time) *Entitlement {
	for _, kind := range entitlementOrder {
		var best *Entitlement
		for i := range ents {
			ent := &ents[i]
			if ent.Kind != kind || !ent.Usable(now) {
				continue
			}
			if best == nil || preferred(kind, ent, best) {
				best = ent
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}

// preferred reports whether a beats b. A missing end date counts as the latest.
func preferred(kind catalog.Kind, a, b *Entitlement) bool {
	switch {
	case a.EndDate == nil && b.EndDate == nil:
		return false
	case a.EndDate == nil:
		return kind != catalog.KindPerVisit
	case b.EndDate == nil:
		return kind == catalog.KindPerVisit
	}
	if kind == catalog.KindPerVisit {
		return a.EndDate.Before(*b.EndDate)
	}
	return a.EndDate.After(*b.EndDate)
}
