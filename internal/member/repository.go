package member

import (
	"context"
	"database/sql"
	"errors"

	"gymcore/internal/apperr"
	"gymcore/internal/db"

	"github.com/jmoiron/sqlx"
)

const memberColumns = `id, full_name, phone_number, email, barcode, created_at`

type Repository interface {
	Create(ctx context.Context, m *Member) error
	GetByID(ctx context.Context, id int) (*Member, error)
	FindByBarcode(ctx context.Context, barcode string) (*Member, error)
	FindByPhone(ctx context.Context, phone string) (*Member, error)
	// LockForUpdate row-locks the member for the rest of the current transaction.
	LockForUpdate(ctx context.Context, id int) (*Member, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, m *Member) error {
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, m, `
		INSERT INTO members (full_name, phone_number, email, barcode)
		VALUES ($1, $2, $3, $4)
		RETURNING `+memberColumns,
		m.FullName, m.PhoneNumber, m.Email, m.Barcode,
	)
	if db.IsUniqueViolation(err, "") {
		return apperr.Conflictf("a member with phone %s or the same barcode already exists", m.PhoneNumber)
	}
	return err
}

func (r *repository) GetByID(ctx context.Context, id int) (*Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, "member %v not found", id)
}

func (r *repository) FindByBarcode(ctx context.Context, barcode string) (*Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE barcode = $1`, "no member with barcode %v", barcode)
}

func (r *repository) FindByPhone(ctx context.Context, phone string) (*Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE phone_number = $1`, "no member with phone %v", phone)
}

func (r *repository) LockForUpdate(ctx context.Context, id int) (*Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1 FOR UPDATE`, "member %v not found", id)
}

func (r *repository) getOne(ctx context.Context, query, notFound string, arg interface{}) (*Member, error) {
	var m Member
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &m, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf(notFound, arg)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
