package user

import (
	"context"
	"database/sql"
	"errors"

	"gymcore/internal/apperr"
	"gymcore/internal/auth"
	"gymcore/internal/db"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, name, email, password_hash, role, member_id, created_at`

type Repository interface {
	Create(ctx context.Context, u *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	IsTrainer(ctx context.Context, id int) (bool, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, u *User) error {
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, u, `
		INSERT INTO users (name, email, password_hash, role, member_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		u.Name, u.Email, u.PasswordHash, u.Role, u.MemberID,
	)
	if db.IsUniqueViolation(err, "users_email_key") {
		return apperr.Conflictf("email %s is already registered", u.Email)
	}
	return err
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *repository) FindByID(ctx context.Context, id int) (*User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return db.Exists(ctx, db.ConnFrom(ctx, r.db), `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email)
}

func (r *repository) IsTrainer(ctx context.Context, id int) (bool, error) {
	return db.Exists(ctx, db.ConnFrom(ctx, r.db),
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND role = $2)`, id, auth.RoleTrainer)
}

func (r *repository) get(ctx context.Context, query string, arg interface{}) (*User, error) {
	var u User
	err := db.ConnFrom(ctx, r.db).GetContext(ctx, &u, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
