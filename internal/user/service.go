package user

import (
	"context"
	"strings"

	"gymcore/internal/apperr"
	"gymcore/internal/auth"
	"gymcore/internal/db"
	"gymcore/internal/logger"
	"gymcore/internal/member"
)

var ErrInvalidCredentials = apperr.Verificationf("invalid email or password")

type MemberCreator interface {
	Create(ctx context.Context, m *member.Member) error
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*User, error)
	GetByID(ctx context.Context, userID int) (*User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*RefreshResponse, error)
	IsTrainer(ctx context.Context, userID int) (bool, error)
}

type service struct {
	tx        db.Transactor
	repo      Repository
	members   MemberCreator
	jwtSecret string
}

func NewService(tx db.Transactor, repo Repository, members MemberCreator, jwtSecret string) Service {
	return &service{
		tx:        tx,
		repo:      repo,
		members:   members,
		jwtSecret: jwtSecret,
	}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	email := normalizeEmail(req.Email)
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &User{Name: req.Name, Email: email, PasswordHash: passwordHash, Role: auth.RoleMember}
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		exists, err := s.repo.EmailExists(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflictf("email %s is already registered", email)
		}

		m := &member.Member{FullName: req.Name, PhoneNumber: strings.TrimSpace(req.PhoneNumber), Email: &email}
		if err := s.members.Create(ctx, m); err != nil {
			return err
		}
		u.MemberID = &m.ID
		return s.repo.Create(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("member registered", "user_id", u.ID, "member_id", *u.MemberID)
	return s.issue(u)
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if apperr.Kind(err) == apperr.ErrNotFound {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

func (s *service) CreateAccount(ctx context.Context, req CreateAccountRequest) (*User, error) {
	email := normalizeEmail(req.Email)
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflictf("email %s is already registered", email)
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &User{Name: req.Name, Email: email, PasswordHash: passwordHash, Role: req.Role}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	logger.Info("account created", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *service) GetByID(ctx context.Context, userID int) (*User, error) {
	return s.repo.FindByID(ctx, userID)
}

func (s *service) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	_, claims, err := auth.RefreshAccessToken(refreshToken, s.jwtSecret, s.jwtSecret)
	if err != nil {
		return nil, apperr.Verificationf("invalid or expired refresh token")
	}

	u, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	// Re-issue from the stored account so role changes take effect.
	access, err := auth.GenerateAccessToken(identity(u), s.jwtSecret)
	if err != nil {
		return nil, err
	}
	return &RefreshResponse{AccessToken: access, User: *u}, nil
}

func (s *service) IsTrainer(ctx context.Context, userID int) (bool, error) {
	return s.repo.IsTrainer(ctx, userID)
}

func (s *service) issue(u *User) (*LoginResponse, error) {
	access, refresh, err := auth.GenerateTokens(identity(u), s.jwtSecret, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{AccessToken: access, RefreshToken: refresh, User: *u}, nil
}

func identity(u *User) auth.Identity {
	return auth.Identity{UserID: u.ID, Email: u.Email, Role: u.Role, MemberID: u.MemberID}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
