package user

import (
	"context"
	"errors"
	"testing"

	"gymcore/internal/apperr"
	"gymcore/internal/auth"
	"gymcore/internal/member"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type passTx struct{}

func (passTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// MockRepository is a mock implementation of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) user(args mock.Arguments) (*User, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockRepository) Create(ctx context.Context, u *User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *MockRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return m.user(m.Called(ctx, email))
}

func (m *MockRepository) FindByID(ctx context.Context, id int) (*User, error) {
	return m.user(m.Called(ctx, id))
}

func (m *MockRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) IsTrainer(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type MockMembers struct {
	mock.Mock
}

func (m *MockMembers) Create(ctx context.Context, mem *member.Member) error {
	return m.Called(ctx, mem).Error(0)
}

func newTestService() (Service, *MockRepository, *MockMembers) {
	repo := new(MockRepository)
	members := new(MockMembers)
	return NewService(passTx{}, repo, members, testSecret), repo, members
}

func TestService_Register(t *testing.T) {
	req := RegisterRequest{
		Name:        "Test User",
		Email:       " Test@Example.com ",
		Password:    "password123",
		PhoneNumber: "0901234567",
	}

	t.Run("creates member and linked login", func(t *testing.T) {
		svc, repo, members := newTestService()
		repo.On("EmailExists", mock.Anything, "test@example.com").Return(false, nil)
		members.On("Create", mock.Anything, mock.MatchedBy(func(m *member.Member) bool {
			return m.FullName == "Test User" && m.PhoneNumber == "0901234567" && *m.Email == "test@example.com"
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*member.Member).ID = 8
		}).Return(nil)
		repo.On("Create", mock.Anything, mock.MatchedBy(func(u *User) bool {
			return u.Role == auth.RoleMember && *u.MemberID == 8 && u.PasswordHash != "password123"
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*User).ID = 1
		}).Return(nil)

		resp, err := svc.Register(context.Background(), req)

		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)

		claims, err := auth.ValidateToken(resp.AccessToken, testSecret)
		require.NoError(t, err)
		require.NotNil(t, claims.MemberID)
		assert.Equal(t, 8, *claims.MemberID)
		repo.AssertExpectations(t)
		members.AssertExpectations(t)
	})

	t.Run("email already exists", func(t *testing.T) {
		svc, repo, members := newTestService()
		repo.On("EmailExists", mock.Anything, "test@example.com").Return(true, nil)

		resp, err := svc.Register(context.Background(), req)

		assert.Nil(t, resp)
		assert.ErrorIs(t, err, apperr.ErrConflict)
		members.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("phone already used", func(t *testing.T) {
		svc, repo, members := newTestService()
		repo.On("EmailExists", mock.Anything, "test@example.com").Return(false, nil)
		members.On("Create", mock.Anything, mock.Anything).Return(apperr.Conflictf("a member with phone 0901234567 already exists"))

		_, err := svc.Register(context.Background(), req)

		assert.ErrorIs(t, err, apperr.ErrConflict)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestService_Login(t *testing.T) {
	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	stored := &User{ID: 1, Email: "test@example.com", PasswordHash: hash, Role: auth.RoleStaff}

	tests := []struct {
		name          string
		req           LoginRequest
		setupMock     func(*MockRepository)
		expectedError error
	}{
		{
			name: "successful login",
			req:  LoginRequest{Email: "test@example.com", Password: "password123"},
			setupMock: func(m *MockRepository) {
				m.On("FindByEmail", mock.Anything, "test@example.com").Return(stored, nil)
			},
		},
		{
			name: "wrong password",
			req:  LoginRequest{Email: "test@example.com", Password: "password124"},
			setupMock: func(m *MockRepository) {
				m.On("FindByEmail", mock.Anything, "test@example.com").Return(stored, nil)
			},
			expectedError: ErrInvalidCredentials,
		},
		{
			name: "user not found",
			req:  LoginRequest{Email: "notfound@example.com", Password: "password123"},
			setupMock: func(m *MockRepository) {
				m.On("FindByEmail", mock.Anything, "notfound@example.com").Return(nil, apperr.NotFoundf("user not found"))
			},
			expectedError: ErrInvalidCredentials,
		},
		{
			name: "database down",
			req:  LoginRequest{Email: "test@example.com", Password: "password123"},
			setupMock: func(m *MockRepository) {
				m.On("FindByEmail", mock.Anything, "test@example.com").Return(nil, errors.New("connection refused"))
			},
			expectedError: errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService()
			tt.setupMock(repo)

			resp, err := svc.Login(context.Background(), tt.req)

			if tt.expectedError != nil {
				assert.EqualError(t, err, tt.expectedError.Error())
				assert.Nil(t, resp)
			} else {
				require.NoError(t, err)
				assert.Equal(t, auth.RoleStaff, resp.User.Role)
				assert.NotEmpty(t, resp.AccessToken)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_CreateAccount(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.On("EmailExists", mock.Anything, "coach@example.com").Return(false, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(u *User) bool {
		return u.Role == auth.RoleTrainer && u.MemberID == nil
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*User).ID = 5
	}).Return(nil)

	u, err := svc.CreateAccount(context.Background(), CreateAccountRequest{
		Name: "Coach", Email: "coach@example.com", Password: "password123", Role: auth.RoleTrainer,
	})

	require.NoError(t, err)
	assert.Equal(t, 5, u.ID)
	repo.AssertExpectations(t)
}

func TestService_RefreshToken(t *testing.T) {
	svc, repo, _ := newTestService()
	memberID := 8
	_, refresh, err := auth.GenerateTokens(auth.Identity{UserID: 1, Email: "a@example.com", Role: auth.RoleMember, MemberID: &memberID}, testSecret, testSecret)
	require.NoError(t, err)
	repo.On("FindByID", mock.Anything, 1).Return(&User{ID: 1, Email: "a@example.com", Role: auth.RoleMember, MemberID: &memberID}, nil)

	resp, err := svc.RefreshToken(context.Background(), refresh)

	require.NoError(t, err)
	claims, err := auth.ValidateToken(resp.AccessToken, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "access", claims.TokenType)
	assert.Equal(t, 8, *claims.MemberID)
}

func TestService_RefreshToken_RejectsAccessToken(t *testing.T) {
	svc, _, _ := newTestService()
	access, err := auth.GenerateAccessToken(auth.Identity{UserID: 1, Role: auth.RoleStaff}, testSecret)
	require.NoError(t, err)

	_, err = svc.RefreshToken(context.Background(), access)

	assert.ErrorIs(t, err, apperr.ErrVerification)
}

func TestService_IsTrainer(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.On("IsTrainer", mock.Anything, 5).Return(true, nil)

	ok, err := svc.IsTrainer(context.Background(), 5)

	require.NoError(t, err)
	assert.True(t, ok)
}
