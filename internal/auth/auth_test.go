package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345"

func staffIdentity() Identity {
	return Identity{UserID: 1, Email: "desk@example.com", Role: RoleStaff}
}

func memberIdentity(memberID int) Identity {
	return Identity{UserID: 7, Email: "member@example.com", Role: RoleMember, MemberID: &memberID}
}

func TestHashPassword(t *testing.T) {
	t.Run("Successfully hash password", func(t *testing.T) {
		password := "mySecurePassword123"
		hashed, err := HashPassword(password)

		assert.NoError(t, err)
		assert.NotEmpty(t, hashed)
		assert.NotEqual(t, password, hashed)
	})

	t.Run("Different hashes for same password", func(t *testing.T) {
		hash1, _ := HashPassword("samePassword")
		hash2, _ := HashPassword("samePassword")

		assert.NotEqual(t, hash1, hash2)
	})
}

func TestCheckPassword(t *testing.T) {
	hashed, _ := HashPassword("correctPassword")

	assert.True(t, CheckPassword(hashed, "correctPassword"))
	assert.False(t, CheckPassword(hashed, "wrongPassword"))
	assert.False(t, CheckPassword(hashed, ""))
}

func TestGenerateAccessToken(t *testing.T) {
	t.Run("Successfully generate access token", func(t *testing.T) {
		token, err := GenerateAccessToken(staffIdentity(), testSecret)

		assert.NoError(t, err)
		assert.NotEmpty(t, token)
	})

	t.Run("Fail with empty secret", func(t *testing.T) {
		token, err := GenerateAccessToken(staffIdentity(), "")

		assert.Equal(t, ErrEmptyJWTSecret, err)
		assert.Empty(t, token)
	})

	t.Run("Token carries the member link", func(t *testing.T) {
		token, err := GenerateAccessToken(memberIdentity(42), testSecret)
		require.NoError(t, err)

		claims, err := ValidateToken(token, testSecret)
		require.NoError(t, err)

		assert.Equal(t, 7, claims.UserID)
		assert.Equal(t, RoleMember, claims.Role)
		require.NotNil(t, claims.MemberID)
		assert.Equal(t, 42, *claims.MemberID)
		assert.Equal(t, "access", claims.TokenType)
	})

	t.Run("Staff token has no member link", func(t *testing.T) {
		token, err := GenerateAccessToken(staffIdentity(), testSecret)
		require.NoError(t, err)

		claims, err := ValidateToken(token, testSecret)
		require.NoError(t, err)
		assert.Nil(t, claims.MemberID)
	})
}

func TestGenerateTokens(t *testing.T) {
	accessSecret := "access-secret"
	refreshSecret := "refresh-secret"

	t.Run("Successfully generate both tokens", func(t *testing.T) {
		accessToken, refreshToken, err := GenerateTokens(staffIdentity(), accessSecret, refreshSecret)

		assert.NoError(t, err)
		assert.NotEmpty(t, accessToken)
		assert.NotEmpty(t, refreshToken)
		assert.NotEqual(t, accessToken, refreshToken)
	})

	t.Run("Fail with empty access secret", func(t *testing.T) {
		accessToken, refreshToken, err := GenerateTokens(staffIdentity(), "", refreshSecret)

		assert.Error(t, err)
		assert.Empty(t, accessToken)
		assert.Empty(t, refreshToken)
	})

	t.Run("Fail with empty refresh secret", func(t *testing.T) {
		accessToken, refreshToken, err := GenerateTokens(staffIdentity(), accessSecret, "")

		assert.Error(t, err)
		assert.Empty(t, accessToken)
		assert.Empty(t, refreshToken)
	})
}

func TestValidateToken(t *testing.T) {
	t.Run("Fail with wrong secret", func(t *testing.T) {
		token, _ := GenerateAccessToken(staffIdentity(), testSecret)

		claims, err := ValidateToken(token, "wrong-secret")
		assert.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("Fail with empty secret", func(t *testing.T) {
		token, _ := GenerateAccessToken(staffIdentity(), testSecret)

		claims, err := ValidateToken(token, "")
		assert.Equal(t, ErrEmptyJWTSecret, err)
		assert.Nil(t, claims)
	})

	t.Run("Fail with invalid token format", func(t *testing.T) {
		claims, err := ValidateToken("invalid.token.format", testSecret)
		assert.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("Fail with expired token", func(t *testing.T) {
		pastTime := time.Now().Add(-1 * time.Hour)
		claims := &JWTClaims{
			UserID:    1,
			Role:      RoleStaff,
			TokenType: "access",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    jwtIssuer,
				Audience:  []string{jwtAudience},
				ExpiresAt: jwt.NewNumericDate(pastTime),
				IssuedAt:  jwt.NewNumericDate(pastTime.Add(-15 * time.Minute)),
			},
		}
		tokenString, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))

		validated, err := ValidateToken(tokenString, testSecret)
		assert.Equal(t, ErrTokenExpired, err)
		assert.Nil(t, validated)
	})

	t.Run("Token has correct issuer and audience", func(t *testing.T) {
		token, _ := GenerateAccessToken(staffIdentity(), testSecret)

		claims, err := ValidateToken(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, jwtIssuer, claims.Issuer)
		assert.Contains(t, claims.Audience, jwtAudience)
	})
}

func TestRefreshAccessToken(t *testing.T) {
	accessSecret := "access-secret"
	refreshSecret := "refresh-secret"

	t.Run("Keeps the identity", func(t *testing.T) {
		refreshToken, _ := GenerateRefreshToken(memberIdentity(42), refreshSecret)

		newAccessToken, _, err := RefreshAccessToken(refreshToken, refreshSecret, accessSecret)
		require.NoError(t, err)

		claims, err := ValidateToken(newAccessToken, accessSecret)
		require.NoError(t, err)
		assert.Equal(t, "access", claims.TokenType)
		assert.Equal(t, memberIdentity(42), claims.Identity())
	})

	t.Run("Fail with access token instead of refresh token", func(t *testing.T) {
		accessToken, _ := GenerateAccessToken(staffIdentity(), accessSecret)

		newAccessToken, claims, err := RefreshAccessToken(accessToken, accessSecret, accessSecret)
		assert.Equal(t, ErrInvalidTokenType, err)
		assert.Empty(t, newAccessToken)
		assert.Nil(t, claims)
	})

	t.Run("Fail with invalid refresh token", func(t *testing.T) {
		newAccessToken, claims, err := RefreshAccessToken("invalid.token", refreshSecret, accessSecret)
		assert.Error(t, err)
		assert.Empty(t, newAccessToken)
		assert.Nil(t, claims)
	})
}

func TestTokenExpiration(t *testing.T) {
	t.Run("Access token expires after 15 minutes", func(t *testing.T) {
		token, err := GenerateAccessToken(staffIdentity(), testSecret)
		require.NoError(t, err)

		claims, err := ValidateToken(token, testSecret)
		require.NoError(t, err)

		diff := claims.ExpiresAt.Time.Sub(time.Now().Add(AccessTokenTTL)).Abs()
		assert.Less(t, diff, 2*time.Second)
	})

	t.Run("Refresh token expires after 7 days", func(t *testing.T) {
		token, err := GenerateRefreshToken(staffIdentity(), testSecret)
		require.NoError(t, err)

		claims, err := ValidateToken(token, testSecret)
		require.NoError(t, err)

		diff := claims.ExpiresAt.Time.Sub(time.Now().Add(RefreshTokenTTL)).Abs()
		assert.Less(t, diff, 2*time.Second)
	})
}
