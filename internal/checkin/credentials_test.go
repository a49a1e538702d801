package checkin

import (
	"strings"
	"testing"
	"time"

	"gymcore/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ict = time.FixedZone("ICT", 7*60*60)

func TestMemberToken(t *testing.T) {
	creds := NewCredentials("door-secret", ict)
	// 20:00 UTC is already the next day in the venue.
	issued := time.Date(2024, 6, 10, 20, 0, 0, 0, time.UTC)

	token := creds.MemberToken(42, issued)
	assert.True(t, strings.HasPrefix(token, "GQR:42:20240611:"))

	t.Run("same venue day", func(t *testing.T) {
		id, err := creds.VerifyMemberToken(token, issued.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 42, id)
	})

	t.Run("next day", func(t *testing.T) {
		_, err := creds.VerifyMemberToken(token, issued.Add(24*time.Hour))
		assert.ErrorIs(t, err, apperr.ErrVerification)
	})

	t.Run("member id swapped", func(t *testing.T) {
		forged := strings.Replace(token, "GQR:42:", "GQR:43:", 1)
		_, err := creds.VerifyMemberToken(forged, issued)
		assert.ErrorIs(t, err, apperr.ErrVerification)
	})

	t.Run("other secret", func(t *testing.T) {
		_, err := NewCredentials("other", ict).VerifyMemberToken(token, issued)
		assert.ErrorIs(t, err, apperr.ErrVerification)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, bad := range []string{"GQR:42:20240611", "GQR:x:20240611:ab", "GQRD:20240611:000001:ab"} {
			_, err := creds.VerifyMemberToken(bad, issued)
			assert.ErrorIs(t, err, apperr.ErrVerification, bad)
		}
	})
}

func TestVenueToken(t *testing.T) {
	creds := NewCredentials("door-secret", ict)
	issued := time.Date(2024, 6, 10, 3, 0, 0, 0, time.UTC)

	token := creds.VenueToken(issued, 731)
	assert.True(t, strings.HasPrefix(token, "GQRD:20240610:000731:"))

	assert.NoError(t, creds.VerifyVenueToken(token, issued))
	assert.ErrorIs(t, creds.VerifyVenueToken(token, issued.AddDate(0, 0, -1)), apperr.ErrVerification)

	tampered := strings.Replace(token, ":000731:", ":000732:", 1)
	assert.ErrorIs(t, creds.VerifyVenueToken(tampered, issued), apperr.ErrVerification)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, credentialVenueToken, classify("GQRD:20240610:000001:ab"))
	assert.Equal(t, credentialMemberToken, classify("GQR:1:20240610:ab"))
	assert.Equal(t, credentialBarcode, classify("8934567000123"))
	assert.Equal(t, credentialBarcode, classify("GQRX"))
}
