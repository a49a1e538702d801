package checkin

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gymcore/internal/apperr"
)

const (
	memberTokenPrefix = "GQR"
	venueTokenPrefix  = "GQRD"
	tokenDateLayout   = "20060102"
)

// Credentials signs and verifies the daily door tokens. Both kinds embed the
// venue-local date they were issued for and are rejected on any other day.
type Credentials struct {
	secret []byte
	loc    *time.Location
}

func NewCredentials(secret string, loc *time.Location) *Credentials {
	if loc == nil {
		loc = time.UTC
	}
	return &Credentials{secret: []byte(secret), loc: loc}
}

// Kind of credential string, by prefix.
type credentialKind int

const (
	credentialBarcode credentialKind = iota
	credentialMemberToken
	credentialVenueToken
)

func classify(credential string) credentialKind {
	switch {
	case strings.HasPrefix(credential, venueTokenPrefix+":"):
		return credentialVenueToken
	case strings.HasPrefix(credential, memberTokenPrefix+":"):
		return credentialMemberToken
	}
	return credentialBarcode
}

func (c *Credentials) day(t time.Time) string {
	return t.In(c.loc).Format(tokenDateLayout)
}

func (c *Credentials) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Credentials) verify(payload, sig string) bool {
	return hmac.Equal([]byte(c.sign(payload)), []byte(strings.ToLower(sig)))
}

// MemberToken issues the personal token for memberID valid on the venue-local day of t.
func (c *Credentials) MemberToken(memberID int, t time.Time) string {
	date := c.day(t)
	return fmt.Sprintf("%s:%d:%s:%s", memberTokenPrefix, memberID, date, c.sign(fmt.Sprintf("%d:%s", memberID, date)))
}

// VenueToken issues the shared token displayed at the door for the venue-local day of t.
func (c *Credentials) VenueToken(t time.Time, nonce int) string {
	date := c.day(t)
	n := fmt.Sprintf("%06d", nonce)
	return fmt.Sprintf("%s:%s:%s:%s", venueTokenPrefix, date, n, c.sign("GYM:"+date+":"+n))
}

// VerifyMemberToken returns the member id a personal token was issued to.
func (c *Credentials) VerifyMemberToken(token string, now time.Time) (int, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 4 || parts[0] != memberTokenPrefix {
		return 0, apperr.Verificationf("malformed member token")
	}
	memberID, err := strconv.Atoi(parts[1])
	if err != nil || memberID <= 0 {
		return 0, apperr.Verificationf("malformed member token")
	}
	date, sig := parts[2], parts[3]
	if !c.verify(fmt.Sprintf("%d:%s", memberID, date), sig) {
		return 0, apperr.Verificationf("invalid member token signature")
	}
	if date != c.day(now) {
		return 0, apperr.Verificationf("member token was issued for %s", date)
	}
	return memberID, nil
}

func (c *Credentials) VerifyVenueToken(token string, now time.Time) error {
	parts := strings.Split(token, ":")
	if len(parts) != 4 || parts[0] != venueTokenPrefix {
		return apperr.Verificationf("malformed venue token")
	}
	date, nonce, sig := parts[1], parts[2], parts[3]
	if !c.verify("GYM:"+date+":"+nonce, sig) {
		return apperr.Verificationf("invalid venue token signature")
	}
	if date != c.day(now) {
		return apperr.Verificationf("venue token was issued for %s", date)
	}
	return nil
}
