package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-unit-tests-only"

func TestTokens_IssueAndVerify(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	userID := uuid.New()

	signed, err := tokens.Issue(userID, RoleDoctor)
	require.NoError(t, err)

	p, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, RoleDoctor, p.Role)
}

func TestTokens_Verify_Rejects(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	userID := uuid.New()

	sign := func(claims Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func(sub string, role Role) Claims {
		return Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   sub,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Role: role,
		}
	}
	expired := valid(userID.String(), RolePatient)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := valid(userID.String(), RolePatient)
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign(valid(userID.String(), RolePatient), jwt.SigningMethodHS256, []byte("other"))},
		{"expired", sign(expired, jwt.SigningMethodHS256, []byte(testSecret))},
		{"no expiry", sign(noExpiry, jwt.SigningMethodHS256, []byte(testSecret))},
		{"subject not a uuid", sign(valid("alice", RolePatient), jwt.SigningMethodHS256, []byte(testSecret))},
		{"unknown role", sign(valid(userID.String(), "ADMIN"), jwt.SigningMethodHS256, []byte(testSecret))},
		{"other algorithm", sign(valid(userID.String(), RolePatient), jwt.SigningMethodHS512, []byte(testSecret))},
		{"garbage", "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Verify(tt.token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer  abc ", "abc", false},
		{"", "", true},
		{"Bearer", "", true},
		{"Bearer ", "", true},
		{"Basic dXNlcjpwYXNz", "", true},
	}

	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrMissingToken, tt.header)
			continue
		}
		require.NoError(t, err, tt.header)
		assert.Equal(t, tt.want, got)
	}
}

func TestCapabilitiesFor(t *testing.T) {
	assert.Equal(t, Capabilities{CanBookAsPatient: true}, CapabilitiesFor(RolePatient))
	assert.Equal(t, Capabilities{CanManageSlotsAsDoctor: true}, CapabilitiesFor(RoleDoctor))
	assert.Equal(t, Capabilities{}, CapabilitiesFor("ADMIN"))
}
