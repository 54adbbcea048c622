package util

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dashboardSecret = "dashboard-signing-secret"

func TestGenerateTokenPair_StaffRoles(t *testing.T) {
	staff := []struct {
		name   string
		userID uint
		email  string
		role   string
	}{
		{name: "Owner of Harbor Grill", userID: 1, email: "owner@harborgrill.test", role: "owner"},
		{name: "Floor manager", userID: 2, email: "manager@harborgrill.test", role: "manager"},
		{name: "Server", userID: 3, email: "dana@harborgrill.test", role: "staff"},
	}

	for _, tt := range staff {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := GenerateTokenPair(tt.userID, tt.email, tt.role, dashboardSecret, 15*time.Minute, 168*time.Hour)
			require.NoError(t, err)
			require.NotNil(t, pair)
			assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

			access, err := ValidateToken(pair.AccessToken, dashboardSecret)
			require.NoError(t, err)
			assert.Equal(t, tt.userID, access.UserID)
			assert.Equal(t, tt.email, access.Email)
			assert.Equal(t, tt.role, access.Role)
			assert.Equal(t, TokenTypeAccess, access.TokenType)
			assert.Equal(t, "tabline", access.Issuer)

			refresh, err := ValidateToken(pair.RefreshToken, dashboardSecret)
			require.NoError(t, err)
			assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
			assert.Equal(t, tt.role, refresh.Role)
			assert.NotEqual(t, access.ID, refresh.ID, "each token carries its own jti")
			assert.True(t, refresh.ExpiresAt.After(access.ExpiresAt.Time))
		})
	}
}

func TestValidateToken_Rejections(t *testing.T) {
	pair, err := GenerateTokenPair(4, "manager@harborgrill.test", "manager", dashboardSecret, time.Minute, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 4, Role: "owner", TokenType: TokenTypeAccess})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]struct {
		token  string
		secret string
	}{
		"Signed for another deployment": {token: pair.AccessToken, secret: "other-deployment"},
		"Garbage":                       {token: "not.a.jwt", secret: dashboardSecret},
		"Empty header":                  {token: "", secret: dashboardSecret},
		"Unsigned role escalation":      {token: unsigned, secret: dashboardSecret},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			claims, err := ValidateToken(tc.token, tc.secret)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.NotErrorIs(t, err, ErrExpiredToken)
			assert.Nil(t, claims)
		})
	}
}

func TestValidateToken_ExpiredShift(t *testing.T) {
	pair, err := GenerateTokenPair(3, "dana@harborgrill.test", "staff", dashboardSecret, -time.Minute, -time.Minute)
	require.NoError(t, err)

	claims, err := ValidateToken(pair.AccessToken, dashboardSecret)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}
