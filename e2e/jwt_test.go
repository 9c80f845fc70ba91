package e2e

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type tokenClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// decodeJWTClaims reads the payload segment of a JWT without verifying
// the signature. Good enough for tests that only need the subject.
func decodeJWTClaims(t *testing.T, token string) tokenClaims {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3, "malformed JWT")

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var claims tokenClaims
	require.NoError(t, json.Unmarshal(payload, &claims))
	return claims
}
