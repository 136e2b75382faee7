// Package token decodes the claims the client needs from an access token.
//
// The client never holds the signing key, so tokens are decoded without
// signature verification; the server remains the authority.
package token

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/and161185/bookbazaar/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// Claim names issued by the backend.
const (
	claimUserID = "userId"
	claimRole   = "role"
)

var parser = jwt.NewParser(jwt.WithJSONNumber(), jwt.WithPaddingAllowed())

// ParseClaims decodes exp, userId and role from the middle segment of a
// three-part token. It returns false for malformed input and never panics.
func ParseClaims(raw string) (model.Claims, bool) {
	mc := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, mc); err != nil {
		// An unknown or missing alg only makes the token unverifiable; the payload is still usable.
		if !errors.Is(err, jwt.ErrTokenUnverifiable) {
			return model.Claims{}, false
		}
	}

	var c model.Claims
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		c.ExpiresAt = &t
	}
	if id, ok := intClaim(mc[claimUserID]); ok {
		c.UserID = &id
	}
	if role, ok := mc[claimRole].(string); ok {
		c.Role = &role
	}
	return c, true
}

func intClaim(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
