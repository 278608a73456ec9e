// Package auth validates the ADFS access tokens that identify staff.
//
// Tokens are RS256 JWTs signed by one of the certificates ADFS publishes in
// its federation metadata. Keys are cached; when no cached key verifies a
// token the cache is refreshed from ADFS and verification retried once.
package auth

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var errNoKeyMatched = errors.New("signature verification failed")

// Groups is the ADFS "group" claim, sent as a string or a list
type Groups []string

// UnmarshalJSON accepts a single string or an array of strings
func (g *Groups) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var group string
		if err := json.Unmarshal(data, &group); err != nil {
			return err
		}
		*g = Groups{group}
		return nil
	}
	var groups []string
	if err := json.Unmarshal(data, &groups); err != nil {
		return err
	}
	*g = groups
	return nil
}

// Claims are the ADFS access token claims used by the server
type Claims struct {
	UserName string `json:"UserName"`
	Group    Groups `json:"group"`
	jwt.RegisteredClaims
}

// Identity is an authenticated staff member
type Identity struct {
	StaffID string
	Roles   []string
}

// HasRole reports whether the staff member belongs to role
func (i *Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// Verifier validates access tokens against the cached ADFS keys
type Verifier struct {
	keys     *KeyCache
	audience string
	leeway   time.Duration
	logger   *zap.SugaredLogger
}

// NewVerifier creates a verifier accepting tokens issued for audience
func NewVerifier(keys *KeyCache, audience string, leeway time.Duration, logger *zap.SugaredLogger) *Verifier {
	return &Verifier{keys: keys, audience: audience, leeway: leeway, logger: logger}
}

// Verify validates token and returns the staff member it identifies.
// Errors are always *Error.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if len(v.keys.Keys()) == 0 {
		if err := v.keys.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	claims, err := v.verifyWithCachedKeys(token)
	if errors.Is(err, errNoKeyMatched) {
		v.logger.Errorw("Unable to validate jwt from ADFS with stored certificates")
		if err := v.keys.Refresh(ctx); err != nil {
			return nil, err
		}
		claims, err = v.verifyWithCachedKeys(token)
		if errors.Is(err, errNoKeyMatched) {
			return nil, newRejected("Signature verification failed with new ADFS certificates", err)
		}
	}
	if err != nil {
		return nil, err
	}

	if claims.UserName == "" {
		return nil, newRejected("token has no UserName claim", nil)
	}

	return &Identity{
		StaffID: strings.ToUpper(claims.UserName),
		Roles:   claims.Group,
	}, nil
}

// verifyWithCachedKeys tries each cached key in turn. A secondary key that
// verifies the token is promoted to primary.
func (v *Verifier) verifyWithCachedKeys(token string) (*Claims, error) {
	for i, key := range v.keys.Keys() {
		claims, err := v.parse(token, key)
		if err == nil {
			if i > 0 {
				v.keys.Promote(key)
			}
			return claims, nil
		}
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, newRejected(err.Error(), err)
		}
	}
	return nil, errNoKeyMatched
}

func (v *Verifier) parse(token string, key *rsa.PublicKey) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{},
		func(*jwt.Token) (interface{}, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
