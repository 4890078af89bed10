// Package security implements the security gate: bearer-token extraction,
// signed JWT validation with the pre-auth/full-auth two-state model, the
// MFA post-auth token issuance helper, and the static-bearer-key check
// guarding internal introspection endpoints.
package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded claim set of a validated token.
type Claims map[string]string

var (
	ErrTokenExpired      = errors.New("jwt: token expired")
	ErrInvalidSignature  = errors.New("jwt: invalid signature")
	ErrInvalidFormat     = errors.New("jwt: invalid format")
	ErrMissingExpiration = errors.New("jwt: missing expiration claim")
)

// postAuthClaimKeys is the fixed allow-list carried forward from a preauth
// token into a full token once MFA succeeds, grounded on
// mfa.hpp::generate_post_auth_token's keys_to_copy array.
var postAuthClaimKeys = [...]string{"user", "email", "roles", "sessionId"}

// Service signs and validates tokens with a single HMAC secret, mirroring
// jwt::detail::service's construction from JWT_SECRET/JWT_TIMEOUT_SECONDS.
type Service struct {
	secret     []byte
	timeout    time.Duration
	mfaTimeout time.Duration
}

// NewService builds a Service. timeout governs full-auth tokens minted by
// Sign; mfaTimeout governs preauth tokens minted by SignPreAuth.
func NewService(secret string, timeout, mfaTimeout time.Duration) *Service {
	return &Service{secret: []byte(secret), timeout: timeout, mfaTimeout: mfaTimeout}
}

func (s *Service) sign(claims jwt.MapClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Sign mints a full-auth token (no preauth claim) carrying claims.
func (s *Service) Sign(claims Claims) (string, error) {
	return s.sign(toMapClaims(claims), s.timeout)
}

// SignPreAuth mints a pre-auth token: claims plus preauth="true", valid
// only for presentation to the configured MFA endpoint.
func (s *Service) SignPreAuth(claims Claims) (string, error) {
	mc := toMapClaims(claims)
	mc["preauth"] = "true"
	return s.sign(mc, s.mfaTimeout)
}

// PostAuthClaims builds the full-auth claim set carried forward once MFA
// succeeds, keeping only the fixed allow-list of keys and dropping preauth.
func PostAuthClaims(claims Claims) Claims {
	out := make(Claims, len(postAuthClaimKeys))
	for _, key := range postAuthClaimKeys {
		if v, ok := claims[key]; ok {
			out[key] = v
		}
	}
	return out
}

// IssuePostAuthToken signs a full-auth token from the subset of claims
// PostAuthClaims selects, the direct equivalent of
// mfa.hpp::generate_post_auth_token.
func (s *Service) IssuePostAuthToken(preAuthClaims Claims) (string, error) {
	return s.Sign(PostAuthClaims(preAuthClaims))
}

// IsValid validates signature and expiration, returning the decoded claims.
func (s *Service) IsValid(token string) (Claims, error) {
	return s.decode(token, true)
}

// GetClaims decodes a token's claims without verifying the signature,
// still enforcing expiration — used for logging context on paths whose
// signature was already checked by the dispatch logic, mirroring
// jwt::get_claims.
func (s *Service) GetClaims(token string) (Claims, error) {
	return s.decode(token, false)
}

func (s *Service) decode(token string, verifySignature bool) (Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))

	var claims jwt.MapClaims
	var err error
	if verifySignature {
		tok, parseErr := parser.ParseWithClaims(token, jwt.MapClaims{}, func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		})
		err = parseErr
		if tok != nil {
			claims = tok.Claims.(jwt.MapClaims)
		}
	} else {
		tok, _, parseErr := parser.ParseUnverified(token, jwt.MapClaims{})
		err = parseErr
		if tok != nil {
			claims = tok.Claims.(jwt.MapClaims)
		}
	}

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrInvalidFormat
		default:
			return nil, ErrInvalidFormat
		}
	}

	if !verifySignature {
		if exp, err := claims.GetExpirationTime(); err != nil || exp == nil {
			return nil, ErrMissingExpiration
		} else if exp.Before(time.Now()) {
			return nil, ErrTokenExpired
		}
	}

	return fromMapClaims(claims), nil
}

func toMapClaims(c Claims) jwt.MapClaims {
	mc := make(jwt.MapClaims, len(c))
	for k, v := range c {
		mc[k] = v
	}
	return mc
}

func fromMapClaims(mc jwt.MapClaims) Claims {
	c := make(Claims, len(mc))
	for k, v := range mc {
		if s, ok := v.(string); ok {
			c[k] = s
		} else {
			c[k] = jwtValueToString(v)
		}
	}
	return c
}

func jwtValueToString(v interface{}) string {
	switch t := v.(type) {
	case float64:
		return jwtFloatToString(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func jwtFloatToString(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
