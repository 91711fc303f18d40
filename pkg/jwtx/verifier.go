package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerifyOptions captures common expectations used by verifiers.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// Leeway allows small clock skew when validating exp/nbf/iat.
	Leeway time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrUnknownKID = errors.New("jwtx: unknown kid")
	ErrInvalidSig = errors.New("jwtx: invalid signature")
	ErrIssuer     = errors.New("jwtx: issuer mismatch")
	ErrExpired    = errors.New("jwtx: token expired")
	ErrTokenType  = errors.New("jwtx: wrong token type")
)

// Verifier validates tokens produced by one Signer.
type Verifier struct {
	alg    string
	kid    string
	key    any
	parser *jwt.Parser
}

// NewVerifier builds a Verifier that accepts only tokens carrying the
// signer's algorithm and kid.
func NewVerifier(s Signer, opts VerifyOptions) *Verifier {
	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		popts = append(popts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Now != nil {
		popts = append(popts, jwt.WithTimeFunc(opts.Now))
	}

	return &Verifier{
		alg:    s.Alg(),
		kid:    s.KID(),
		key:    s.VerificationKey(),
		parser: jwt.NewParser(popts...),
	}
}

// Verify parses and validates tokenStr and checks its typ claim.
func (v *Verifier) Verify(tokenStr string, want TokenType) (Claims, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if v.kid != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != v.kid {
				return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
			}
		}
		return v.key, nil
	})
	if err != nil {
		return Claims{}, classify(err)
	}

	if err := claims.ValidateType(want); err != nil {
		return Claims{}, err
	}
	if claims.ID == "" || claims.Subject == "" {
		return Claims{}, ErrMalformed
	}
	return claims, nil
}

// classify maps golang-jwt errors onto our sentinels so callers never
// depend on the library's error set.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, ErrUnknownKID):
		return ErrUnknownKID
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}
