package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token verification errors. The gate collapses all of them into a single
// unauthenticated response; they stay distinct for logging and tests.
var (
	ErrMalformed = errors.New("auth: malformed token")
	ErrExpired   = errors.New("auth: token expired")
	ErrInvalid   = errors.New("auth: invalid refresh token")
	ErrRevoked   = errors.New("auth: token revoked")
)

// Token types carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

const minSecretLen = 32

// TokenConfig is the immutable codec configuration built once at startup.
type TokenConfig struct {
	Secret     []byte
	Algorithm  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Validate checks the configuration before a codec is built from it.
func (c TokenConfig) Validate() error {
	if len(c.Secret) < minSecretLen {
		return fmt.Errorf("auth: token secret must be at least %d bytes", minSecretLen)
	}
	if _, err := signingMethod(c.Algorithm); err != nil {
		return err
	}
	if c.AccessTTL <= 0 {
		return errors.New("auth: access ttl must be positive")
	}
	if c.RefreshTTL < c.AccessTTL {
		return errors.New("auth: refresh ttl must not be shorter than access ttl")
	}
	return nil
}

// Claims is the payload of both access and refresh tokens.
type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Token is an issued credential and the metadata needed to set cookies or revoke it.
type Token struct {
	Value     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair bundles an access token with its refresh credential.
type Pair struct {
	Access  Token
	Refresh Token
}

// Codec signs and verifies identity tokens. It holds no mutable state.
type Codec struct {
	cfg    TokenConfig
	method jwt.SigningMethod
	now    func() time.Time
}

// CodecOption customises a Codec.
type CodecOption func(*Codec)

// WithClock overrides the time source.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec validates cfg and returns a codec bound to it.
func NewCodec(cfg TokenConfig, opts ...CodecOption) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	method, _ := signingMethod(cfg.Algorithm)
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret
	c := &Codec{cfg: cfg, method: method, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL exposes the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.cfg.AccessTTL }

// RefreshTTL exposes the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.cfg.RefreshTTL }

// Issue produces a signed access token for subject.
func (c *Codec) Issue(subject uuid.UUID) (Token, error) {
	return c.sign(subject, TypeAccess, c.cfg.AccessTTL)
}

// IssuePair produces an access token and a refresh token for subject.
func (c *Codec) IssuePair(subject uuid.UUID) (Pair, error) {
	access, err := c.sign(subject, TypeAccess, c.cfg.AccessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := c.sign(subject, TypeRefresh, c.cfg.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Verify checks signature, algorithm, issuer and time window of an access
// token and returns its claims. It fails with ErrExpired once now >= exp and
// with ErrMalformed for anything else.
func (c *Codec) Verify(raw string) (Claims, error) {
	claims, err := c.parse(raw, TypeAccess)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

// VerifyRefresh checks a refresh credential. Every failure is ErrInvalid.
func (c *Codec) VerifyRefresh(raw string) (Claims, error) {
	claims, err := c.parse(raw, TypeRefresh)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return claims, nil
}

// Refresh mints a new pair from a valid refresh credential.
func (c *Codec) Refresh(raw string) (Pair, error) {
	claims, err := c.VerifyRefresh(raw)
	if err != nil {
		return Pair{}, err
	}
	subject, _ := claims.UserID()
	return c.IssuePair(subject)
}

func (c *Codec) sign(subject uuid.UUID, typ string, ttl time.Duration) (Token, error) {
	if subject == uuid.Nil {
		return Token{}, errors.New("auth: subject required")
	}
	// NumericDate has second precision; truncate so reported times match the claims.
	now := c.now().UTC().Truncate(time.Second)
	expires := now.Add(ttl)
	id := uuid.NewString()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.Issuer,
			Subject:   subject.String(),
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.cfg.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Token{Value: signed, ID: id, IssuedAt: now, ExpiresAt: expires}, nil
}

func (c *Codec) parse(raw, typ string) (Claims, error) {
	if raw == "" {
		return Claims{}, errors.New("empty token")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
	}
	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.cfg.Secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if claims.Type != typ {
		return Claims{}, fmt.Errorf("unexpected token type %q", claims.Type)
	}
	if claims.ID == "" {
		return Claims{}, errors.New("missing token id")
	}
	if _, err := claims.UserID(); err != nil {
		return Claims{}, fmt.Errorf("subject: %w", err)
	}
	return claims, nil
}

func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch alg {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("auth: unsupported token algorithm %q", alg)
	}
}
