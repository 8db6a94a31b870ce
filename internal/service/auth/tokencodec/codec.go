package tokencodec

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aegisshield/aegis/internal/apperrors"
	"github.com/aegisshield/aegis/internal/models"
)

// Token type claim values
// A token minted for one purpose must never be accepted for the other
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

const (
	defaultSigningMethod   = "HS256"
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 24 * time.Hour
)

// Claims carried by both token types.
// Username and Roles are set on access tokens only, they are a snapshot
// taken at mint time and are not re-checked against the store on parse.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string   `json:"type"`
	Username  string   `json:"username,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// UserID returns the subject as the numeric user id it was minted from
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed subject %q", apperrors.ErrInvalidToken, c.Subject)
	}
	return id, nil
}

// accessClaims keeps username and roles in the payload even when empty,
// an access token always carries a roles claim
type accessClaims struct {
	jwt.RegisteredClaims
	TokenType string   `json:"type"`
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
}

// Codec config with sensible defaults
type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// Issuer claim set on every minted token and required on parse
	// Required to be set
	Issuer string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Codec constructs and parses signed tokens.
// It owns the signing key, the issuer identity and per type lifetimes,
// all immutable after New.
type Codec struct {
	key        string
	issuer     string
	alg        jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(cfg Config) (*Codec, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Issuer == "" {
		return nil, errors.New("issuer must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &Codec{
		key:        cfg.SecretKey,
		issuer:     cfg.Issuer,
		alg:        jwt.GetSigningMethod(cfg.Alg),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// IssueAccess mints an access token carrying the username and the role
// snapshot resolved at this instant
func (c *Codec) IssueAccess(userID int64, username string, roles []string) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(c.accessTTL)

	if roles == nil {
		roles = []string{}
	}

	token := jwt.NewWithClaims(
		c.alg,
		accessClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   strconv.FormatInt(userID, 10),
				Issuer:    c.issuer,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			TokenType: TypeAccess,
			Username:  username,
			Roles:     roles,
		},
	)

	signed, err := token.SignedString([]byte(c.key))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// IssueRefresh mints a refresh token, it identifies the user only and
// carries no username or roles
func (c *Codec) IssueRefresh(userID int64) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(c.refreshTTL)

	token := jwt.NewWithClaims(
		c.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   strconv.FormatInt(userID, 10),
				Issuer:    c.issuer,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			TokenType: TypeRefresh,
		},
	)

	signed, err := token.SignedString([]byte(c.key))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing refresh token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Parse verifies the signature, the signing method, the issuer and the
// expiration, and returns the claims only when every check passed.
// An elapsed expiration is reported as apperrors.ErrExpiredToken, any
// other defect as apperrors.ErrInvalidToken.
func (c *Codec) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(c.key), nil },
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)

	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", apperrors.ErrExpiredToken, err)
	default:
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}
}

// IsType reports whether the token parses cleanly and its type claim
// equals the expected value exactly
func (c *Codec) IsType(tokenString string, expected string) bool {
	claims, err := c.Parse(tokenString)
	return err == nil && claims.TokenType == expected
}

func (c *Codec) IsAccess(tokenString string) bool {
	return c.IsType(tokenString, TypeAccess)
}

func (c *Codec) IsRefresh(tokenString string) bool {
	return c.IsType(tokenString, TypeRefresh)
}

// Claim accessors
// Each one re-parses and re-verifies the token, claims are never read
// from an unverified payload

func (c *Codec) UserID(tokenString string) (int64, error) {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return 0, err
	}
	return claims.UserID()
}

func (c *Codec) Username(tokenString string) (string, error) {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Username, nil
}

func (c *Codec) Roles(tokenString string) ([]string, error) {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Roles == nil {
		return []string{}, nil
	}
	return claims.Roles, nil
}

func (c *Codec) ExpiresAt(tokenString string) (time.Time, error) {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time, nil
}
