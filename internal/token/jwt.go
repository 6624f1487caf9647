package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrExpired: signature checked out but the token is past its exp.
	ErrExpired = errors.New("token expired")
	// ErrInvalid: tampered, wrong secret, wrong type, or malformed.
	ErrInvalid = errors.New("token invalid")
)

type Claims struct {
	UserID    string `json:"sub"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	JTI       string `json:"jti"`
	jwt.RegisteredClaims
}

// Manager signs and verifies both token types. Access and refresh use
// distinct secrets so compromise of one cannot mint the other.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock swaps the time source; expiry tests drive this.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// IssueAccessToken mints a short-lived bearer token carrying the role claim.
func (m *Manager) IssueAccessToken(userID, role string) (string, error) {
	return m.sign(m.accessSecret, Claims{
		UserID:    userID,
		Role:      role,
		TokenType: TypeAccess,
	}, m.accessTTL)
}

// IssueRefreshToken mints a long-lived renewal token. It carries no role;
// the role is re-fetched from the store on every refresh so role changes
// take effect without re-login.
func (m *Manager) IssueRefreshToken(userID string) (string, error) {
	return m.sign(m.refreshSecret, Claims{
		UserID:    userID,
		TokenType: TypeRefresh,
	}, m.refreshTTL)
}

func (m *Manager) sign(secret []byte, claims Claims, ttl time.Duration) (string, error) {
	now := m.now()

	claims.JTI = uuid.NewString()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *Manager) VerifyAccessToken(raw string) (*Claims, error) {
	return m.verify(raw, m.accessSecret, TypeAccess)
}

func (m *Manager) VerifyRefreshToken(raw string) (*Claims, error) {
	return m.verify(raw, m.refreshSecret, TypeRefresh)
}

func (m *Manager) verify(raw string, secret []byte, wantType string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HMAC; an alg swap must fail as a signature problem.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// Zero leeway: the token is invalid the instant exp is reached.
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		// Signature problems win over expiry; an expired-but-tampered
		// token must never report as merely expired.
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, ErrInvalid
		}

		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}

		return nil, ErrInvalid
	}

	claims, ok := tok.Claims.(*Claims)

	if !ok || !tok.Valid {
		return nil, ErrInvalid
	}

	if claims.TokenType != wantType {
		return nil, ErrInvalid
	}

	if claims.UserID == "" {
		return nil, ErrInvalid
	}

	return claims, nil
}
