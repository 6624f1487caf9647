package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/netsentry/authsvc/internal/domain/user"
	"github.com/netsentry/authsvc/internal/observability"
	"github.com/netsentry/authsvc/internal/security"
	"github.com/netsentry/authsvc/internal/token"
	"golang.org/x/sync/semaphore"
)

const storeTimeout = 3 * time.Second

// Result is what a successful Register/Login hands the transport layer.
// The refresh token goes into a cookie, the access token into the body;
// neither is ever logged.
type Result struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service orchestrates the credential lifecycle. It is stateless between
// calls; the whole session lives inside the two signed tokens.
type Service struct {
	store   user.Store
	tokens  *token.Manager
	log     *slog.Logger
	metrics *observability.Prom

	// bcrypt is deliberately expensive; the semaphore keeps a login flood
	// from starving unrelated requests of CPU.
	hashSem *semaphore.Weighted
}

func New(store user.Store, tokens *token.Manager, log *slog.Logger, metrics *observability.Prom, hashConcurrency int) *Service {
	if hashConcurrency < 1 {
		hashConcurrency = 1
	}

	return &Service{
		store:   store,
		tokens:  tokens,
		log:     log,
		metrics: metrics,
		hashSem: semaphore.NewWeighted(int64(hashConcurrency)),
	}
}

// Register creates the user and opens a session. A duplicate email yields
// ErrUserExists without touching the existing row; the unique index is the
// authority, so concurrent registrations cannot race past the check.
func (s *Service) Register(ctx context.Context, name, email, password string) (Result, error) {
	hash, err := s.hashPassword(ctx, password)

	if err != nil {
		return Result{}, err
	}

	cctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	u, err := s.store.Create(cctx, email, hash, name, user.RoleUser)

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return Result{}, ErrUserExists
		}

		s.log.ErrorContext(ctx, "user insert failed", "err", err)
		return Result{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return s.openSession(ctx, u)
}

// Login verifies the password and opens a session. Unknown email and wrong
// password return the same error.
func (s *Service) Login(ctx context.Context, email, password string) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	u, err := s.store.GetByEmail(cctx, email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.metrics.CountLogin("invalid_credentials")
			return Result{}, ErrInvalidCredentials
		}

		s.log.ErrorContext(ctx, "user lookup failed", "err", err)
		s.metrics.CountLogin("error")
		return Result{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	ok, err := s.verifyPassword(ctx, u.PasswordHash, password)

	if err != nil {
		return Result{}, err
	}

	if !ok {
		s.metrics.CountLogin("invalid_credentials")
		return Result{}, ErrInvalidCredentials
	}

	res, err := s.openSession(ctx, u)

	if err == nil {
		s.metrics.CountLogin("ok")
	}

	return res, err
}

// Refresh mints a fresh access token from a refresh token. The role is
// re-fetched from the store, not trusted from the token, so role changes
// take effect on the next refresh. The refresh token itself is left
// untouched: no rotation, no cookie mutation.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (Result, error) {
	if rawRefreshToken == "" {
		return Result{}, ErrUnauthenticated
	}

	claims, err := s.tokens.VerifyRefreshToken(rawRefreshToken)

	if err != nil {
		// Expired and tampered both collapse to forbidden for callers.
		return Result{}, ErrForbidden
	}

	cctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	u, err := s.store.GetByID(cctx, claims.UserID)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Result{}, ErrForbidden
		}

		s.log.ErrorContext(ctx, "user lookup failed", "err", err)
		return Result{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	access, err := s.tokens.IssueAccessToken(u.ID, u.Role)

	if err != nil {
		s.log.ErrorContext(ctx, "access token issue failed", "err", err)
		return Result{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	s.metrics.CountTokenIssued(token.TypeAccess)

	return Result{AccessToken: access}, nil
}

// openSession issues the access/refresh pair for a freshly authenticated
// user.
func (s *Service) openSession(ctx context.Context, u user.User) (Result, error) {
	access, err := s.tokens.IssueAccessToken(u.ID, u.Role)

	if err != nil {
		s.log.ErrorContext(ctx, "access token issue failed", "err", err)
		return Result{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	refresh, err := s.tokens.IssueRefreshToken(u.ID)

	if err != nil {
		s.log.ErrorContext(ctx, "refresh token issue failed", "err", err)
		return Result{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	s.metrics.CountTokenIssued(token.TypeAccess)
	s.metrics.CountTokenIssued(token.TypeRefresh)

	return Result{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: time.Now().UTC().Add(s.tokens.RefreshTTL()),
	}, nil
}

// hashPassword runs bcrypt under the concurrency cap. Acquisition honours
// request cancellation; once hashing starts it runs to completion, a
// half-finished credential is never committed anyway.
func (s *Service) hashPassword(ctx context.Context, plain string) (string, error) {
	start := time.Now()

	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer s.hashSem.Release(1)

	s.metrics.ObserveHashWait(time.Since(start))

	hash, err := security.HashPassword(plain)

	if err != nil {
		s.log.ErrorContext(ctx, "password hash failed", "err", err)
		return "", fmt.Errorf("%w: %v", ErrStore, err)
	}

	return hash, nil
}

func (s *Service) verifyPassword(ctx context.Context, hash, plain string) (bool, error) {
	start := time.Now()

	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer s.hashSem.Release(1)

	s.metrics.ObserveHashWait(time.Since(start))

	return security.VerifyPassword(hash, plain), nil
}
