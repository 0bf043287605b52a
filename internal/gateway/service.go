// AngelaMos | 2026
// service.go

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/carterperez-dev/templates/token-service/internal/core"
	"github.com/carterperez-dev/templates/token-service/internal/identity"
	"github.com/carterperez-dev/templates/token-service/internal/token"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSubjectInactive    = errors.New("subject no longer active")
	ErrTokenReuse         = errors.New("token reuse detected")
)

// Service translates gateway requests into lifecycle-manager calls. It owns
// the policy decisions the manager deliberately leaves open: re-verifying
// the subject on refresh, and treating replay of a rotated token as a
// compromise signal that revokes the subject's entire chain.
type Service struct {
	lifecycle  *token.Lifecycle
	issuer     *token.Issuer
	identities identity.Provider
}

func NewService(
	lifecycle *token.Lifecycle,
	issuer *token.Issuer,
	identities identity.Provider,
) *Service {
	return &Service{
		lifecycle:  lifecycle,
		issuer:     issuer,
		identities: identities,
	}
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
) (*AuthResponse, error) {
	ident, err := s.identities.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // timing attack prevention - always verify to prevent enumeration
			_, _ = core.VerifyPasswordTimingSafe(req.Password, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}

	valid, err := core.VerifyPasswordTimingSafe(req.Password, &ident.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if !valid || !ident.Active {
		return nil, ErrInvalidCredentials
	}

	return s.issueFor(ctx, ident)
}

// Refresh exchanges a presented refresh-token value for a fresh pair. A
// presented value that was already rotated means someone replayed it; the
// losing presenter may be the attacker or the victim, so the safe response
// is to revoke everything the subject holds and force re-authentication.
func (s *Service) Refresh(
	ctx context.Context,
	refreshValue string,
) (*AuthResponse, error) {
	rotated, err := s.lifecycle.Rotate(ctx, refreshValue)
	if err != nil {
		var inactive *token.InactiveError
		if errors.As(err, &inactive) &&
			!inactive.Expired &&
			inactive.Reason == token.ReasonRotated {
			s.revokeChain(ctx, refreshValue)
			return nil, ErrTokenReuse
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	ident, err := s.identities.GetByID(ctx, rotated.SubjectID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.revokeFresh(ctx, rotated.Value)
			return nil, ErrSubjectInactive
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}

	if !ident.Active {
		s.revokeFresh(ctx, rotated.Value)
		return nil, ErrSubjectInactive
	}

	return s.issueForExisting(ident, rotated)
}

// revokeChain handles detected reuse: every token the subject still holds
// is revoked, not just the replayed one.
func (s *Service) revokeChain(ctx context.Context, replayedValue string) {
	replayed, err := s.lifecycle.Lookup(ctx, replayedValue)
	if err != nil {
		slog.Error("reuse detected but chain owner lookup failed", "error", err)
		return
	}

	count, err := s.lifecycle.RevokeAllForSubject(ctx, replayed.SubjectID)
	if err != nil {
		slog.Error("reuse detected but chain revocation failed",
			"subject_id", replayed.SubjectID,
			"error", err,
		)
		return
	}

	slog.Warn("refresh token reuse detected, chain revoked",
		"subject_id", replayed.SubjectID,
		"revoked", count,
	)
}

func (s *Service) revokeFresh(ctx context.Context, value string) {
	if err := s.lifecycle.Revoke(ctx, value, "subject-inactive"); err != nil {
		slog.Error("failed to revoke token of inactive subject", "error", err)
	}
}

func (s *Service) Logout(ctx context.Context, subjectID string) (int64, error) {
	count, err := s.lifecycle.RevokeAllForSubject(ctx, subjectID)
	if err != nil {
		return 0, fmt.Errorf("logout: %w", err)
	}
	return count, nil
}

// RevokeToken revokes a single refresh token after confirming it belongs to
// the calling subject.
func (s *Service) RevokeToken(
	ctx context.Context,
	subjectID, refreshValue string,
) error {
	t, err := s.lifecycle.Lookup(ctx, refreshValue)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	if t.SubjectID != subjectID {
		return fmt.Errorf("revoke token: %w", core.ErrForbidden)
	}

	if err := s.lifecycle.Revoke(ctx, refreshValue, "revoked-by-subject"); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	return nil
}

// RevokeSession revokes one of the caller's active sessions by token ID.
// Scoping the search to the caller's own tokens doubles as the ownership
// check: another subject's session ID is indistinguishable from a missing
// one.
func (s *Service) RevokeSession(
	ctx context.Context,
	subjectID, sessionID string,
) error {
	active, err := s.lifecycle.ActiveForSubject(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	for _, t := range active {
		if t.ID == sessionID {
			if err := s.lifecycle.Revoke(ctx, t.Value, "revoked-by-subject"); err != nil {
				return fmt.Errorf("revoke session: %w", err)
			}
			return nil
		}
	}

	return fmt.Errorf("revoke session: %w", token.ErrNotFound)
}

func (s *Service) Sessions(
	ctx context.Context,
	subjectID string,
) ([]SessionInfo, error) {
	tokens, err := s.lifecycle.ActiveForSubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, SessionInfo{
			ID:        t.ID,
			IssuedAt:  t.IssuedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}

	return sessions, nil
}

func (s *Service) CurrentSubject(
	ctx context.Context,
	subjectID string,
) (*SubjectResponse, error) {
	ident, err := s.identities.GetByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	return &SubjectResponse{
		ID:    ident.ID,
		Email: ident.Email,
		Name:  ident.Name,
	}, nil
}

func (s *Service) issueFor(
	ctx context.Context,
	ident *identity.Identity,
) (*AuthResponse, error) {
	refresh, err := s.lifecycle.CreateForSubject(ctx, ident.ID)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	return s.issueForExisting(ident, refresh)
}

func (s *Service) issueForExisting(
	ident *identity.Identity,
	refresh *token.RefreshToken,
) (*AuthResponse, error) {
	access, err := s.issuer.Issue(token.Identity{
		ID:    ident.ID,
		Email: ident.Email,
		Name:  ident.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	ttl := s.issuer.AccessTokenTTL()

	return &AuthResponse{
		Subject: SubjectResponse{
			ID:    ident.ID,
			Email: ident.Email,
			Name:  ident.Name,
		},
		Tokens: TokenResponse{
			AccessToken:  access,
			RefreshToken: refresh.Value,
			TokenType:    "Bearer",
			ExpiresIn:    int(ttl / time.Second),
			ExpiresAt:    time.Now().Add(ttl),
		},
	}, nil
}
