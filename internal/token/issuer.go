// AngelaMos | 2026
// issuer.go

package token

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/templates/token-service/internal/config"
	"github.com/carterperez-dev/templates/token-service/internal/core"
	"github.com/carterperez-dev/templates/token-service/internal/middleware"
)

// Identity is the verified subject an access token asserts. It is resolved
// by the caller from the external identity store; this package only embeds
// its fields as claims.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// Issuer signs short-lived, self-contained access tokens. It is a pure
// function of identity, clock and signing key: nothing is persisted, and no
// revocation mechanism exists for access tokens. Their short TTL is the sole
// mitigation, which is why refresh-token revocation is the actual trust
// boundary.
type Issuer struct {
	privateKey jwk.Key
	publicKey  jwk.Key
	publicJWKS jwk.Set
	config     config.TokenConfig
}

// NewIssuer loads and validates the signing material. Any missing piece is a
// startup-time fatal condition wrapping core.ErrConfiguration; it must never
// surface as a per-request failure.
func NewIssuer(cfg config.TokenConfig) (*Issuer, error) {
	if cfg.PrivateKeyPath == "" {
		return nil, fmt.Errorf(
			"%w: signing key path is not set",
			core.ErrConfiguration,
		)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf(
			"%w: token issuer and audience are required",
			core.ErrConfiguration,
		)
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf(
			"%w: access token ttl must be positive",
			core.ErrConfiguration,
		)
	}

	privateKeyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read private key: %w", core.ErrConfiguration, err)
	}

	privateKey, err := jwk.ParseKey(privateKeyPEM, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %w", core.ErrConfiguration, err)
	}

	if setErr := privateKey.Set(jwk.AlgorithmKey, jwa.ES256()); setErr != nil {
		return nil, fmt.Errorf("set algorithm: %w", setErr)
	}

	keyID := uuid.New().String()[:8]
	if setErr := privateKey.Set(jwk.KeyIDKey, keyID); setErr != nil {
		return nil, fmt.Errorf("set key id: %w", setErr)
	}

	publicKey, err := privateKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	if setErr := publicKey.Set(jwk.KeyUsageKey, "sig"); setErr != nil {
		return nil, fmt.Errorf("set key usage: %w", setErr)
	}

	publicJWKS := jwk.NewSet()
	if addErr := publicJWKS.AddKey(publicKey); addErr != nil {
		return nil, fmt.Errorf("add key to set: %w", addErr)
	}

	return &Issuer{
		privateKey: privateKey,
		publicKey:  publicKey,
		publicJWKS: publicJWKS,
		config:     cfg,
	}, nil
}

// Issue signs an access token for the identity: sub, name and email claims,
// a fresh jti, issuer, audience, iat = now and exp = now + TTL.
func (i *Issuer) Issue(identity Identity) (string, error) {
	now := time.Now()

	tok, err := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Issuer(i.config.Issuer).
		Audience([]string{i.config.Audience}).
		Subject(identity.ID).
		IssuedAt(now).
		Expiration(now.Add(i.config.AccessTokenTTL)).
		NotBefore(now).
		Claim("name", identity.Name).
		Claim("email", identity.Email).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256(), i.privateKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return string(signed), nil
}

// Verify checks signature, expiry, issuer and audience and returns the
// embedded claims. Used by the gateway's bearer-token middleware.
func (i *Issuer) Verify(
	ctx context.Context,
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	tok, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.ES256(), i.publicKey),
		jwt.WithValidate(true),
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithAudience(i.config.Audience),
	)
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	subject, ok := tok.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf(
			"verify token: missing subject: %w",
			core.ErrTokenInvalid,
		)
	}

	var name string
	//nolint:errcheck // name claim is informational
	_ = tok.Get("name", &name)

	var email string
	//nolint:errcheck // email claim is informational
	_ = tok.Get("email", &email)

	return &middleware.AccessTokenClaims{
		SubjectID: subject,
		Name:      name,
		Email:     email,
	}, nil
}

func isTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "exp") &&
		strings.Contains(errStr, "not satisfied")
}

func (i *Issuer) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")

		if err := json.NewEncoder(w).Encode(i.publicJWKS); err != nil {
			http.Error(
				w,
				"Internal Server Error",
				http.StatusInternalServerError,
			)
			return
		}
	}
}

// AccessTokenTTL exposes the configured lifetime for callers that report
// expiry to clients.
func (i *Issuer) AccessTokenTTL() time.Duration {
	return i.config.AccessTokenTTL
}

func (i *Issuer) KeyID() string {
	var kid string
	//nolint:errcheck // key ID always set during NewIssuer init
	_ = i.privateKey.Get(jwk.KeyIDKey, &kid)
	return kid
}

// GenerateKeyPair writes a fresh ES256 key pair to disk. Intended for local
// development and first-boot provisioning.
func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	jwkPrivate, err := jwk.Import(privateKey)
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}

	keyID := uuid.New().String()[:8]
	if setErr := jwkPrivate.Set(jwk.KeyIDKey, keyID); setErr != nil {
		return fmt.Errorf("set key id: %w", setErr)
	}
	if setErr := jwkPrivate.Set(jwk.AlgorithmKey, jwa.ES256()); setErr != nil {
		return fmt.Errorf("set algorithm: %w", setErr)
	}

	privatePEM, err := jwk.Pem(jwkPrivate)
	if err != nil {
		return fmt.Errorf("encode private key: %w", err)
	}

	if writeErr := os.WriteFile(privateKeyPath, privatePEM, 0o600); writeErr != nil {
		return fmt.Errorf("write private key: %w", writeErr)
	}

	jwkPublic, err := jwkPrivate.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	publicPEM, err := jwk.Pem(jwkPublic)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	//nolint:gosec // G306: public key is intentionally world-readable
	if writeErr := os.WriteFile(publicKeyPath, publicPEM, 0o644); writeErr != nil {
		return fmt.Errorf("write public key: %w", writeErr)
	}

	return nil
}
