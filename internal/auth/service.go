package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/bibek-sh/backend-pasal/internal/common"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
	defaultResetTTL   = time.Hour

	roleClaim = "role"
)

// Storer is the persistence surface the auth service needs.
type Storer interface {
	CreateCustomer(ctx context.Context, name, email, passwordHash string) (Customer, error)
	CustomerByEmail(ctx context.Context, email string) (Customer, error)
	CustomerByID(ctx context.Context, id uuid.UUID) (Customer, error)
	AdminByEmail(ctx context.Context, email string) (Admin, error)
	CreateSession(ctx context.Context, subjectID uuid.UUID, role, hashedToken, userAgent, ip string, expiresAt time.Time) (Session, error)
	SessionByToken(ctx context.Context, hashedToken string) (Session, error)
	RotateSession(ctx context.Context, id uuid.UUID, hashedToken string, expiresAt time.Time) error
	DeleteSessionByToken(ctx context.Context, hashedToken string) error
	DeleteSessionsBySubject(ctx context.Context, subjectID uuid.UUID) error
	CreatePasswordReset(ctx context.Context, customerID uuid.UUID, token string, expiresAt time.Time) error
	PasswordResetByToken(ctx context.Context, token string) (PasswordReset, error)
	UsePasswordReset(ctx context.Context, token string) error
	SetCustomerPassword(ctx context.Context, customerID uuid.UUID, passwordHash string) error
}

// Service coordinates account registration, login, token issue and refresh.
type Service struct {
	store      Storer
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
	signer     jwa.SignatureAlgorithm
	validator  TokenValidator
	issuer     string
	audience   string
	clockSkew  time.Duration
}

// Config configures the auth service.
type Config struct {
	Store           Storer
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	Issuer          string
	Audience        string
	ClockSkew       time.Duration
}

// Identity is the parsed subject of a validated access token.
type Identity struct {
	SubjectID uuid.UUID
	Role      string
}

// LoginResult bundles token material returned after a successful login.
type LoginResult struct {
	Customer      Customer  `json:"customer"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// AdminLoginResult is the token pair issued to an operator.
type AdminLoginResult struct {
	Admin         Admin     `json:"admin"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// RefreshResult represents the outcome of a refresh operation.
type RefreshResult struct {
	AccessToken   string    `json:"access_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshToken  string    `json:"refresh_token"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// ResetInitiation carries the generated reset token back to the caller
// for delivery.
type ResetInitiation struct {
	Email     string
	Token     string
	ExpiresAt time.Time
}

// NewService constructs a Service with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth: store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	resetTTL := cfg.ResetTokenTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}

	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-pasal"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "pasal-frontend"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		store:      cfg.Store,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
		now:        time.Now,
		signer:     jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates a new customer account.
func (s *Service) Register(ctx context.Context, name, email, password string) (Customer, error) {
	if strings.TrimSpace(name) == "" {
		return Customer{}, common.NewAppError("VALIDATION", "name is required", httpStatusBadRequest, nil)
	}
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" {
		return Customer{}, common.NewAppError("VALIDATION", "email is required", httpStatusBadRequest, nil)
	}
	if len(password) < 8 {
		return Customer{}, common.NewAppError("VALIDATION", "password must be at least 8 characters", httpStatusBadRequest, nil)
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return Customer{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.store.CreateCustomer(ctx, strings.TrimSpace(name), normalized, hash)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return Customer{}, common.NewAppError("EMAIL_TAKEN", "email is already registered", httpStatusConflict, err)
		}
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return created, nil
}

// Login verifies customer credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ip string) (LoginResult, error) {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" || password == "" {
		return LoginResult{}, invalidCredentials(nil)
	}
	c, err := s.store.CustomerByEmail(ctx, normalized)
	if err != nil {
		return LoginResult{}, invalidCredentials(err)
	}
	ok, err := argon2id.ComparePasswordAndHash(password, c.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalidCredentials(err)
	}

	access, accessExp, err := s.signAccessToken(c.ID, RoleCustomer)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshExp, err := s.openSession(ctx, c.ID, RoleCustomer, userAgent, ip)
	if err != nil {
		return LoginResult{}, fmt.Errorf("open session: %w", err)
	}
	return LoginResult{
		Customer:      c,
		AccessToken:   access,
		RefreshToken:  refresh,
		AccessExpiry:  accessExp,
		RefreshExpiry: refreshExp,
	}, nil
}

// AdminLogin verifies operator credentials and issues a token pair
// carrying the admin role.
func (s *Service) AdminLogin(ctx context.Context, email, password, userAgent, ip string) (AdminLoginResult, error) {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" || password == "" {
		return AdminLoginResult{}, invalidCredentials(nil)
	}
	a, err := s.store.AdminByEmail(ctx, normalized)
	if err != nil {
		return AdminLoginResult{}, invalidCredentials(err)
	}
	ok, err := argon2id.ComparePasswordAndHash(password, a.PasswordHash)
	if err != nil || !ok {
		return AdminLoginResult{}, invalidCredentials(err)
	}

	access, accessExp, err := s.signAccessToken(a.ID, RoleAdmin)
	if err != nil {
		return AdminLoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshExp, err := s.openSession(ctx, a.ID, RoleAdmin, userAgent, ip)
	if err != nil {
		return AdminLoginResult{}, fmt.Errorf("open session: %w", err)
	}
	return AdminLoginResult{
		Admin:         a,
		AccessToken:   access,
		RefreshToken:  refresh,
		AccessExpiry:  accessExp,
		RefreshExpiry: refreshExp,
	}, nil
}

// Logout revokes the refresh session.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return nil
	}
	return s.store.DeleteSessionByToken(ctx, hashRefreshToken(token))
}

// Refresh validates and rotates a refresh token, issuing a fresh pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return RefreshResult{}, invalidRefresh(nil)
	}

	hashed := hashRefreshToken(token)
	session, err := s.store.SessionByToken(ctx, hashed)
	if err != nil {
		return RefreshResult{}, invalidRefresh(err)
	}
	if s.now().After(session.ExpiresAt) {
		_ = s.store.DeleteSessionByToken(ctx, hashed)
		return RefreshResult{}, invalidRefresh(nil)
	}

	access, accessExp, err := s.signAccessToken(session.SubjectID, session.Role)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("sign access token: %w", err)
	}
	newToken, newHashed, refreshExp, err := s.newRefreshToken()
	if err != nil {
		return RefreshResult{}, fmt.Errorf("rotate session: %w", err)
	}
	if err := s.store.RotateSession(ctx, session.ID, newHashed, refreshExp); err != nil {
		_ = s.store.DeleteSessionByToken(ctx, hashed)
		return RefreshResult{}, fmt.Errorf("rotate session: %w", err)
	}

	return RefreshResult{
		AccessToken:   access,
		AccessExpiry:  accessExp,
		RefreshToken:  newToken,
		RefreshExpiry: refreshExp,
	}, nil
}

// Me fetches the authenticated customer.
func (s *Service) Me(ctx context.Context, customerID uuid.UUID) (Customer, error) {
	c, err := s.store.CustomerByID(ctx, customerID)
	if err != nil {
		return Customer{}, common.NewAppError("UNAUTHORIZED", "unauthorized", httpStatusUnauthorized, err)
	}
	return c, nil
}

// InitiatePasswordReset creates a single-use reset token for the given
// email. An unknown email yields an empty initiation rather than an
// error, so callers cannot probe registered addresses.
func (s *Service) InitiatePasswordReset(ctx context.Context, email string) (ResetInitiation, error) {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" {
		return ResetInitiation{}, nil
	}
	c, err := s.store.CustomerByEmail(ctx, normalized)
	if err != nil {
		return ResetInitiation{}, nil
	}

	token, err := generateToken(32)
	if err != nil {
		return ResetInitiation{}, fmt.Errorf("generate reset token: %w", err)
	}
	expiresAt := s.now().Add(s.resetTTL)
	if err := s.store.CreatePasswordReset(ctx, c.ID, token, expiresAt); err != nil {
		return ResetInitiation{}, fmt.Errorf("create password reset: %w", err)
	}
	return ResetInitiation{Email: c.Email, Token: token, ExpiresAt: expiresAt}, nil
}

// ResetPassword consumes a reset token and updates the password. All of
// the customer's sessions are revoked.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return common.NewAppError("INVALID_TOKEN", "invalid or expired token", httpStatusBadRequest, nil)
	}
	if len(newPassword) < 8 {
		return common.NewAppError("VALIDATION", "password must be at least 8 characters", httpStatusBadRequest, nil)
	}

	reset, err := s.store.PasswordResetByToken(ctx, trimmed)
	if err != nil {
		return common.NewAppError("INVALID_TOKEN", "invalid or expired token", httpStatusBadRequest, err)
	}
	if reset.Used || s.now().After(reset.ExpiresAt) {
		return common.NewAppError("INVALID_TOKEN", "invalid or expired token", httpStatusBadRequest, nil)
	}

	hash, err := argon2id.CreateHash(newPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.SetCustomerPassword(ctx, reset.CustomerID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.store.UsePasswordReset(ctx, trimmed); err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	if err := s.store.DeleteSessionsBySubject(ctx, reset.CustomerID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// ParseAccessToken validates an access token and returns its identity.
func (s *Service) ParseAccessToken(token string) (Identity, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "missing token", httpStatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}

	subject, err := uuid.Parse(parsed.Subject())
	if err != nil {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", httpStatusUnauthorized, err)
	}
	role := RoleCustomer
	if raw, ok := parsed.Get(roleClaim); ok {
		if r, ok := raw.(string); ok && r != "" {
			role = r
		}
	}
	return Identity{SubjectID: subject, Role: role}, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(subjectID uuid.UUID, role string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(subjectID.String()).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(roleClaim, role)
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func (s *Service) openSession(ctx context.Context, subjectID uuid.UUID, role, userAgent, ip string) (string, time.Time, error) {
	token, hashed, expiresAt, err := s.newRefreshToken()
	if err != nil {
		return "", time.Time{}, err
	}
	if _, err := s.store.CreateSession(ctx, subjectID, role, hashed, userAgent, ip, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *Service) newRefreshToken() (string, string, time.Time, error) {
	token, err := generateToken(48)
	if err != nil {
		return "", "", time.Time{}, err
	}
	expiresAt := s.now().Add(s.refreshTTL)
	return token, hashRefreshToken(token), expiresAt, nil
}

func generateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashRefreshToken(token string) string {
	return common.Sha256Hex(token)
}

func invalidCredentials(err error) error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", httpStatusUnauthorized, err)
}

func invalidRefresh(err error) error {
	return common.NewAppError("UNAUTHORIZED", "invalid refresh token", httpStatusUnauthorized, err)
}

const (
	httpStatusBadRequest   = 400
	httpStatusUnauthorized = 401
	httpStatusConflict     = 409
)
