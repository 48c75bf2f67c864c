package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/common"
)

type memStore struct {
	customers map[string]Customer
	admins    map[string]Admin
	sessions  map[string]Session
	resets    map[string]PasswordReset
}

func newMemStore() *memStore {
	return &memStore{
		customers: make(map[string]Customer),
		admins:    make(map[string]Admin),
		sessions:  make(map[string]Session),
		resets:    make(map[string]PasswordReset),
	}
}

func (m *memStore) CreateCustomer(_ context.Context, name, email, hash string) (Customer, error) {
	if _, ok := m.customers[email]; ok {
		return Customer{}, ErrEmailTaken
	}
	c := Customer{ID: uuid.New(), Email: email, Name: name, PasswordHash: hash, CreatedAt: time.Now()}
	m.customers[email] = c
	return c, nil
}

func (m *memStore) CustomerByEmail(_ context.Context, email string) (Customer, error) {
	c, ok := m.customers[email]
	if !ok {
		return Customer{}, ErrAccountMissing
	}
	return c, nil
}

func (m *memStore) CustomerByID(_ context.Context, id uuid.UUID) (Customer, error) {
	for _, c := range m.customers {
		if c.ID == id {
			return c, nil
		}
	}
	return Customer{}, ErrAccountMissing
}

func (m *memStore) AdminByEmail(_ context.Context, email string) (Admin, error) {
	a, ok := m.admins[email]
	if !ok {
		return Admin{}, ErrAccountMissing
	}
	return a, nil
}

func (m *memStore) CreateSession(_ context.Context, subjectID uuid.UUID, role, hashed, _, _ string, expiresAt time.Time) (Session, error) {
	s := Session{ID: uuid.New(), SubjectID: subjectID, Role: role, ExpiresAt: expiresAt}
	m.sessions[hashed] = s
	return s, nil
}

func (m *memStore) SessionByToken(_ context.Context, hashed string) (Session, error) {
	s, ok := m.sessions[hashed]
	if !ok {
		return Session{}, ErrSessionMissing
	}
	return s, nil
}

func (m *memStore) RotateSession(_ context.Context, id uuid.UUID, hashed string, expiresAt time.Time) error {
	for key, s := range m.sessions {
		if s.ID == id {
			delete(m.sessions, key)
			s.ExpiresAt = expiresAt
			m.sessions[hashed] = s
			return nil
		}
	}
	return ErrSessionMissing
}

func (m *memStore) DeleteSessionByToken(_ context.Context, hashed string) error {
	delete(m.sessions, hashed)
	return nil
}

func (m *memStore) DeleteSessionsBySubject(_ context.Context, subjectID uuid.UUID) error {
	for key, s := range m.sessions {
		if s.SubjectID == subjectID {
			delete(m.sessions, key)
		}
	}
	return nil
}

func (m *memStore) CreatePasswordReset(_ context.Context, customerID uuid.UUID, token string, expiresAt time.Time) error {
	m.resets[token] = PasswordReset{ID: uuid.New(), CustomerID: customerID, Token: token, ExpiresAt: expiresAt}
	return nil
}

func (m *memStore) PasswordResetByToken(_ context.Context, token string) (PasswordReset, error) {
	pr, ok := m.resets[token]
	if !ok {
		return PasswordReset{}, ErrResetMissing
	}
	return pr, nil
}

func (m *memStore) UsePasswordReset(_ context.Context, token string) error {
	pr, ok := m.resets[token]
	if !ok {
		return nil
	}
	pr.Used = true
	m.resets[token] = pr
	return nil
}

func (m *memStore) SetCustomerPassword(_ context.Context, customerID uuid.UUID, hash string) error {
	for email, c := range m.customers {
		if c.ID == customerID {
			c.PasswordHash = hash
			m.customers[email] = c
			return nil
		}
	}
	return ErrAccountMissing
}

func newTestService(t *testing.T, store Storer) *Service {
	t.Helper()
	svc, err := NewService(Config{Store: store, Secret: "test-secret-material"})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)

	c, err := svc.Register(context.Background(), "Bibek", "bibek@example.com", "sekretpass")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if c.Email != "bibek@example.com" {
		t.Fatalf("email = %q", c.Email)
	}

	result, err := svc.Login(context.Background(), "Bibek@Example.com", "sekretpass", "test-agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("empty token material")
	}

	identity, err := svc.ParseAccessToken(result.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if identity.SubjectID != c.ID {
		t.Fatalf("subject = %s, want %s", identity.SubjectID, c.ID)
	}
	if identity.Role != RoleCustomer {
		t.Fatalf("role = %q", identity.Role)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	if _, err := svc.Register(context.Background(), "Bibek", "bibek@example.com", "sekretpass"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Login(context.Background(), "bibek@example.com", "wrong", "", "")
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("got %v, want INVALID_CREDENTIALS", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	if _, err := svc.Register(context.Background(), "Bibek", "bibek@example.com", "sekretpass"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(context.Background(), "Other", "bibek@example.com", "sekretpass")
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "EMAIL_TAKEN" {
		t.Fatalf("got %v, want EMAIL_TAKEN", err)
	}
}

func TestAdminLoginCarriesRole(t *testing.T) {
	store := newMemStore()
	hash, err := argon2id.CreateHash("adminpass1", argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	adminID := uuid.New()
	store.admins["ops@example.com"] = Admin{ID: adminID, Email: "ops@example.com", PasswordHash: hash}
	svc := newTestService(t, store)

	result, err := svc.AdminLogin(context.Background(), "ops@example.com", "adminpass1", "", "")
	if err != nil {
		t.Fatalf("AdminLogin: %v", err)
	}
	identity, err := svc.ParseAccessToken(result.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if identity.Role != RoleAdmin || identity.SubjectID != adminID {
		t.Fatalf("identity = %+v", identity)
	}
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	if _, err := svc.Register(context.Background(), "Bibek", "bibek@example.com", "sekretpass"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	past := time.Now().Add(-2 * time.Hour)
	svc.WithNow(func() time.Time { return past })
	result, err := svc.Login(context.Background(), "bibek@example.com", "sekretpass", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	svc.WithNow(time.Now)

	if _, err := svc.ParseAccessToken(result.AccessToken); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	if _, err := svc.Register(context.Background(), "Bibek", "bibek@example.com", "sekretpass"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	result, err := svc.Login(context.Background(), "bibek@example.com", "sekretpass", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), result.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.RefreshToken == result.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	// The old token is now invalid.
	if _, err := svc.Refresh(context.Background(), result.RefreshToken); err == nil {
		t.Fatal("expected stale refresh token to be rejected")
	}
	// The rotated token still works.
	if _, err := svc.Refresh(context.Background(), refreshed.RefreshToken); err != nil {
		t.Fatalf("rotated token rejected: %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	if _, err := svc.Register(context.Background(), "Bibek", "bibek@example.com", "sekretpass"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	result, err := svc.Login(context.Background(), "bibek@example.com", "sekretpass", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(context.Background(), result.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), result.RefreshToken); err == nil {
		t.Fatal("expected revoked refresh token to be rejected")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	if _, err := svc.Register(context.Background(), "Bibek", "bibek@example.com", "oldpassword"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	initiation, err := svc.InitiatePasswordReset(context.Background(), "bibek@example.com")
	if err != nil {
		t.Fatalf("InitiatePasswordReset: %v", err)
	}
	if initiation.Token == "" {
		t.Fatal("no reset token issued")
	}

	if err := svc.ResetPassword(context.Background(), initiation.Token, "newpassword"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := svc.Login(context.Background(), "bibek@example.com", "oldpassword", "", ""); err == nil {
		t.Fatal("old password still accepted")
	}
	if _, err := svc.Login(context.Background(), "bibek@example.com", "newpassword", "", ""); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	// The token is single use.
	if err := svc.ResetPassword(context.Background(), initiation.Token, "thirdpassword"); err == nil {
		t.Fatal("expected used reset token to be rejected")
	}
}

func TestForgotUnknownEmailIsSilent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	initiation, err := svc.InitiatePasswordReset(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("InitiatePasswordReset: %v", err)
	}
	if initiation.Token != "" {
		t.Fatal("token issued for unknown email")
	}
}

func TestMiddlewareRequireAdmin(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	if _, err := svc.Register(context.Background(), "Bibek", "bibek@example.com", "sekretpass"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	login, err := svc.Login(context.Background(), "bibek@example.com", "sekretpass", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	mw := Middleware{Service: svc}
	handler := mw.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("customer token got %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous got %d, want 401", rec.Code)
	}
}

func TestMiddlewareRequireAuthSetsCustomer(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	c, err := svc.Register(context.Background(), "Bibek", "bibek@example.com", "sekretpass")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	login, err := svc.Login(context.Background(), "bibek@example.com", "sekretpass", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	mw := Middleware{Service: svc}
	var seen string
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = common.CustomerID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	if seen != c.ID.String() {
		t.Fatalf("customer in context = %q, want %s", seen, c.ID)
	}
}
