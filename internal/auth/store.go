package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/db"
)

// Roles carried in the JWT and on sessions.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

var (
	ErrEmailTaken     = errors.New("auth: email already registered")
	ErrAccountMissing = errors.New("auth: account not found")
	ErrSessionMissing = errors.New("auth: session not found")
	ErrResetMissing   = errors.New("auth: reset token not found")
)

// Customer is the account view the auth package works with.
type Customer struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Admin is an operator account.
type Admin struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is a stored refresh-token session for either role.
type Session struct {
	ID        uuid.UUID
	SubjectID uuid.UUID
	Role      string
	ExpiresAt time.Time
}

// PasswordReset is a single-use password reset token.
type PasswordReset struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Token      string
	ExpiresAt  time.Time
	Used       bool
}

// Store persists accounts, sessions, and reset tokens.
type Store struct {
	DB db.DBTX
}

func (s *Store) CreateCustomer(ctx context.Context, name, email, passwordHash string) (Customer, error) {
	var c Customer
	err := s.DB.QueryRow(ctx, `
		INSERT INTO customers (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, name, password_hash, created_at`,
		name, email, passwordHash,
	).Scan(&c.ID, &c.Email, &c.Name, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Customer{}, ErrEmailTaken
		}
		return Customer{}, err
	}
	return c, nil
}

func (s *Store) CustomerByEmail(ctx context.Context, email string) (Customer, error) {
	var c Customer
	err := s.DB.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM customers WHERE email = $1`, email,
	).Scan(&c.ID, &c.Email, &c.Name, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return Customer{}, ErrAccountMissing
		}
		return Customer{}, err
	}
	return c, nil
}

func (s *Store) CustomerByID(ctx context.Context, id uuid.UUID) (Customer, error) {
	var c Customer
	err := s.DB.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Email, &c.Name, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return Customer{}, ErrAccountMissing
		}
		return Customer{}, err
	}
	return c, nil
}

func (s *Store) AdminByEmail(ctx context.Context, email string) (Admin, error) {
	var a Admin
	err := s.DB.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at
		FROM admins WHERE email = $1`, email,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return Admin{}, ErrAccountMissing
		}
		return Admin{}, err
	}
	return a, nil
}

func (s *Store) CreateAdmin(ctx context.Context, email, passwordHash string) (Admin, error) {
	var a Admin
	err := s.DB.QueryRow(ctx, `
		INSERT INTO admins (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, email, password_hash, created_at`,
		email, passwordHash,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Admin{}, ErrEmailTaken
		}
		return Admin{}, err
	}
	return a, nil
}

func (s *Store) CreateSession(ctx context.Context, subjectID uuid.UUID, role, hashedToken, userAgent, ip string, expiresAt time.Time) (Session, error) {
	var sess Session
	err := s.DB.QueryRow(ctx, `
		INSERT INTO sessions (subject_id, subject_role, refresh_token, user_agent, ip, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		RETURNING id, subject_id, subject_role, expires_at`,
		subjectID, role, hashedToken, userAgent, ip, expiresAt,
	).Scan(&sess.ID, &sess.SubjectID, &sess.Role, &sess.ExpiresAt)
	return sess, err
}

func (s *Store) SessionByToken(ctx context.Context, hashedToken string) (Session, error) {
	var sess Session
	err := s.DB.QueryRow(ctx, `
		SELECT id, subject_id, subject_role, expires_at
		FROM sessions WHERE refresh_token = $1`, hashedToken,
	).Scan(&sess.ID, &sess.SubjectID, &sess.Role, &sess.ExpiresAt)
	if err != nil {
		if db.IsNoRows(err) {
			return Session{}, ErrSessionMissing
		}
		return Session{}, err
	}
	return sess, nil
}

func (s *Store) RotateSession(ctx context.Context, id uuid.UUID, hashedToken string, expiresAt time.Time) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE sessions SET refresh_token = $2, expires_at = $3 WHERE id = $1`,
		id, hashedToken, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionMissing
	}
	return nil
}

func (s *Store) DeleteSessionByToken(ctx context.Context, hashedToken string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM sessions WHERE refresh_token = $1`, hashedToken)
	return err
}

func (s *Store) DeleteSessionsBySubject(ctx context.Context, subjectID uuid.UUID) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM sessions WHERE subject_id = $1`, subjectID)
	return err
}

func (s *Store) CreatePasswordReset(ctx context.Context, customerID uuid.UUID, token string, expiresAt time.Time) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO password_resets (customer_id, token, expires_at)
		VALUES ($1, $2, $3)`,
		customerID, token, expiresAt)
	return err
}

func (s *Store) PasswordResetByToken(ctx context.Context, token string) (PasswordReset, error) {
	var pr PasswordReset
	err := s.DB.QueryRow(ctx, `
		SELECT id, customer_id, token, expires_at, used_at IS NOT NULL
		FROM password_resets WHERE token = $1`, token,
	).Scan(&pr.ID, &pr.CustomerID, &pr.Token, &pr.ExpiresAt, &pr.Used)
	if err != nil {
		if db.IsNoRows(err) {
			return PasswordReset{}, ErrResetMissing
		}
		return PasswordReset{}, err
	}
	return pr, nil
}

func (s *Store) UsePasswordReset(ctx context.Context, token string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE password_resets SET used_at = now() WHERE token = $1 AND used_at IS NULL`, token)
	return err
}

func (s *Store) SetCustomerPassword(ctx context.Context, customerID uuid.UUID, passwordHash string) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE customers SET password_hash = $2, updated_at = now() WHERE id = $1`,
		customerID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountMissing
	}
	return nil
}
