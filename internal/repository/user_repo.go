package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
)

// UserRepository define el contrato de persistencia para cuentas.
//
// Los métodos Consume* aplican la semántica clear-if-still-matches: limpian el
// par código/expiración y aplican el efecto autorizado en un único UPDATE
// condicional. Devuelven false cuando el código ya no coincide (consumido por
// otra petición concurrente o sobrescrito por una reemisión).
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByMobile(ctx context.Context, mobile string) (domain.User, error)
	GetByAuth(ctx context.Context, provider, subject string) (domain.User, error)
	LinkOAuth(ctx context.Context, id, provider, subject string) error
	UpdateProfile(ctx context.Context, id, name, passwordHash string) error
	SetOTP(ctx context.Context, id, code string, expiresAt time.Time) error
	ConsumeOTPVerify(ctx context.Context, id, code string) (bool, error)
	ConsumeOTPPassword(ctx context.Context, id, code, passwordHash string) (bool, error)
	ConsumeOTP(ctx context.Context, id, code string) (bool, error)
	MarkVerified(ctx context.Context, id string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `
	id, email, mobile, name, password_hash, auth_provider, auth_subject,
	role, verified, active, otp_code, otp_expires_at, created_at, updated_at
`

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		nullIfEmpty(user.Email),
		nullIfEmpty(user.Mobile),
		user.Name,
		user.PasswordHash,
		user.AuthProvider,
		user.AuthSubject,
		user.Role,
		user.Verified,
		user.Active,
		nullIfEmpty(user.OTPCode),
		user.OTPExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(ctx, query, email)
}

func (r *PgUserRepository) GetByMobile(ctx context.Context, mobile string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE mobile = $1`
	return r.scanOne(ctx, query, mobile)
}

func (r *PgUserRepository) GetByAuth(ctx context.Context, provider, subject string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE auth_provider = $1 AND auth_subject = $2`
	return r.scanOne(ctx, query, provider, subject)
}

func (r *PgUserRepository) LinkOAuth(ctx context.Context, id, provider, subject string) error {
	const query = `
		UPDATE users
		SET auth_provider = $2, auth_subject = $3, updated_at = now()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, provider, subject)
	return err
}

func (r *PgUserRepository) UpdateProfile(ctx context.Context, id, name, passwordHash string) error {
	const query = `
		UPDATE users
		SET name = $2, password_hash = $3, updated_at = now()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, name, passwordHash)
	return err
}

func (r *PgUserRepository) SetOTP(ctx context.Context, id, code string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET otp_code = $2, otp_expires_at = $3, updated_at = now()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, code, expiresAt)
	return err
}

func (r *PgUserRepository) ConsumeOTPVerify(ctx context.Context, id, code string) (bool, error) {
	const query = `
		UPDATE users
		SET verified = true, otp_code = NULL, otp_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND otp_code = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgUserRepository) ConsumeOTPPassword(ctx context.Context, id, code, passwordHash string) (bool, error) {
	const query = `
		UPDATE users
		SET password_hash = $3, otp_code = NULL, otp_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND otp_code = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, code, passwordHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgUserRepository) ConsumeOTP(ctx context.Context, id, code string) (bool, error) {
	const query = `
		UPDATE users
		SET otp_code = NULL, otp_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND otp_code = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgUserRepository) MarkVerified(ctx context.Context, id string) error {
	const query = `
		UPDATE users
		SET verified = true, updated_at = now()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgUserRepository) scanOne(ctx context.Context, query string, args ...any) (domain.User, error) {
	var (
		u      domain.User
		email  *string
		mobile *string
		otp    *string
	)
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&email,
		&mobile,
		&u.Name,
		&u.PasswordHash,
		&u.AuthProvider,
		&u.AuthSubject,
		&u.Role,
		&u.Verified,
		&u.Active,
		&otp,
		&u.OTPExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	if email != nil {
		u.Email = *email
	}
	if mobile != nil {
		u.Mobile = *mobile
	}
	if otp != nil {
		u.OTPCode = *otp
	}
	return u, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
