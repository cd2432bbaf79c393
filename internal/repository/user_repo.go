package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"otp-auth/internal/domain"
)

// UserRepository define el contrato de persistencia para cuentas.
// Las lecturas por defecto excluyen el hash de password y los campos OTP;
// GetByEmailWithSecrets los incluye para los flujos que los necesitan.
// El store debe serializar las operaciones sobre una misma cuenta; el
// servicio no toma locks propios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByEmailWithSecrets(ctx context.Context, email string) (domain.User, error)
	Update(ctx context.Context, user domain.User) error
	Delete(ctx context.Context, id string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, email, name, password_hash, is_verified, otp_code_hash, otp_expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	otpHash, otpExpires := splitOTP(user.Otp)
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.IsVerified,
		otpHash,
		otpExpires,
		user.CreatedAt,
	)
	return err
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `
		SELECT id, email, name, is_verified, created_at
		FROM users
		WHERE email = $1
	`
	var u domain.User
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.IsVerified,
		&u.CreatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *PgUserRepository) GetByEmailWithSecrets(ctx context.Context, email string) (domain.User, error) {
	const query = `
		SELECT id, email, name, password_hash, is_verified, otp_code_hash, otp_expires_at, created_at
		FROM users
		WHERE email = $1
	`
	var (
		u          domain.User
		otpHash    *string
		otpExpires *time.Time
	)
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.IsVerified,
		&otpHash,
		&otpExpires,
		&u.CreatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	if otpHash != nil && otpExpires != nil {
		u.Otp = &domain.PendingOTP{CodeHash: *otpHash, ExpiresAt: *otpExpires}
	}
	return u, nil
}

func (r *PgUserRepository) Update(ctx context.Context, user domain.User) error {
	const query = `
		UPDATE users
		SET name = $2, password_hash = $3, is_verified = $4, otp_code_hash = $5, otp_expires_at = $6
		WHERE id = $1
	`
	otpHash, otpExpires := splitOTP(user.Otp)
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.PasswordHash,
		user.IsVerified,
		otpHash,
		otpExpires,
	)
	return err
}

func (r *PgUserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func splitOTP(otp *domain.PendingOTP) (*string, *time.Time) {
	if otp == nil {
		return nil, nil
	}
	return &otp.CodeHash, &otp.ExpiresAt
}
