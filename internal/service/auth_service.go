package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"otp-auth/internal/domain"
	"otp-auth/internal/email"
	"otp-auth/internal/repository"
)

var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email not verified")
	ErrAlreadyVerified    = errors.New("user already verified")
	ErrOTPNotRequested    = errors.New("otp not requested")
	ErrOTPInvalid         = errors.New("otp invalid")
	ErrOTPExpired         = errors.New("otp expired")
	ErrEmailSendFailure   = errors.New("email send failed")
)

// AuthService orquesta el ciclo de vida de cuentas: registro con verificacion
// por OTP, login y recuperacion de password. Toda mutacion pasa por el
// repositorio; el envio de correo fallido dispara la compensacion que
// corresponda para que cada operacion sea atomica para el caller.
type AuthService struct {
	logger *zap.Logger
	users  repository.UserRepository
	sender email.Sender
	otp    *OTPGenerator
}

func NewAuthService(logger *zap.Logger, users repository.UserRepository, sender email.Sender, otp *OTPGenerator) *AuthService {
	if otp == nil {
		otp = NewOTPGenerator(defaultOTPLength, defaultOTPValidity)
	}
	return &AuthService{
		logger: logger,
		users:  users,
		sender: sender,
		otp:    otp,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register crea una cuenta sin verificar y envia el OTP de verificacion.
// Si el correo no puede entregarse, la cuenta recien creada se elimina.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	emailAddr := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	password := strings.TrimSpace(input.Password)
	if emailAddr == "" || name == "" || password == "" {
		return domain.User{}, ErrMissingFields
	}

	_, err := s.users.GetByEmail(ctx, emailAddr)
	if err == nil {
		return domain.User{}, ErrUserExists
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	code, err := s.otp.Generate()
	if err != nil {
		return domain.User{}, err
	}
	codeHash, err := hashOTPCode(code)
	if err != nil {
		return domain.User{}, err
	}
	expiresAt := s.otp.ExpiresAt(time.Now().UTC())

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		Name:         name,
		PasswordHash: string(passwordHash),
		IsVerified:   false,
		Otp:          &domain.PendingOTP{CodeHash: codeHash, ExpiresAt: expiresAt},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}

	if sendErr := s.sendOTP(ctx, emailAddr, name, email.PurposeVerification, code, expiresAt); sendErr != nil {
		// Compensacion: o existe una cuenta verificable o no existe ninguna.
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			s.logger.Error("signup rollback failed, account left without delivered otp",
				zap.Error(delErr), zap.String("user_id", user.ID), zap.String("email", emailAddr))
		}
		s.logger.Warn("send verification otp failed", zap.Error(sendErr), zap.String("email", emailAddr))
		return domain.User{}, ErrEmailSendFailure
	}

	return user, nil
}

// VerifyOTP marca la cuenta como verificada si el codigo coincide y no expiro.
// Un codigo incorrecto no altera el estado: el caller puede reintentar hasta
// la expiracion.
func (s *AuthService) VerifyOTP(ctx context.Context, emailAddr, code string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	code = strings.TrimSpace(code)
	if emailAddr == "" || code == "" {
		return domain.User{}, ErrMissingFields
	}

	user, err := s.users.GetByEmailWithSecrets(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	if user.Otp == nil {
		return domain.User{}, ErrOTPNotRequested
	}
	if !s.otp.ValidFormat(code) || !otpCodeMatches(code, user.Otp.CodeHash) {
		return domain.User{}, ErrOTPInvalid
	}
	if time.Now().UTC().After(user.Otp.ExpiresAt) {
		return domain.User{}, ErrOTPExpired
	}

	user.IsVerified = true
	user.Otp = nil
	if err := s.users.Update(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Login autentica email y password. No encontrado y password incorrecto
// devuelven el mismo error para no revelar que cuentas existen.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	password = strings.TrimSpace(password)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrMissingFields
	}

	user, err := s.users.GetByEmailWithSecrets(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if !user.IsVerified {
		return domain.User{}, ErrNotVerified
	}
	if user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ForgotPassword emite un OTP de recuperacion y lo envia por correo.
// Sobrescribe cualquier OTP previo; si el correo falla, los campos OTP
// vuelven a ausente para no dejar un codigo que el usuario nunca recibio.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrMissingFields
	}

	user, err := s.users.GetByEmailWithSecrets(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	code, expiresAt, err := s.issueOTP(ctx, &user)
	if err != nil {
		return err
	}

	if sendErr := s.sendOTP(ctx, emailAddr, user.Name, email.PurposePasswordReset, code, expiresAt); sendErr != nil {
		s.rollbackOTP(ctx, user)
		s.logger.Warn("send password reset otp failed", zap.Error(sendErr), zap.String("email", emailAddr))
		return ErrEmailSendFailure
	}
	return nil
}

// ResetPassword reemplaza el password si el OTP de recuperacion es valido
// y limpia los campos OTP. No emite token: el caller debe hacer login.
func (s *AuthService) ResetPassword(ctx context.Context, emailAddr, code, newPassword string) error {
	emailAddr = normalizeEmail(emailAddr)
	code = strings.TrimSpace(code)
	newPassword = strings.TrimSpace(newPassword)
	if emailAddr == "" || code == "" || newPassword == "" {
		return ErrMissingFields
	}

	user, err := s.users.GetByEmailWithSecrets(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	if user.Otp == nil {
		return ErrOTPNotRequested
	}
	if !s.otp.ValidFormat(code) || !otpCodeMatches(code, user.Otp.CodeHash) {
		return ErrOTPInvalid
	}
	if time.Now().UTC().After(user.Otp.ExpiresAt) {
		return ErrOTPExpired
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(passwordHash)
	user.Otp = nil
	return s.users.Update(ctx, user)
}

// ResendOTP reemplaza el OTP de verificacion de una cuenta sin verificar y lo
// reenvia. Si el correo falla, el OTP vuelve a ausente, igual que en
// ForgotPassword.
func (s *AuthService) ResendOTP(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrMissingFields
	}

	user, err := s.users.GetByEmailWithSecrets(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}

	code, expiresAt, err := s.issueOTP(ctx, &user)
	if err != nil {
		return err
	}

	if sendErr := s.sendOTP(ctx, emailAddr, user.Name, email.PurposeVerification, code, expiresAt); sendErr != nil {
		s.rollbackOTP(ctx, user)
		s.logger.Warn("resend verification otp failed", zap.Error(sendErr), zap.String("email", emailAddr))
		return ErrEmailSendFailure
	}
	return nil
}

// issueOTP genera un codigo nuevo y lo persiste sobre la cuenta,
// sobrescribiendo cualquier OTP previo.
func (s *AuthService) issueOTP(ctx context.Context, user *domain.User) (string, time.Time, error) {
	code, err := s.otp.Generate()
	if err != nil {
		return "", time.Time{}, err
	}
	codeHash, err := hashOTPCode(code)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := s.otp.ExpiresAt(time.Now().UTC())

	user.Otp = &domain.PendingOTP{CodeHash: codeHash, ExpiresAt: expiresAt}
	if err := s.users.Update(ctx, *user); err != nil {
		return "", time.Time{}, err
	}
	return code, expiresAt, nil
}

// rollbackOTP limpia los campos OTP tras un fallo de entrega.
func (s *AuthService) rollbackOTP(ctx context.Context, user domain.User) {
	user.Otp = nil
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Error("otp rollback failed, stale otp left on account",
			zap.Error(err), zap.String("user_id", user.ID), zap.String("email", user.Email))
	}
}

func (s *AuthService) sendOTP(ctx context.Context, toEmail, name string, purpose email.Purpose, code string, expiresAt time.Time) error {
	if s.sender == nil {
		return errors.New("email sender not configured")
	}
	return s.sender.SendOTP(ctx, toEmail, name, purpose, code, expiresAt)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
