package domain

import "time"

// PendingOTP representa un codigo de un solo uso vigente para una cuenta.
// Un puntero nil en User.Otp significa que no hay flujo de verificacion
// ni de recuperacion en curso.
type PendingOTP struct {
	CodeHash  string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// User es la entidad central de cuentas. El email es la clave, inmutable.
type User struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	Name         string      `json:"name,omitempty"`
	PasswordHash string      `json:"-"`
	IsVerified   bool        `json:"is_verified"`
	Otp          *PendingOTP `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
}
