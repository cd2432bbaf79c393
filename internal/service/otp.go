package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	defaultOTPLength   = 6
	defaultOTPValidity = 10 * time.Minute
)

// OTPGenerator produce codigos numericos de un solo uso y su expiracion.
type OTPGenerator struct {
	length   int
	validity time.Duration
}

func NewOTPGenerator(length int, validity time.Duration) *OTPGenerator {
	if length <= 0 {
		length = defaultOTPLength
	}
	if validity <= 0 {
		validity = defaultOTPValidity
	}
	return &OTPGenerator{length: length, validity: validity}
}

// Generate devuelve un codigo numerico sin cero inicial, p.ej. para
// longitud 6 un valor uniforme en [100000, 999999].
func (g *OTPGenerator) Generate() (string, error) {
	low := int64(1)
	for i := 1; i < g.length; i++ {
		low *= 10
	}
	n, err := rand.Int(rand.Reader, big.NewInt(low*9))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(low+n.Int64(), 10), nil
}

// ExpiresAt calcula la expiracion de un codigo emitido en now.
func (g *OTPGenerator) ExpiresAt(now time.Time) time.Time {
	return now.Add(g.validity)
}

// ValidFormat reporta si el codigo tiene la longitud configurada y solo digitos.
func (g *OTPGenerator) ValidFormat(code string) bool {
	if len(code) != g.length {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// hashOTPCode deriva el valor almacenado: sal aleatoria + SHA-256 del codigo.
func hashOTPCode(code string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	hashBytes := sha256.Sum256([]byte(saltStr + ":" + code))
	return saltStr + ":" + base64.StdEncoding.EncodeToString(hashBytes[:]), nil
}

// otpCodeMatches compara en tiempo constante un codigo contra el valor almacenado.
func otpCodeMatches(code, stored string) bool {
	parts := strings.Split(stored, ":")
	if len(parts) != 2 {
		return false
	}
	saltStr := parts[0]
	expectedHash := parts[1]
	hashBytes := sha256.Sum256([]byte(saltStr + ":" + code))
	hash := base64.StdEncoding.EncodeToString(hashBytes[:])
	return subtle.ConstantTimeCompare([]byte(hash), []byte(expectedHash)) == 1
}
