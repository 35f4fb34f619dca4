package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// UserType distinguishes the two customer populations.
type UserType string

const (
	TypePassenger UserType = "passenger"
	TypeRider     UserType = "rider"
)

// Valid reports whether the user type is known.
func (t UserType) Valid() bool {
	return t == TypePassenger || t == TypeRider
}

var (
	ErrNotFound           = errors.New("account not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrPhoneTaken         = errors.New("phone number already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCodeInvalid        = errors.New("invalid verification code")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrNotActive          = errors.New("account not active")
)

// Account is a registered user. It becomes active once both the phone and
// email are verified.
type Account struct {
	ID            uuid.UUID
	Email         string
	PhoneNumber   string
	FirstName     string
	LastName      string
	UserType      UserType
	PasswordHash  []byte
	PhoneVerified bool
	EmailVerified bool
	Active        bool
	IsStaff       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CodePurpose labels what a verification code proves.
type CodePurpose string

const (
	PurposePhone CodePurpose = "phone"
	PurposeEmail CodePurpose = "email"
)

// VerificationCode is a single-use OTP tied to an account.
type VerificationCode struct {
	AccountID uuid.UUID
	Code      string
	Purpose   CodePurpose
	ExpiresAt time.Time
	Used      bool
}

// Usable reports whether the code can still redeem a verification.
func (c VerificationCode) Usable(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}
