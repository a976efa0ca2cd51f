package otp

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const PurposePhoneVerification = "PHONE_VERIFICATION"

var ErrNotFound = errors.New("otp: no valid code")

// OTP is one issued verification code.
type OTP struct {
	ID         uuid.UUID
	Phone      string
	Code       string
	Purpose    string
	ExpiresAt  time.Time
	IsUsed     bool
	Attempts   int
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// SendResult acknowledges an issued code. Code is only set outside production.
type SendResult struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
	Code      *string   `json:"otp,omitempty"`
}

type SendInput struct {
	Phone string `json:"phone" validate:"required,phone"`
}

type VerifyInput struct {
	Phone string `json:"phone" validate:"required,phone"`
	Code  string `json:"otp" validate:"required,len=6,numeric"`
}
