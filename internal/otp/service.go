// Package otp issues and checks phone verification codes.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/audit"
	"github.com/citywatch/api/internal/util"
)

type Store interface {
	CountSince(ctx context.Context, phone string, since time.Time) (int, error)
	Issue(ctx context.Context, o OTP) error
	FindValid(ctx context.Context, phone, code string, now time.Time) (OTP, error)
	RecordFailedAttempt(ctx context.Context, phone string) error
	Consume(ctx context.Context, id uuid.UUID, phone string, at time.Time, entry func(userID uuid.UUID) audit.Entry) error
}

type UserLookup interface {
	PhoneExists(ctx context.Context, phone string) (bool, error)
}

type Config struct {
	Expiry     time.Duration
	MaxPerHour int
	// ExposeCode echoes the code in the acknowledgement for non-production use.
	ExposeCode bool
}

const sendWindow = 60 * time.Minute

type Service struct {
	store   Store
	users   UserLookup
	sender  Sender
	cfg     Config
	logger  zerolog.Logger
	newCode func() (string, error)
}

func NewService(store Store, users UserLookup, sender Sender, cfg Config, logger zerolog.Logger) *Service {
	return &Service{store: store, users: users, sender: sender, cfg: cfg, logger: logger, newCode: randomCode}
}

// Send issues a fresh code for a registered phone.
func (s *Service) Send(ctx context.Context, in SendInput) (SendResult, error) {
	if err := util.ValidateStruct(in); err != nil {
		return SendResult{}, err
	}

	exists, err := s.users.PhoneExists(ctx, in.Phone)
	if err != nil {
		return SendResult{}, err
	}
	if !exists {
		return SendResult{}, apperr.NotFound("No account registered with this phone number")
	}

	now := util.Now()
	sent, err := s.store.CountSince(ctx, in.Phone, now.Add(-sendWindow))
	if err != nil {
		return SendResult{}, err
	}
	if sent >= s.cfg.MaxPerHour {
		s.logger.Warn().Str("phone", maskPhone(in.Phone)).Int("sent", sent).Msg("otp send limit reached")
		return SendResult{}, apperr.RateLimited("Too many OTP requests, try again later")
	}

	code, err := s.newCode()
	if err != nil {
		return SendResult{}, fmt.Errorf("otp: generate: %w", err)
	}
	o := OTP{
		Phone:     in.Phone,
		Code:      code,
		Purpose:   PurposePhoneVerification,
		ExpiresAt: now.Add(s.cfg.Expiry),
		CreatedAt: now,
	}
	if err := s.store.Issue(ctx, o); err != nil {
		return SendResult{}, fmt.Errorf("otp: store: %w", err)
	}
	if err := s.sender.Send(ctx, in.Phone, code); err != nil {
		s.logger.Error().Err(err).Str("phone", maskPhone(in.Phone)).Msg("otp delivery failed")
		return SendResult{}, fmt.Errorf("otp: deliver: %w", err)
	}

	res := SendResult{Message: "OTP sent successfully", ExpiresAt: o.ExpiresAt}
	if s.cfg.ExposeCode {
		res.Code = &code
	}
	return res, nil
}

// Resend shares the Send budget.
func (s *Service) Resend(ctx context.Context, in SendInput) (SendResult, error) {
	return s.Send(ctx, in)
}

func (s *Service) Verify(ctx context.Context, in VerifyInput) error {
	if err := util.ValidateStruct(in); err != nil {
		return err
	}

	now := util.Now()
	o, err := s.store.FindValid(ctx, in.Phone, in.Code, now)
	if errors.Is(err, ErrNotFound) {
		if err := s.store.RecordFailedAttempt(ctx, in.Phone); err != nil {
			s.logger.Error().Err(err).Msg("otp: record failed attempt")
		}
		return apperr.New(apperr.KindInvalidOrExpired, "OTP_INVALID", "Invalid or expired OTP")
	}
	if err != nil {
		return err
	}

	err = s.store.Consume(ctx, o.ID, in.Phone, now, func(userID uuid.UUID) audit.Entry {
		return audit.NewEntry(ctx, &userID, "", audit.ActionPhoneVerified, audit.EntityUser, userID.String())
	})
	if errors.Is(err, ErrNotFound) {
		return apperr.New(apperr.KindInvalidOrExpired, "OTP_INVALID", "Invalid or expired OTP")
	}
	return err
}

var codeSpan = big.NewInt(900000)

// randomCode returns a uniformly random code in 100000..999999.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
