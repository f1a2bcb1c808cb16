package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/googlesamples/android-credentials/internal/config"
	"github.com/googlesamples/android-credentials/internal/models"
	"github.com/googlesamples/android-credentials/internal/repository"
	"github.com/sirupsen/logrus"
)

// addRetries bounds the generate/insert cycle when a racing insert's winner
// expires between our Add and re-Get.
const addRetries = 3

// Dispatcher sends a rendered message to a phone number.
type Dispatcher interface {
	Send(ctx context.Context, to, body string, debug bool) (string, error)
}

// VerifyService drives the OTP lifecycle for a (client, phone) pair. All
// state lives in the store; the service itself is stateless and safe for
// concurrent use.
type VerifyService struct {
	store      repository.OTPStore
	dispatcher Dispatcher
	cfg        *config.OTPConfig
	logger     *logrus.Logger
}

func NewVerifyService(
	store repository.OTPStore,
	dispatcher Dispatcher,
	cfg *config.OTPConfig,
	logger *logrus.Logger,
) *VerifyService {
	return &VerifyService{
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Request returns the active code for the phone, creating and delivering one
// if none exists. Re-requesting while a code is live is idempotent: the same
// code comes back and no new message is sent. When two requests race, the
// loser adopts the winner's code. The returned window is the full configured
// expiry, not a countdown.
func (s *VerifyService) Request(ctx context.Context, client models.ClientConfig, phoneNumber string) (string, int, error) {
	key := s.phoneKey(client, phoneNumber)
	window := int(s.cfg.Expiry.Seconds())

	for attempt := 0; attempt < addRetries; attempt++ {
		code, ok, err := s.store.Get(ctx, key)
		if err != nil {
			return "", 0, err
		}
		if ok {
			s.logger.WithFields(logrus.Fields{
				"client": client.ID,
				"phone":  phoneNumber,
			}).Info("Active code found, not messaging")
			return code, window, nil
		}

		code, err = s.generateOTP(client)
		if err != nil {
			return "", 0, err
		}

		created, err := s.store.Add(ctx, key, code, s.cfg.Expiry)
		if err != nil {
			return "", 0, err
		}
		if !created {
			// Lost the insert race; loop back and adopt the winner's code.
			continue
		}

		sid, err := s.dispatcher.Send(ctx, phoneNumber, s.renderMessage(client, code), client.Debug)
		if err != nil {
			// The stored code stays valid for verification even though the
			// message never went out.
			return "", 0, err
		}

		s.logger.WithFields(logrus.Fields{
			"client":      client.ID,
			"phone":       phoneNumber,
			"message_sid": sid,
		}).Info("Verification code issued")
		return code, window, nil
	}

	return "", 0, fmt.Errorf("%w: no active code after repeated insert races", repository.ErrStoreUnavailable)
}

// Verify reports whether message contains the active code as a standalone
// token. It is non-destructive: a match leaves the record in place, so
// repeated verification succeeds until expiry or reset.
func (s *VerifyService) Verify(ctx context.Context, client models.ClientConfig, phoneNumber, message string) (bool, error) {
	code, ok, err := s.store.Get(ctx, s.phoneKey(client, phoneNumber))
	if err != nil {
		return false, err
	}
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"client": client.ID,
			"phone":  phoneNumber,
		}).Info("Testing unverified phone number")
		return false, nil
	}

	pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(code) + `\b`)
	if err != nil {
		return false, fmt.Errorf("compiling code pattern: %w", err)
	}
	if !pattern.MatchString(message) {
		s.logger.WithFields(logrus.Fields{
			"client": client.ID,
			"phone":  phoneNumber,
		}).Info("Unable to verify presence of code")
		return false, nil
	}

	return true, nil
}

// Reset deletes the active code for the phone, reporting whether one
// existed.
func (s *VerifyService) Reset(ctx context.Context, client models.ClientConfig, phoneNumber string) (bool, error) {
	key := s.phoneKey(client, phoneNumber)

	_, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

func (s *VerifyService) generateOTP(client models.ClientConfig) (string, error) {
	if client.ForceOTP != "" {
		return client.ForceOTP, nil
	}

	otp := ""
	for i := 0; i < s.cfg.Length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate OTP: %w", err)
		}
		otp += num.String()
	}
	return otp, nil
}

func (s *VerifyService) renderMessage(client models.ClientConfig, code string) string {
	return strings.NewReplacer(
		"%(otp)s", code,
		"%(app_hash)s", client.AppHash,
	).Replace(client.SMSTemplate)
}

func (s *VerifyService) phoneKey(client models.ClientConfig, phoneNumber string) string {
	return fmt.Sprintf("%s:phone:%s", client.CachePrefix, phoneNumber)
}
