package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/googlesamples/android-credentials/internal/models"
	"github.com/googlesamples/android-credentials/internal/phone"
	"github.com/googlesamples/android-credentials/internal/registry"
	"github.com/googlesamples/android-credentials/internal/service"
	"github.com/sirupsen/logrus"
)

type VerifyHandlers struct {
	registry      *registry.Registry
	verifyService *service.VerifyService
	logger        *logrus.Logger
}

func NewVerifyHandlers(
	reg *registry.Registry,
	verifyService *service.VerifyService,
	logger *logrus.Logger,
) *VerifyHandlers {
	return &VerifyHandlers{
		registry:      reg,
		verifyService: verifyService,
		logger:        logger,
	}
}

type verifyPayload struct {
	ClientSecret string `json:"client_secret"`
	Phone        string `json:"phone"`
	SMSMessage   string `json:"sms_message"`
}

type requestOTPResponse struct {
	Success bool `json:"success"`
	Time    int  `json:"time"`
}

type phoneResponse struct {
	Success bool   `json:"success"`
	Phone   string `json:"phone"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
}

// RequestOTP issues (or re-reports) the active code for a phone and sends it
// by SMS.
func (h *VerifyHandlers) RequestOTP(w http.ResponseWriter, r *http.Request) {
	payload, client, ok := h.decodeAndAuthorize(w, r, false)
	if !ok {
		return
	}

	phoneNumber := phone.Normalize(payload.Phone)

	_, window, err := h.verifyService.Request(r.Context(), client, phoneNumber)
	if err != nil {
		h.logger.WithError(err).Error("Failed to request OTP")
		h.respondWithError(w, http.StatusInternalServerError, "Unable to request a verification code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, requestOTPResponse{
		Success: true,
		Time:    window,
	})
}

// VerifyOTP checks a received SMS message against the active code. A failed
// match is a valid negative result, not an error.
func (h *VerifyHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	payload, client, ok := h.decodeAndAuthorize(w, r, true)
	if !ok {
		return
	}

	phoneNumber := phone.Normalize(payload.Phone)

	matched, err := h.verifyService.Verify(r.Context(), client, phoneNumber, payload.SMSMessage)
	if err != nil {
		h.logger.WithError(err).Error("Failed to verify OTP")
		h.respondWithError(w, http.StatusInternalServerError, "Unable to verify the OTP")
		return
	}

	if !matched {
		h.respondWithJSON(w, http.StatusOK, errorResponse{
			Success: false,
			Msg:     "Unable to validate the OTP",
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, phoneResponse{
		Success: true,
		Phone:   phoneNumber,
	})
}

// ResetOTP discards the active code for a phone, reporting whether one
// existed.
func (h *VerifyHandlers) ResetOTP(w http.ResponseWriter, r *http.Request) {
	payload, client, ok := h.decodeAndAuthorize(w, r, false)
	if !ok {
		return
	}

	phoneNumber := phone.Normalize(payload.Phone)

	deleted, err := h.verifyService.Reset(r.Context(), client, phoneNumber)
	if err != nil {
		h.logger.WithError(err).Error("Failed to reset OTP")
		h.respondWithError(w, http.StatusInternalServerError, "Unable to reset the OTP")
		return
	}

	h.respondWithJSON(w, http.StatusOK, phoneResponse{
		Success: deleted,
		Phone:   phoneNumber,
	})
}

// decodeAndAuthorize parses the common payload, enforces required fields and
// resolves the client. It writes the error response itself when ok is false.
func (h *VerifyHandlers) decodeAndAuthorize(
	w http.ResponseWriter,
	r *http.Request,
	needMessage bool,
) (verifyPayload, models.ClientConfig, bool) {
	var payload verifyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Unable to decode request")
		return payload, models.ClientConfig{}, false
	}

	if payload.ClientSecret == "" {
		h.respondWithError(w, http.StatusBadRequest, "Unable to decode client_secret")
		return payload, models.ClientConfig{}, false
	}
	if payload.Phone == "" {
		h.respondWithError(w, http.StatusBadRequest, "Unable to decode phone")
		return payload, models.ClientConfig{}, false
	}
	if needMessage && payload.SMSMessage == "" {
		h.respondWithError(w, http.StatusBadRequest, "Unable to decode sms_message")
		return payload, models.ClientConfig{}, false
	}

	client, err := h.registry.Lookup(payload.ClientSecret)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownClient) {
			h.respondWithError(w, http.StatusUnauthorized, "Unknown client")
			return payload, models.ClientConfig{}, false
		}
		h.logger.WithError(err).Error("Client lookup failed")
		h.respondWithError(w, http.StatusInternalServerError, "Unable to resolve client")
		return payload, models.ClientConfig{}, false
	}

	return payload, client, true
}

func (h *VerifyHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *VerifyHandlers) respondWithError(w http.ResponseWriter, status int, message string) {
	h.respondWithJSON(w, status, errorResponse{
		Success: false,
		Msg:     message,
	})
}
