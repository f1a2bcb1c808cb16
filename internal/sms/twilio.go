package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/googlesamples/android-credentials/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	defaultBaseURL = "https://api.twilio.com"
	defaultTimeout = 15 * time.Second
)

// ErrDelivery is returned when the SMS provider rejects a send.
var ErrDelivery = errors.New("sms delivery failed")

// TwilioClient sends messages through the Twilio Messages API.
type TwilioClient struct {
	accountSID string
	authToken  string
	sender     string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewTwilioClient(cfg config.TwilioConfig, logger *logrus.Logger) *TwilioClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &TwilioClient{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		sender:     cfg.Sender,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// Send delivers body to the given phone number and returns the provider
// message SID. With debug set it skips the provider entirely and returns a
// synthetic SID; the suppressed send is still visible in the logs.
func (c *TwilioClient) Send(ctx context.Context, to, body string, debug bool) (string, error) {
	if debug {
		sid := "debug-" + uuid.NewString()
		c.logger.WithFields(logrus.Fields{
			"phone":       to,
			"message_sid": sid,
			"body":        body,
		}).Info("Debug mode, not sending message")
		return sid, nil
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.sender)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Error("SMS provider request failed")
		return "", fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(raw),
		}).Error("SMS provider rejected message")
		return "", fmt.Errorf("%w: provider returned status %d", ErrDelivery, resp.StatusCode)
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decoding provider response: %v", ErrDelivery, err)
	}

	c.logger.WithFields(logrus.Fields{
		"phone":       to,
		"message_sid": result.SID,
	}).Info("Message sent")
	return result.SID, nil
}
