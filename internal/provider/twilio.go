package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTwilioBaseURL is the public Twilio REST endpoint.
const DefaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig holds the credentials and addressing for TwilioSender.
// One of From or MessagingServiceSID must be set.
type TwilioConfig struct {
	AccountSID          string
	AuthToken           string
	From                string
	MessagingServiceSID string
	BaseURL             string
	// StatusCallback is passed with every message so delivery reports
	// reach the webhook.
	StatusCallback string
}

// TwilioSender sends SMS through the Twilio Messages API.
type TwilioSender struct {
	cfg    TwilioConfig
	client *http.Client
	logger zerolog.Logger
}

// NewTwilioSender returns a sender for cfg. httpClient may be nil.
func NewTwilioSender(cfg TwilioConfig, httpClient *http.Client, logger zerolog.Logger) *TwilioSender {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTwilioBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &TwilioSender{cfg: cfg, client: httpClient, logger: logger.With().Str("provider", "twilio").Logger()}
}

// Name implements Sender.
func (s *TwilioSender) Name() string { return "twilio" }

type twilioMessage struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// Send implements Sender. A 2xx answer with a message SID is an acceptance;
// a 4xx/5xx answer is a refusal carrying Twilio's error code. Network and
// deadline errors are returned as errors.
func (s *TwilioSender) Send(ctx context.Context, to, body string) (Result, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("Body", body)
	if s.cfg.MessagingServiceSID != "" {
		form.Set("MessagingServiceSid", s.cfg.MessagingServiceSID)
	} else {
		form.Set("From", s.cfg.From)
	}
	if s.cfg.StatusCallback != "" {
		form.Set("StatusCallback", s.cfg.StatusCallback)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.cfg.BaseURL, url.PathEscape(s.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("build twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)

	resp, err := s.client.Do(req)
	if err != nil {
		// url.Error embeds the endpoint, which carries the account SID
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return Result{}, fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read twilio response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var te twilioError
		res := Result{Accepted: false, Status: "failed", Error: fmt.Sprintf("twilio status %d", resp.StatusCode)}
		if json.Unmarshal(raw, &te) == nil && te.Message != "" {
			res.Error = te.Message
			if te.Code != 0 {
				res.ErrorCode = strconv.Itoa(te.Code)
			}
		}
		s.logger.Warn().Int("status_code", resp.StatusCode).Str("error_code", res.ErrorCode).Msg("twilio refused message")
		return res, nil
	}

	var msg twilioMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.SID == "" {
		return Result{}, fmt.Errorf("unexpected twilio response (status %d)", resp.StatusCode)
	}
	res := Result{ProviderRef: msg.SID, Accepted: true, Status: msg.Status}
	if msg.ErrorCode != nil {
		res.ErrorCode = strconv.Itoa(*msg.ErrorCode)
		res.Error = msg.ErrorMessage
	}
	s.logger.Debug().Str("sid", msg.SID).Str("status", msg.Status).Msg("twilio accepted message")
	return res, nil
}
