package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SMSSender envia códigos de verificación via un gateway SMS HTTP.
type SMSSender struct {
	apiURL     string
	apiKey     string
	sender     string
	dryRun     bool
	httpClient *http.Client
	logger     *zap.Logger
}

type smsGatewayResponse struct {
	Code int `json:"code"`
	Data struct {
		MessageID string `json:"messageId"`
	} `json:"data"`
}

func NewSMSSender(apiURL, apiKey, sender string, dryRun bool, logger *zap.Logger) (*SMSSender, error) {
	if !dryRun && strings.TrimSpace(apiURL) == "" {
		return nil, fmt.Errorf("sms api url is required")
	}
	if !dryRun && strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("sms api key is required")
	}
	return &SMSSender{
		apiURL: apiURL,
		apiKey: apiKey,
		sender: sender,
		dryRun: dryRun,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}, nil
}

func (s *SMSSender) SendOTP(ctx context.Context, toMobile string, code string, expiresAt time.Time) error {
	if strings.TrimSpace(toMobile) == "" {
		return fmt.Errorf("to mobile is required")
	}

	text := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(time.Until(expiresAt).Minutes())+1)

	if s.dryRun {
		if s.logger != nil {
			s.logger.Info("sms dry-run", zap.String("to", toMobile))
		}
		return nil
	}

	form := url.Values{
		"apiKey":    {s.apiKey},
		"recipient": {toMobile},
		"text":      {text},
	}
	if s.sender != "" {
		form.Set("from", s.sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send sms request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var result smsGatewayResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parse sms response: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("sms gateway returned error code: %d", result.Code)
	}
	return nil
}
