package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/turioshq/gateway/internal/config"
	paymentdomain "github.com/turioshq/gateway/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

// Service creates hosted checkout sessions at the payment provider.
type Service struct {
	apiKey     string
	baseURL    string
	successURL string
	cancelURL  string
	client     *http.Client
	log        *zap.Logger
	entropy    io.Reader
}

func NewService(p Params) *Service {
	return &Service{
		apiKey:     strings.TrimSpace(p.Cfg.Payment.APIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(p.Cfg.Payment.APIBaseURL), "/"),
		successURL: strings.TrimSpace(p.Cfg.Payment.SuccessURL),
		cancelURL:  strings.TrimSpace(p.Cfg.Payment.CancelURL),
		client:     &http.Client{Timeout: 15 * time.Second},
		log:        p.Log.Named("payment.checkout"),
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

type CreateSessionRequest struct {
	AccountID snowflake.ID
	PriceID   string
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type providerSession struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreateSession opens a hosted payment page for the account. The account
// id travels in the session metadata so the completion webhook can route
// the top-up back.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	if req.AccountID == 0 {
		return nil, paymentdomain.ErrInvalidAccount
	}
	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" {
		return nil, paymentdomain.ErrInvalidPrice
	}
	if s.apiKey == "" || s.baseURL == "" {
		return nil, paymentdomain.ErrCheckoutUnavailable
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[account_id]", req.AccountID.String())
	if s.successURL != "" {
		form.Set("success_url", s.successURL)
	}
	if s.cancelURL != "" {
		form.Set("cancel_url", s.cancelURL)
	}

	endpoint := s.baseURL + "/v1/checkout/sessions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Idempotency-Key", ulid.MustNew(ulid.Timestamp(time.Now().UTC()), s.entropy).String())

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var session providerSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, paymentdomain.ErrCheckoutUnavailable
	}
	if resp.StatusCode >= http.StatusBadRequest {
		message := "provider_error"
		if session.Error != nil && session.Error.Message != "" {
			message = session.Error.Message
		}
		s.log.Warn("checkout session creation rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("message", message),
		)
		return nil, fmt.Errorf("checkout session failed: %s", message)
	}
	if session.ID == "" || session.URL == "" {
		return nil, paymentdomain.ErrCheckoutUnavailable
	}

	return &Session{ID: session.ID, URL: session.URL}, nil
}
