package outbound

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"homico/internal/config"
)

// HTTPSink posts side effects as JSON to a collaborator service.
type HTTPSink struct {
	baseURL string
	http    *resty.Client
}

// NewHTTPSink builds a sink for baseURL with the configured timeout and retries.
func NewHTTPSink(baseURL string, cfg config.OutboundConfig) *HTTPSink {
	client := resty.New().
		SetTimeout(cfg.Timeout()).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && (r.StatusCode() == 429 || r.StatusCode() >= 500)
		})
	if cfg.APIToken != "" {
		client.SetAuthToken(cfg.APIToken)
	}
	return &HTTPSink{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (s *HTTPSink) post(ctx context.Context, endpoint string, payload any) error {
	url := fmt.Sprintf("%s/%s", s.baseURL, strings.TrimPrefix(endpoint, "/"))
	resp, err := s.http.R().SetContext(ctx).SetBody(payload).Post(url)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("post %s: status %d", endpoint, resp.StatusCode())
	}
	return nil
}

func (s *HTTPSink) Notify(ctx context.Context, n Notification) error {
	return s.post(ctx, "notifications", n)
}

func (s *HTTPSink) NotifyMany(ctx context.Context, userIDs []string, n Notification) error {
	if len(userIDs) == 0 {
		return nil
	}
	return s.post(ctx, "notifications/batch", struct {
		UserIDs []string `json:"user_ids"`
		Notification
	}{UserIDs: userIDs, Notification: n})
}

func (s *HTTPSink) EmitProjectStageUpdate(ctx context.Context, u ProjectUpdate) error {
	return s.post(ctx, "projects/stage", u)
}

func (s *HTTPSink) EmitProjectMessage(ctx context.Context, u ProjectUpdate) error {
	return s.post(ctx, "projects/message", u)
}

func (s *HTTPSink) Send(ctx context.Context, userID, text string) error {
	return s.post(ctx, "sms", map[string]string{"user_id": userID, "text": text})
}

func (s *HTTPSink) CreateFromJob(ctx context.Context, e PortfolioEntry) error {
	return s.post(ctx, "portfolio/from-job", e)
}

// NewSinks wires an HTTP sink for every configured URL and falls back to
// log-only sinks for the rest.
func NewSinks(cfg config.OutboundConfig, logger *slog.Logger) Sinks {
	sinks := LogSinks(logger)
	if cfg.NotifyURL != "" {
		sinks.Notifier = NewHTTPSink(cfg.NotifyURL, cfg)
	}
	if cfg.RealtimeURL != "" {
		sinks.Realtime = NewHTTPSink(cfg.RealtimeURL, cfg)
	}
	if cfg.SMSURL != "" {
		sinks.SMS = NewHTTPSink(cfg.SMSURL, cfg)
	}
	if cfg.PortfolioURL != "" {
		sinks.Portfolio = NewHTTPSink(cfg.PortfolioURL, cfg)
	}
	return sinks
}
