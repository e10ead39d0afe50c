// Package leads пересылает данные регистрации во внешний webhook (CRM).
package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Dhoini/checkout-service/pkg/logger"
)

// Lead - данные регистрации. Пароль сюда не попадает никогда.
type Lead struct {
	Email       string    `json:"email"`
	FullName    string    `json:"fullName"`
	CompanyName string    `json:"companyName"`
	PhoneNumber string    `json:"phoneNumber"`
	PlanName    string    `json:"planName"`
	PriceID     string    `json:"priceId"`
	Timestamp   time.Time `json:"timestamp"`
	UserAgent   string    `json:"userAgent"`
	IPAddress   string    `json:"ipAddress"`
	Platform    string    `json:"platform"`
	Source      string    `json:"source"`
}

// Forwarder отправляет лиды асинхронно. Ошибки только логируются.
type Forwarder struct {
	url     string
	source  string
	timeout time.Duration
	client  *http.Client
	log     *logger.Logger
	wg      sync.WaitGroup
}

// NewForwarder создает Forwarder. Пустой url отключает отправку.
func NewForwarder(url, source string, timeout time.Duration, log *logger.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Forwarder{
		url:     url,
		source:  source,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Enabled сообщает, настроен ли URL.
func (f *Forwarder) Enabled() bool {
	return f != nil && f.url != ""
}

// Forward ставит отправку в фон и сразу возвращает управление.
func (f *Forwarder) Forward(ctx context.Context, lead Lead) {
	if !f.Enabled() {
		return
	}

	if lead.Platform == "" {
		lead.Platform = "web"
	}
	if lead.Source == "" {
		lead.Source = f.source
	}
	if lead.Timestamp.IsZero() {
		lead.Timestamp = time.Now().UTC()
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()

		if err := f.send(sendCtx, lead); err != nil {
			f.log.Warnw("Failed to forward lead", "error", err)
			return
		}
		f.log.Infow("Lead forwarded", "planName", lead.PlanName)
	}()
}

// Wait дожидается завершения отправок в полете (graceful shutdown).
func (f *Forwarder) Wait() {
	if f != nil {
		f.wg.Wait()
	}
}

func (f *Forwarder) send(ctx context.Context, lead Lead) error {
	payload, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("leads: failed to encode lead: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("leads: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "checkout-service/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("leads: request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("leads: webhook responded with status %d", resp.StatusCode)
	}
	return nil
}
