// Package notify provides notification backends for slipway deployment
// events.
package notify

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/slipway-sh/slipway/internal/logging"
)

// DefaultCooldown is the minimum delay between notifications to the same
// service. Kept small so distinct deployments are not suppressed.
var DefaultCooldown = 100 * time.Millisecond

// Retry settings (tunable in tests)
var (
	maxRetries  = 3
	baseBackoff = 100 * time.Millisecond
	// backoffJitter adds up to this random duration to each backoff
	backoffJitter = 0 * time.Millisecond
)

// sleepHook is used in tests to avoid sleeping for real
var sleepHook = time.Sleep

// Service is the interface all notifiers must implement.
type Service interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// MultiNotifier fans a notification out to all configured services,
// asynchronously, with per-service retries and a cooldown.
type MultiNotifier struct {
	services []Service
	lastSent map[string]time.Time
	cooldown time.Duration
	mu       sync.Mutex
	wg       sync.WaitGroup
}

func NewMultiNotifier() *MultiNotifier {
	return &MultiNotifier{lastSent: make(map[string]time.Time), cooldown: DefaultCooldown}
}

func (m *MultiNotifier) Add(s Service) {
	if s != nil {
		m.services = append(m.services, s)
	}
}

func (m *MultiNotifier) Len() int {
	return len(m.services)
}

// SetCooldown allows tests or callers to adjust the cooldown.
func (m *MultiNotifier) SetCooldown(d time.Duration) {
	m.cooldown = d
}

// Wait blocks until pending sends complete or the context is cancelled.
func (m *MultiNotifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send dispatches the notification to every service in its own goroutine.
func (m *MultiNotifier) Send(ctx context.Context, title, message string) {
	now := time.Now()
	for _, s := range m.services {
		m.wg.Add(1)
		go func(svc Service) {
			defer m.wg.Done()
			name := svc.Name()
			if m.skipDueToCooldown(name, now) {
				logging.Get().Warn().Str("service", name).Msg("skipping notification due to cooldown")
				return
			}
			if err := m.sendWithRetries(ctx, svc, title, message); err != nil {
				logging.Get().Error().Err(err).Str("service", name).Msg("all notification retries failed")
			}
		}(s)
	}
}

func (m *MultiNotifier) skipDueToCooldown(name string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.lastSent[name]
	return ok && now.Sub(last) < m.cooldown
}

func (m *MultiNotifier) sendWithRetries(ctx context.Context, s Service, title, message string) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := s.Send(ctx, title, message)
		if err == nil {
			m.mu.Lock()
			m.lastSent[s.Name()] = time.Now()
			m.mu.Unlock()
			logging.Get().Debug().Str("service", s.Name()).Msg("notification sent")
			return nil
		}
		lastErr = err
		logging.Get().Warn().Err(err).Str("service", s.Name()).Int("attempt", attempt).Msg("notification attempt failed")
		if attempt == maxRetries {
			break
		}
		// context-aware sleep; sleepHook keeps tests fast
		slept := make(chan struct{})
		go func(d time.Duration) {
			sleepHook(d)
			close(slept)
		}(backoffDuration(attempt))
		select {
		case <-slept:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// backoffDuration returns the exponential backoff for the given attempt,
// plus optional jitter.
func backoffDuration(attempt int) time.Duration {
	d := baseBackoff * time.Duration(1<<uint(attempt-1))
	if backoffJitter > 0 {
		if n, err := crand.Int(crand.Reader, big.NewInt(int64(backoffJitter))); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	return d
}

// postJSON is a shared helper used by providers.
func postJSON(ctx context.Context, url string, data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return nil
}
