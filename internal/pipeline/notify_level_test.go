package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/slipway-sh/slipway/internal/notify"
)

type recordingService struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingService) Send(ctx context.Context, title, message string) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil
}

func (r *recordingService) Name() string { return "recording" }

func (r *recordingService) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestNotifyLevelFilter(t *testing.T) {
	cases := []struct {
		name      string
		cfgLevel  string
		sendLevel string
		want      int
	}{
		{"all passes success", "all", "success", 1},
		{"all passes failure", "all", "failure", 1},
		{"failure blocks success", "failure", "success", 0},
		{"failure passes failure", "failure", "failure", 1},
		{"none blocks failure", "none", "failure", 0},
		{"none blocks success", "none", "success", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.NotificationLevel = tc.cfgLevel
			p := &Pipeline{cfg: cfg, notifier: notify.NewMultiNotifier()}
			svc := &recordingService{}
			p.notifier.Add(svc)
			p.notifier.SetCooldown(0)

			p.notify(context.Background(), tc.sendLevel, "T", "M")

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := p.notifier.Wait(ctx); err != nil {
				t.Fatalf("wait failed: %v", err)
			}
			if svc.count() != tc.want {
				t.Fatalf("expected %d sends, got %d", tc.want, svc.count())
			}
		})
	}
}
