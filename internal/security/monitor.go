package security

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"homesentry/internal/alert"
	"homesentry/internal/store"
)

const (
	defaultMaxAttempts  = 5
	defaultResetMinutes = 30

	// staleAfter bounds how long an abandoned attempt series survives in
	// memory before the periodic sweep reclaims it. It is a garbage
	// collection net, not the reset mechanism: the per-record window check
	// in RecordFailure already handles decay.
	staleAfter = 24 * time.Hour
)

// Settings reads operator-tunable limits at evaluation time so changes apply
// without a restart.
type Settings interface {
	SecurityInt(ctx context.Context, key string, def int) int
}

type Alerter interface {
	Raise(ctx context.Context, a alert.Alert)
}

type attempt struct {
	count    int
	firstAt  time.Time
	lastAt   time.Time
	notified bool
}

// Monitor tracks failed door-password attempts per room/device pair and
// raises one critical alert per unbroken series once the limit is crossed.
// It owns its map and lock; nothing else touches this state.
type Monitor struct {
	settings Settings
	alerter  Alerter

	mu       sync.Mutex
	attempts map[string]*attempt
}

func NewMonitor(settings Settings, alerter Alerter) *Monitor {
	return &Monitor{
		settings: settings,
		alerter:  alerter,
		attempts: map[string]*attempt{},
	}
}

func key(room, deviceID string) string { return room + "/" + deviceID }

// RecordFailure registers one FAILED validation result. A gap longer than the
// configured reset window starts a fresh series; otherwise the count grows
// and the threshold is checked. The alert fires exactly once per series.
func (m *Monitor) RecordFailure(ctx context.Context, room, deviceID string, at time.Time) {
	maxAttempts := m.settings.SecurityInt(ctx, store.KeyMaxDoorPasswordAttempts, defaultMaxAttempts)
	resetWindow := time.Duration(m.settings.SecurityInt(ctx, store.KeyPasswordAttemptResetMinutes, defaultResetMinutes)) * time.Minute

	k := key(room, deviceID)

	m.mu.Lock()
	rec, ok := m.attempts[k]
	if !ok || at.Sub(rec.lastAt) > resetWindow {
		rec = &attempt{count: 1, firstAt: at, lastAt: at}
		m.attempts[k] = rec
	} else {
		rec.count++
		rec.lastAt = at
	}
	fire := rec.count >= maxAttempts && !rec.notified
	if fire {
		rec.notified = true
	}
	count := rec.count
	firstAt := rec.firstAt
	lastAt := rec.lastAt
	m.mu.Unlock()

	slog.Debug("password attempt failed", "room", room, "device_id", deviceID, "count", count)

	if !fire {
		return
	}
	m.alerter.Raise(ctx, alert.Alert{
		Type:     store.NotificationSecurityAlert,
		Title:    "Cảnh báo nhập sai mật khẩu",
		Message:  fmt.Sprintf("Đã nhập sai mật khẩu cửa %s %d lần liên tiếp", room, count),
		Severity: store.SeverityCritical,
		Location: room,
		Metadata: map[string]any{
			"deviceId":         deviceID,
			"failedAttempts":   count,
			"firstAttemptTime": firstAt.UTC(),
			"lastAttemptTime":  lastAt.UTC(),
		},
	})
}

// RecordSuccess drops the attempt series: a correct password at any point
// resets the counter.
func (m *Monitor) RecordSuccess(room, deviceID string) {
	m.mu.Lock()
	delete(m.attempts, key(room, deviceID))
	m.mu.Unlock()
}

// Sweep purges series whose first attempt is older than the staleness bound.
// Scheduled every few minutes from main.
func (m *Monitor) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for k, rec := range m.attempts {
		if now.Sub(rec.firstAt) > staleAfter {
			delete(m.attempts, k)
			purged++
		}
	}
	return purged
}
