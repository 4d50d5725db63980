package request

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// HostBackoff tracks consecutive failures per elevation host and delays the
// next request to a failing host exponentially. One success forgives one
// failure, so a flaky host recovers gradually.
type HostBackoff struct {
	mu    sync.Mutex
	hosts map[string]hostState
	base  time.Duration
	limit time.Duration

	now    func() time.Time
	jitter func() float64 // in [0,1)
}

type hostState struct {
	failures int
	readyAt  time.Time
}

// NewHostBackoff creates a backoff that starts at base and never exceeds
// limit plus 10% jitter.
func NewHostBackoff(base, limit time.Duration) *HostBackoff {
	return &HostBackoff{
		hosts:  make(map[string]hostState),
		base:   base,
		limit:  limit,
		now:    time.Now,
		jitter: rand.Float64,
	}
}

// Wait blocks until host may be contacted again or ctx ends.
func (b *HostBackoff) Wait(ctx context.Context, host string) error {
	d := b.ReadyAt(host).Sub(b.now())
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fail records a failed request to host.
func (b *HostBackoff) Fail(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.hosts[host]
	st.failures++
	st.readyAt = b.now().Add(b.delay(st.failures))
	b.hosts[host] = st
}

// Succeed forgives one failure for host.
func (b *HostBackoff) Succeed(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.hosts[host]
	if !ok {
		return
	}
	st.failures--
	if st.failures <= 0 {
		delete(b.hosts, host)
		return
	}
	b.hosts[host] = st
}

// Failures returns the outstanding failure count for host.
func (b *HostBackoff) Failures(host string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hosts[host].failures
}

// ReadyAt returns when host may next be contacted. The zero time means now.
func (b *HostBackoff) ReadyAt(host string) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hosts[host].readyAt
}

func (b *HostBackoff) delay(failures int) time.Duration {
	d := b.limit
	if failures <= 32 {
		if shifted := b.base << (failures - 1); shifted > 0 && shifted < d {
			d = shifted
		}
	}
	return d + time.Duration(b.jitter()*0.1*float64(d))
}
