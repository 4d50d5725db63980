package request

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedBackoff(base, limit time.Duration, jitter float64) (*HostBackoff, time.Time) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := NewHostBackoff(base, limit)
	b.now = func() time.Time { return now }
	b.jitter = func() float64 { return jitter }
	return b, now
}

func TestHostBackoff_Delay(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		jitter   float64
		want     time.Duration
	}{
		{"first failure", 1, 0, 500 * time.Millisecond},
		{"doubles", 3, 0, 2 * time.Second},
		{"jitter adds up to a tenth", 2, 0.5, 1050 * time.Millisecond},
		{"capped", 8, 0, 30 * time.Second},
		{"huge count stays capped", 200, 0, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, now := fixedBackoff(500*time.Millisecond, 30*time.Second, tt.jitter)
			for range tt.failures {
				b.Fail("dem.example.org")
			}
			assert.Equal(t, tt.failures, b.Failures("dem.example.org"))
			assert.Equal(t, tt.want, b.ReadyAt("dem.example.org").Sub(now))
		})
	}
}

func TestHostBackoff_Recovery(t *testing.T) {
	b, _ := fixedBackoff(time.Second, time.Minute, 0)
	b.Fail("a")
	b.Fail("a")
	b.Fail("b")

	b.Succeed("a")
	assert.Equal(t, 1, b.Failures("a"))
	assert.Equal(t, 1, b.Failures("b"), "hosts are tracked separately")

	b.Succeed("a")
	assert.Equal(t, 0, b.Failures("a"))
	assert.True(t, b.ReadyAt("a").IsZero())

	b.Succeed("never-failed")
	assert.Equal(t, 0, b.Failures("never-failed"))
}

func TestHostBackoff_Wait(t *testing.T) {
	b := NewHostBackoff(10*time.Second, time.Minute)
	b.Fail("slow")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := b.Wait(ctx, "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, b.Wait(context.Background(), "fast"))
}
