package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/signalhub/internal/infrastructure/config"
)

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{name: "default", policy: DefaultRetryPolicy()},
		{name: "constant backoff", policy: RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 1}},
		{name: "zero initial", policy: RetryPolicy{MaxDelay: time.Second, BackoffFactor: 2}, wantErr: true},
		{name: "negative initial", policy: RetryPolicy{InitialDelay: -time.Second, MaxDelay: time.Second, BackoffFactor: 2}, wantErr: true},
		{name: "max below initial", policy: RetryPolicy{InitialDelay: 10 * time.Second, MaxDelay: time.Second, BackoffFactor: 2}, wantErr: true},
		{name: "factor below one", policy: RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Minute, BackoffFactor: 0.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRetryPolicy) {
				t.Errorf("Validate() error = %v, want ErrInvalidRetryPolicy", err)
			}
		})
	}
}

func TestRetryPolicy_NextSequence(t *testing.T) {
	p := DefaultRetryPolicy()

	want := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		300 * time.Second, // capped
		300 * time.Second,
	}

	d := p.InitialDelay
	for i, w := range want {
		d = p.Next(d)
		if d != w {
			t.Errorf("step %d: Next() = %v, want %v", i, d, w)
		}
	}
}

func TestRetryPolicy_NextOverflowCaps(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Duration(1<<63 - 1), BackoffFactor: 10}
	if got := p.Next(time.Duration(1 << 62)); got != p.MaxDelay {
		t.Errorf("Next() on overflow = %v, want MaxDelay", got)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{
		InitialRetryDelay:  time.Second,
		MaxRetryDelay:      time.Minute,
		RetryBackoffFactor: 3,
	})
	if p.InitialDelay != time.Second || p.MaxDelay != time.Minute || p.BackoffFactor != 3 {
		t.Errorf("PolicyFromConfig() = %+v", p)
	}
}

func TestPhase_String(t *testing.T) {
	want := []string{"registered", "loading", "connected", "streaming", "retry_wait", "closed"}
	for i, p := range Phases() {
		if p.String() != want[i] {
			t.Errorf("Phase(%d).String() = %q, want %q", p, p.String(), want[i])
		}
	}
	if Phase(99).String() != "unknown" {
		t.Errorf("Phase(99).String() = %q, want unknown", Phase(99).String())
	}
	if !PhaseStreaming.Healthy() || PhaseRetryWait.Healthy() {
		t.Error("Healthy() mismatch")
	}
}
