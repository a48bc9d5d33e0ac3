package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/signalhub/internal/infrastructure/config"
	"github.com/nerrad567/signalhub/internal/signal"
)

type stubAdapter struct {
	Identity
}

func (stubAdapter) FetchSignals(context.Context) (map[string]signal.Signal, error) {
	return nil, nil
}
func (stubAdapter) SubscribeEvents(context.Context) (EventStream, error) { return nil, ErrClosed }
func (stubAdapter) IsConnected() bool                                      { return false }
func (stubAdapter) Close() error                                           { return nil }

func stubFactory(cfg config.AdapterConfig, _ Deps) (Adapter, error) {
	if cfg.Prefix == "" {
		return nil, ErrInvalidConfig
	}
	return stubAdapter{Identity: NewIdentity(cfg.Name, cfg.Type, cfg.Prefix)}, nil
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry(Deps{})
	if err := r.Register("stub", stubFactory); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := r.Register("stub", stubFactory)
	if !errors.Is(err, ErrDuplicateType) {
		t.Errorf("Register() duplicate error = %v, want ErrDuplicateType", err)
	}
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	r := NewRegistry(Deps{})
	if err := r.Register("", stubFactory); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Register(\"\") error = %v, want ErrInvalidConfig", err)
	}
	if err := r.Register("x", nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Register(nil) error = %v, want ErrInvalidConfig", err)
	}
}

func TestRegistry_Build(t *testing.T) {
	r := NewRegistry(Deps{})
	if err := r.Register("stub", stubFactory); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name    string
		cfg     config.AdapterConfig
		wantErr error
	}{
		{
			name: "known type",
			cfg:  config.AdapterConfig{Name: "a", Type: "stub", Prefix: "a"},
		},
		{
			name:    "unknown type",
			cfg:     config.AdapterConfig{Name: "b", Type: "zigbee", Prefix: "b"},
			wantErr: ErrUnknownType,
		},
		{
			name:    "factory error wrapped",
			cfg:     config.AdapterConfig{Name: "c", Type: "stub"},
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := r.Build(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if a.Name() != tt.cfg.Name || a.Type() != tt.cfg.Type || a.Prefix() != tt.cfg.Prefix {
				t.Errorf("identity = (%s, %s, %s)", a.Name(), a.Type(), a.Prefix())
			}
		})
	}
}

func TestRegistry_Types(t *testing.T) {
	r := NewRegistry(Deps{})
	_ = r.Register("mqtt", stubFactory)
	_ = r.Register("homeassistant", stubFactory)
	_ = r.Register("openhab", stubFactory)

	got := r.Types()
	want := []string{"homeassistant", "mqtt", "openhab"}
	if len(got) != len(want) {
		t.Fatalf("Types() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIdentity_SignalID(t *testing.T) {
	id := NewIdentity("openhab", "openhab", "oh")
	if got := id.SignalID("Kitchen_Light"); got != "oh:Kitchen_Light" {
		t.Errorf("SignalID() = %q, want oh:Kitchen_Light", got)
	}
}

func TestDeps_Defaults(t *testing.T) {
	d := Deps{}
	if _, ok := d.LoggerOrNoop().(NoopLogger); !ok {
		t.Error("LoggerOrNoop() should return NoopLogger when unset")
	}
	if d.Client() == nil || d.StreamingClient() == nil {
		t.Error("clients should never be nil")
	}
	if d.StreamingClient().Timeout != 0 {
		t.Error("streaming client must not carry an overall timeout")
	}
}
