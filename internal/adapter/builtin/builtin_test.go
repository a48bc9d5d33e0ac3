package builtin

import (
	"errors"
	"slices"
	"testing"

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/infrastructure/config"
)

func TestDefaultRegistry_Types(t *testing.T) {
	r, err := DefaultRegistry(adapter.Deps{})
	if err != nil {
		t.Fatalf("DefaultRegistry() error = %v", err)
	}
	want := []string{"homeassistant", "mqtt", "openhab"}
	if got := r.Types(); !slices.Equal(got, want) {
		t.Errorf("Types() = %v, want %v", got, want)
	}
}

func TestDefaultRegistry_Build(t *testing.T) {
	r, err := DefaultRegistry(adapter.Deps{})
	if err != nil {
		t.Fatalf("DefaultRegistry() error = %v", err)
	}

	tests := []struct {
		name    string
		cfg     config.AdapterConfig
		wantErr error
	}{
		{
			name: "openhab",
			cfg: config.AdapterConfig{Name: "oh", Type: "openhab", Prefix: "oh",
				OpenHAB: config.OpenHABConfig{URL: "http://openhab.local:8080"}},
		},
		{
			name: "homeassistant",
			cfg: config.AdapterConfig{Name: "ha", Type: "homeassistant", Prefix: "ha",
				HomeAssistant: config.HomeAssistantConfig{URL: "http://ha.local:8123", Token: "t"}},
		},
		{
			name: "mqtt",
			cfg: config.AdapterConfig{Name: "z2m", Type: "mqtt", Prefix: "z2m",
				MQTT: config.MQTTAdapterConfig{
					MQTTConfig: config.MQTTConfig{Broker: config.MQTTBrokerConfig{Host: "broker.local"}},
					Topic:      "zigbee2mqtt/#",
				}},
		},
		{
			name:    "unknown type",
			cfg:     config.AdapterConfig{Name: "x", Type: "zwave", Prefix: "zw"},
			wantErr: adapter.ErrUnknownType,
		},
		{
			name:    "invalid openhab config",
			cfg:     config.AdapterConfig{Name: "oh", Type: "openhab", Prefix: "oh"},
			wantErr: adapter.ErrInvalidConfig,
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
			defer a.Close()
			if a.Type() != tt.cfg.Type || a.Name() != tt.cfg.Name || a.Prefix() != tt.cfg.Prefix {
				t.Errorf("identity = %s/%s/%s", a.Name(), a.Type(), a.Prefix())
			}
			if a.IsConnected() {
				t.Error("IsConnected() = true before any request")
			}
		})
	}
}
