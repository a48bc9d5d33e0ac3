// Package builtin wires the bundled adapter implementations into a registry.
package builtin

import (
	"fmt"

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/adapter/homeassistant"
	"github.com/nerrad567/signalhub/internal/adapter/mqtt"
	"github.com/nerrad567/signalhub/internal/adapter/openhab"
)

// DefaultRegistry returns a registry with the openhab, homeassistant and
// mqtt adapter types registered.
func DefaultRegistry(deps adapter.Deps) (*adapter.Registry, error) {
	r := adapter.NewRegistry(deps)
	factories := map[string]adapter.Factory{
		openhab.Type:       openhab.New,
		homeassistant.Type: homeassistant.New,
		mqtt.Type:          mqtt.New,
	}
	for t, f := range factories {
		if err := r.Register(t, f); err != nil {
			return nil, fmt.Errorf("registering %s adapter: %w", t, err)
		}
	}
	return r, nil
}
