// internal/writer/builder.go
package writer

import (
	"errors"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	cfg "github.com/tamzrod/ncm-linkd/internal/config"
	wmodbus "github.com/tamzrod/ncm-linkd/internal/writer/modbus"
)

// BuildStatusPlan converts the status mirror config into a StatusPlan.
// A nil config means the mirror is disabled and yields a nil plan.
// Assumes config has already been validated and normalized.
func BuildStatusPlan(c *cfg.StatusMirrorConfig) (*StatusPlan, error) {
	if c == nil {
		return nil, nil
	}
	if c.Endpoint == "" {
		return nil, errors.New("writer: status_mirror.endpoint required")
	}
	return &StatusPlan{
		Endpoint:   c.Endpoint,
		UnitID:     c.UnitID,
		BaseSlot:   c.BaseSlot,
		DeviceName: c.DeviceName,
	}, nil
}

// BuildMirror wires plan, Modbus client and mirror loop. It returns a nil
// Mirror when the mirror is disabled. The returned closer releases the
// TCP connection.
func BuildMirror(c *cfg.StatusMirrorConfig, src Source, clk clock.Clock, log *zap.Logger) (*Mirror, func() error, error) {
	plan, err := BuildStatusPlan(c)
	if err != nil {
		return nil, nil, err
	}
	if plan == nil {
		return nil, func() error { return nil }, nil
	}

	cli, err := wmodbus.NewEndpointClient(wmodbus.Config{
		Endpoint: plan.Endpoint,
		Timeout:  cfg.Millis(c.TimeoutMs),
	})
	if err != nil {
		return nil, nil, err
	}

	sw, _ := NewStatusWriter(plan, cli)
	m, err := NewMirror(sw, src, cfg.Millis(c.IntervalMs), clk, log)
	if err != nil {
		_ = cli.Close()
		return nil, nil, err
	}
	return m, cli.Close, nil
}
