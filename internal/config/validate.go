package config

import (
	"fmt"
	"strings"

	"github.com/3leaps/spoolwatch/pkg/monitor"
	"github.com/3leaps/spoolwatch/pkg/provider"
)

// Validate rejects values that would fail later in less obvious ways.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch provider.Kind(strings.ToLower(c.Provider.Kind)) {
	case provider.KindFixture, provider.KindCUPS:
	default:
		return fmt.Errorf("provider.kind %q is not one of %s, %s", c.Provider.Kind, provider.KindFixture, provider.KindCUPS)
	}
	if c.Provider.RateLimit < 0 {
		return fmt.Errorf("provider.rate_limit must not be negative")
	}
	if c.Monitor.Interval < 0 {
		return fmt.Errorf("monitor.interval must not be negative")
	}
	if _, err := monitor.ParseReadErrorPolicy(c.Monitor.ReadErrorPolicy); err != nil {
		return fmt.Errorf("monitor.read_error_policy: %w", err)
	}
	return nil
}

// MonitorOptions returns monitor defaults for device.
func (c *Config) MonitorOptions(device string) monitor.Options {
	policy, _ := monitor.ParseReadErrorPolicy(c.Monitor.ReadErrorPolicy)
	return monitor.Options{
		Device:          device,
		Interval:        c.Monitor.Interval,
		StopGrace:       c.Monitor.StopGrace,
		WatchDevice:     c.Monitor.WatchDevice,
		ReadErrorPolicy: policy,
	}
}
