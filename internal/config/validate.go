package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}

	if c.Client.ReconnectGrowth < 1 {
		return fmt.Errorf("client.reconnect_growth must be >= 1, got %v", c.Client.ReconnectGrowth)
	}
	if c.Client.MaxReconnects < 0 {
		return fmt.Errorf("client.max_reconnects must be >= 0, got %d", c.Client.MaxReconnects)
	}

	if c.Archive.Enabled {
		if c.Database.Host == "" {
			return errors.New("database.host is required when archive.enabled")
		}
		if c.Database.Name == "" {
			return errors.New("database.name is required when archive.enabled")
		}
		if c.Database.User == "" {
			return errors.New("database.user is required when archive.enabled")
		}
		if c.Archive.BatchSize <= 0 {
			return fmt.Errorf("archive.batch_size must be > 0, got %d", c.Archive.BatchSize)
		}
	}

	return nil
}
