package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddr               = ":8080"
	DefaultServerWriteTimeout = 5 * time.Second
	DefaultPingInterval       = 15 * time.Second
	DefaultReadLimit          = 1 << 20 // 1 MiB per frame
	DefaultShutdownTimeout    = 10 * time.Second

	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectGrowth    = 2.0
	DefaultMaxReconnects      = 10
	DefaultPingTimeout        = 60 * time.Second
	DefaultClientWriteTimeout = 5 * time.Second
	DefaultClientBufferSize   = 256

	DefaultArchiveBatchSize     = 500
	DefaultArchiveFlushInterval = 1 * time.Second
	DefaultArchiveBufferSize    = 5000

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2
)

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}
	if c.Server.ReadLimit == 0 {
		c.Server.ReadLimit = DefaultReadLimit
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Client.ReconnectBaseDelay == 0 {
		c.Client.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Client.ReconnectGrowth == 0 {
		c.Client.ReconnectGrowth = DefaultReconnectGrowth
	}
	if c.Client.MaxReconnects == 0 {
		c.Client.MaxReconnects = DefaultMaxReconnects
	}
	if c.Client.PingTimeout == 0 {
		c.Client.PingTimeout = DefaultPingTimeout
	}
	if c.Client.WriteTimeout == 0 {
		c.Client.WriteTimeout = DefaultClientWriteTimeout
	}
	if c.Client.BufferSize == 0 {
		c.Client.BufferSize = DefaultClientBufferSize
	}

	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultArchiveBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultArchiveFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultArchiveBufferSize
	}

	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}
}
