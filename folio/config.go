package folio

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/foliodb/foliodb/redis/wire"
)

// Defaults applied by Open when the config leaves them zero.
const (
	DefaultEndpoint       = "redis://localhost:6379/0"
	DefaultPoolSize       = 3
	DefaultConnectTimeout = 5 * time.Second
	DefaultReceiveTimeout = 30 * time.Second
	DefaultReadLimit      = 10000
)

// Config carries the options accepted by Open.
type Config struct {
	// Name is a diagnostic label for the store.
	Name string

	// Dir is the directory for auxiliary files. Unused by the core engine.
	Dir string

	// Endpoint is the store URI: scheme://[:password@]host:port[/db].
	// Only path position 0 is consulted as the optional numeric namespace
	// index; non-numeric path components are ignored.
	Endpoint string

	// PoolSize bounds the connection pool (default 3).
	PoolSize int

	// ConnectTimeout bounds the TCP connect (default 5s).
	ConnectTimeout time.Duration

	// ReceiveTimeout bounds every blocking reply read (default 30s).
	ReceiveTimeout time.Duration

	// IDPrefix, when set, absolutizes relative refs before interning.
	IDPrefix string

	// LogLevel configures the engine loggers (debug, info, warn, error).
	LogLevel string

	// Hooks are the host-supplied pipeline callbacks.
	Hooks Hooks
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "folio"
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
	return c
}

// parseEndpoint splits the store URI into the dial address and session
// options.
func parseEndpoint(endpoint string, c Config) (addr string, cfg wire.DialConfig, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", cfg, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", cfg, fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}

	cfg = wire.DialConfig{
		ConnectTimeout: c.ConnectTimeout,
		ReceiveTimeout: c.ReceiveTimeout,
	}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			cfg.Password = pw
		}
	}
	if parts := strings.Split(strings.TrimPrefix(u.Path, "/"), "/"); len(parts) > 0 {
		if db, err := strconv.Atoi(parts[0]); err == nil && db > 0 {
			cfg.DB = db
		}
	}
	return u.Host, cfg, nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-18s: %s\n", name, value))
	}

	addSection("Store")
	addField("Name", c.Name)
	addField("Directory", c.Dir)
	addField("ID Prefix", c.IDPrefix)

	addSection("Connection")
	addField("Endpoint", c.Endpoint)
	addField("Pool Size", strconv.Itoa(c.PoolSize))
	addField("Connect Timeout", c.ConnectTimeout.String())
	addField("Receive Timeout", c.ReceiveTimeout.String())

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
