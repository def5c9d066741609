package pgclient

import "time"

// Default connection values, applied by Config.withDefaults. They exist as
// constants rather than mutable package state so that two connections can
// never observe different defaults.
const (
	DefaultHost               = "localhost"
	DefaultPort               = 5432
	DefaultUser               = "postgres"
	DefaultConnectTimeout     = 10 * time.Second
	DefaultStatementCacheSize = 64
)

// Config carries everything needed to establish a session. The zero value is
// usable: every unset field falls back to the documented default.
type Config struct {
	// Host is the backend host name or address. Default: localhost.
	Host string

	// Port is the backend port. Default: 5432.
	Port int

	// User is the name the session authenticates as. Default: postgres.
	User string

	// Password answers cleartext or md5 authentication requests. No default.
	Password string

	// Database is the database to attach to. Default: same as User.
	Database string

	// ConnectTimeout bounds dialing the backend. Default: 10s.
	ConnectTimeout time.Duration

	// StatementCacheSize is the number of parameterized queries whose
	// prepared statements are kept alive on the backend for reuse, keyed by
	// a digest of the SQL text. Zero means the default; negative disables
	// caching so every parameterized query parses, runs and closes its own
	// statement. Default: 64.
	StatementCacheSize int

	// SilenceUnknownTypes suppresses the one-time warning logged when a
	// column's type OID has no registered decoding and its raw bytes are
	// surfaced as a string instead.
	SilenceUnknownTypes bool

	// ExtraStartupParams is sent verbatim inside the startup message on top
	// of user and database, e.g. application_name or client_encoding.
	ExtraStartupParams map[string]string
}

// withDefaults returns a copy of the config with every unset field replaced
// by its default.
func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.Database == "" {
		c.Database = c.User
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.StatementCacheSize == 0 {
		c.StatementCacheSize = DefaultStatementCacheSize
	} else if c.StatementCacheSize < 0 {
		c.StatementCacheSize = 0
	}
	return c
}

// startupArgs assembles the key/value arguments of the startup message.
func (c *Config) startupArgs() map[string]string {
	args := make(map[string]string, len(c.ExtraStartupParams)+2)
	for k, v := range c.ExtraStartupParams {
		args[k] = v
	}
	args["user"] = c.User
	args["database"] = c.Database
	return args
}
