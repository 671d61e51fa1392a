package config

// Genesis seeds governance and balances on first start.
type Genesis struct {
	Governance     string       `toml:"Governance"`
	ProtocolFeeBps uint16       `toml:"ProtocolFeeBps"`
	Allocations    []Allocation `toml:"Allocations"`
}

// Allocation credits Amount (base units, decimal) of Currency to Owner. An
// empty currency denotes the native asset.
type Allocation struct {
	Owner    string `toml:"Owner"`
	Currency string `toml:"Currency"`
	Amount   string `toml:"Amount"`
}

// Auth controls how HTTP callers are identified.
type Auth struct {
	Enabled bool `toml:"Enabled"`
	// JWTSecret is read from JWTSecretEnv when empty.
	JWTSecret    string `toml:"JWTSecret"`
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	Issuer       string `toml:"Issuer"`
	// AllowCallerHeader trusts X-Caller when auth is disabled. Never enable it
	// outside local development.
	AllowCallerHeader bool `toml:"AllowCallerHeader"`
}

// RateLimit throttles each client.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// Telemetry wires the OTLP exporters.
type Telemetry struct {
	ServiceName string `toml:"ServiceName"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	// Headers uses the OTEL "key=value,foo=bar" form.
	Headers string `toml:"Headers"`
	Traces  bool   `toml:"Traces"`
	Metrics bool   `toml:"Metrics"`
}

// Log configures the structured logger.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Indexer configures the event archive. DSNs starting with postgres:// or
// postgresql:// select PostgreSQL; anything else is a SQLite path.
type Indexer struct {
	Enabled bool   `toml:"Enabled"`
	DSN     string `toml:"DSN"`
}
