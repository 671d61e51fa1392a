package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk configuration of the escrow daemon.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	// DBBackend selects the state store: "leveldb" (default) or "memdb".
	DBBackend     string `toml:"DBBackend"`
	Environment   string `toml:"Environment"`
	Deployer      string `toml:"Deployer"`
	DeployerNonce uint64 `toml:"DeployerNonce"`

	Genesis   Genesis   `toml:"genesis"`
	Auth      Auth      `toml:"auth"`
	RateLimit RateLimit `toml:"rate_limit"`
	Telemetry Telemetry `toml:"telemetry"`
	Log       Log       `toml:"log"`
	Indexer   Indexer   `toml:"indexer"`
}

const (
	BackendLevelDB = "leveldb"
	BackendMemDB   = "memdb"

	DefaultDeployer = "0x00000000000000000000000000000000000e5c70"
)

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		DataDir:       "./escrow-data",
		DBBackend:     BackendLevelDB,
		Environment:   "dev",
		Deployer:      DefaultDeployer,
		Auth: Auth{
			Enabled:      true,
			JWTSecretEnv: "ESCROW_JWT_SECRET",
			Issuer:       "splitescrow",
		},
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 40},
		Telemetry: Telemetry{ServiceName: "escrowd", Endpoint: "localhost:4318", Insecure: true, Metrics: true},
		Log:       Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
		Indexer:   Indexer{DSN: "file:escrow-events.db"},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.DBBackend = strings.ToLower(strings.TrimSpace(c.DBBackend))
	if c.DBBackend == "" {
		c.DBBackend = BackendLevelDB
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = "escrowd"
	}
	if c.Genesis.Allocations == nil {
		c.Genesis.Allocations = []Allocation{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	cfg.normalize()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
