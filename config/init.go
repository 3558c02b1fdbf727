package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	yaml "gopkg.in/yaml.v2"
)

// reading config error is fatal, and exists main thread
func processError(err error) {
	fmt.Println(err)
	os.Exit(2)
}

func readFile(cfg *Configuration, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		// environment alone is enough to run
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func readEnv(cfg *Configuration) error {
	return envconfig.Process("", cfg)
}

func applyDefaults(cfg *Configuration) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RegistryBackend == "" {
		cfg.Server.RegistryBackend = "memory"
	}
	if len(cfg.EVM.Providers) == 0 {
		cfg.EVM.Providers = append([]string(nil), SepoliaProviders...)
	}
	if cfg.EVM.ReceiptTimeout <= 0 {
		cfg.EVM.ReceiptTimeout = DefaultReceiptTimeout
	}
	if cfg.Timeouts.Ledger <= 0 {
		cfg.Timeouts.Ledger = DefaultLedgerTimeout
	}
	if cfg.Timeouts.Minter <= 0 {
		cfg.Timeouts.Minter = DefaultMinterTimeout
	}
	if cfg.Auth.MaxSkew <= 0 {
		cfg.Auth.MaxSkew = DefaultMaxSkew
	}
	if cfg.Reconcile.Interval <= 0 {
		cfg.Reconcile.Interval = DefaultReconcile
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func validate(cfg *Configuration) error {
	if len(cfg.EVM.Providers) < MinProviders {
		return fmt.Errorf("at least %d EVM providers are required, got %d", MinProviders, len(cfg.EVM.Providers))
	}
	switch cfg.Server.RegistryBackend {
	case "memory", "redis":
	case "postgres":
		if cfg.Server.PostgresDSN == "" {
			return errors.New("postgres registry backend needs postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown registry backend %q", cfg.Server.RegistryBackend)
	}
	return nil
}

// Load reads the yaml file at path, overrides it from the environment and
// fills in defaults.
func Load(path string) (Configuration, error) {
	var cfg Configuration
	if err := readFile(&cfg, path); err != nil {
		return cfg, err
	}
	if err := readEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func Init() {
	path := "config.yml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		path = p
	}
	cfg, err := Load(path)
	if err != nil {
		processError(err)
	}
	Config = cfg
}
