package config

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "BULKHEAD_"

// Config is the host configuration.
type Config struct {
	AppPath  string         `yaml:"app_path" env:"APP_PATH" validate:"required"`
	Bundles  []string       `yaml:"bundles" env:"BUNDLES" envSeparator:"," validate:"dive,required,bundle_location"`
	CacheDir string         `yaml:"cache_dir" env:"CACHE_DIR" validate:"required"`
	Store    StoreConfig    `yaml:"store" envPrefix:"STORE_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Registry RegistryConfig `yaml:"registry" envPrefix:"REGISTRY_"`
	Watch    WatchConfig    `yaml:"watch" envPrefix:"WATCH_"`
}

// StoreConfig configures the model store.
type StoreConfig struct {
	DSN string `yaml:"dsn" env:"DSN" validate:"required"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Human bool   `yaml:"human" env:"HUMAN"`
}

// RegistryConfig configures the plugin registry.
type RegistryConfig struct {
	CollisionPolicy string `yaml:"collision_policy" env:"COLLISION_POLICY" validate:"omitempty,oneof=strict warn off"`
}

// WatchConfig configures model hot reload.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Debounce string `yaml:"debounce" env:"DEBOUNCE" validate:"omitempty,duration"`
}
