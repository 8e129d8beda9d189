package logging

// Config contains the configurable items for this package.
type Config struct {
	Environment string `yaml:"environment"`
	Level       string `yaml:"level"`
	// File, when set, receives a copy of every entry with size based
	// rotation.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// NewDefaultConfig creates an instance of the package-specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Environment: "dev",
		Level:       "info",
		MaxSizeMB:   100,
		MaxBackups:  5,
	}
}
