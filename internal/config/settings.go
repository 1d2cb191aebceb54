package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Settings is the top-level run configuration: every upstream source this
// run knows about, plus the scratch-space and partitioning knobs shared by
// every extraction.
type Settings struct {
	Sources       []DataWarehouseSchema `yaml:"sources" json:"sources" mapstructure:"sources"`
	ScratchDir    string                `yaml:"scratch_dir" json:"scratch_dir" mapstructure:"scratch_dir"`
	MaxPartitions int64                 `yaml:"max_partitions" json:"max_partitions" mapstructure:"max_partitions"`
	SqoopExecutable string              `yaml:"sqoop_executable" json:"sqoop_executable" mapstructure:"sqoop_executable"`
}

// SchemaMap indexes Sources by name, the shape extract.Base expects.
func (s Settings) SchemaMap() map[string]DataWarehouseSchema {
	out := make(map[string]DataWarehouseSchema, len(s.Sources))
	for _, src := range s.Sources {
		out[src.Name] = src
	}
	return out
}

// Load reads run settings from a YAML file at path via viper, applying
// environment overrides for secrets that should never live in a checked-in
// file (each source's DSN password).
//
// The two-layer approach (file for structure, environment for secrets)
// matches the usual split between config.yaml and K8s-Secret-sourced
// environment variables.
func Load(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("ETL")

	v.SetDefault("scratch_dir", defaultScratchDir())
	v.SetDefault("max_partitions", 4)
	v.SetDefault("sqoop_executable", "sqoop")

	if err := v.ReadInConfig(); err != nil {
		return Settings{}, fmt.Errorf("read config %q: %w", path, err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config %q: %w", path, err)
	}

	applyPasswordOverrides(&s)
	return s, nil
}

// applyPasswordOverrides lets ETL_SOURCE_<NAME>_PASSWORD override the
// plaintext password for a named source, so credentials need not live in
// the checked-in settings file.
func applyPasswordOverrides(s *Settings) {
	for i, src := range s.Sources {
		envVar := "ETL_SOURCE_" + envSafe(src.Name) + "_PASSWORD"
		if pw := os.Getenv(envVar); pw != "" {
			s.Sources[i].DSN.Password = pw
		}
	}
}

func envSafe(name string) string {
	out := make([]rune, len(name))
	for i, r := range name {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out[i] = r
		} else {
			out[i] = '_'
		}
	}
	return string(out)
}

func defaultScratchDir() string {
	if dir := os.Getenv("ETL_SCRATCH_DIR"); dir != "" {
		return dir
	}
	return os.TempDir() + "/etl-core"
}
