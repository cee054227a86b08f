// Package configfile loads a pipeline core.Config from a YAML file on disk,
// with environment-variable overrides layered on top via viper.
package configfile

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/kestrelimg/imagepipeline/internal/core"
)

// EnvPrefix namespaces the environment variables that can override any
// setting in the file, e.g. IMAGEPIPELINE_RATELIMITERENABLED=false.
const EnvPrefix = "IMAGEPIPELINE"

// Loader reads a pipeline configuration file from disk.
type Loader struct {
	path string
	v    *viper.Viper
}

// New builds a Loader for the YAML file at path.
func New(path string) *Loader {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{path: path, v: v}
}

// Load reads and parses the configuration file, starting from
// core.DefaultConfig and overriding only the fields present in the file. An
// environment variable overrides a field only when that field also appears
// in the file; environment variables for fields absent from the file are
// not read.
func (l *Loader) Load() (core.Config, error) {
	cfg := core.DefaultConfig()

	if err := l.v.ReadInConfig(); err != nil {
		return core.Config{}, fmt.Errorf("configfile: read %s: %w", l.path, err)
	}
	if err := l.v.Unmarshal(&cfg); err != nil {
		return core.Config{}, fmt.Errorf("configfile: unmarshal %s: %w", l.path, err)
	}

	return cfg, nil
}
