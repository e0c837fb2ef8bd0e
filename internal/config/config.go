// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/sofastack/sofa-ark-sub003/internal/issue"
	"github.com/sofastack/sofa-ark-sub003/pkg/cueutil"
)

const (
	// AppName is the application name used in paths and the environment prefix.
	AppName = "arkctl"
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. ARKCTL_LOG_LEVEL.
	EnvPrefix = "ARKCTL"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the arkctl directory under the user config directory.
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// ConfigFilePath returns the default config file location.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions layers defaults, the first config file found and the
// environment, then validates the result. The returned path is empty when
// no file was read.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := locate(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Run 'arkctl config show' to see the effective configuration").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if ok, errs := cfg.IsValid(); !ok {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("Check ARKCTL_* environment variables for typos").
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, path, nil
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("loader.module_dirs", defaults.Loader.ModuleDirs)
	v.SetDefault("loader.timeout", defaults.Loader.Timeout)
	v.SetDefault("executor.policy", defaults.Executor.Policy)
	v.SetDefault("resolver.base_packages", defaults.Resolver.BasePackages)
	v.SetDefault("resolver.base_resources", defaults.Resolver.BaseResources)
	v.SetDefault("resolver.primary_module", defaults.Resolver.PrimaryModule)
	v.SetDefault("boot.concurrency", defaults.Boot.Concurrency)
	v.SetDefault("telemetry.exporter", defaults.Telemetry.Exporter)
	v.SetDefault("desired", defaults.Desired)
}

// locate picks the config file: an explicit path must exist, otherwise the
// config directory is tried before the working directory.
func locate(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'arkctl config init' to write a default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	dir := opts.ConfigDirPath
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	name := ConfigFileName + "." + ConfigFileExt
	for _, candidate := range []string{filepath.Join(dir, name), name} {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

// loadCUEIntoViper validates a CUE file against #Config and merges it.
// Fields may stay non-concrete so that defaults fill them in.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}
	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	unified := schemaValue.LookupPath(cue.ParsePath("#Config")).Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueutil.FormatError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration unless a file
// already exists. It returns the path of the config file.
func CreateDefaultConfig() (string, error) {
	path, err := ConfigFilePath()
	if err != nil {
		return "", err
	}
	if fileExists(path) {
		return path, nil
	}
	return path, write(path, DefaultConfig())
}

// Save writes cfg to the default config file location.
func Save(cfg *Config) error {
	path, err := ConfigFilePath()
	if err != nil {
		return err
	}
	return write(path, cfg)
}

func write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE renders cfg as a config.cue document accepted by the schema.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// arkctl configuration file\n\n")

	sb.WriteString("log: {\n")
	fmt.Fprintf(&sb, "\tlevel:  %q\n", cfg.Log.Level)
	fmt.Fprintf(&sb, "\tformat: %q\n", cfg.Log.Format)
	sb.WriteString("}\n")

	sb.WriteString("\nloader: {\n")
	fmt.Fprintf(&sb, "\tmodule_dirs: %s\n", cueList(cfg.Loader.ModuleDirs))
	fmt.Fprintf(&sb, "\ttimeout:     %q\n", cfg.Loader.Timeout.String())
	sb.WriteString("}\n")

	sb.WriteString("\nexecutor: {\n")
	fmt.Fprintf(&sb, "\tpolicy: %q\n", cfg.Executor.Policy)
	sb.WriteString("}\n")

	sb.WriteString("\nresolver: {\n")
	fmt.Fprintf(&sb, "\tbase_packages:  %s\n", cueList(cfg.Resolver.BasePackages))
	fmt.Fprintf(&sb, "\tbase_resources: %s\n", cueList(cfg.Resolver.BaseResources))
	if cfg.Resolver.PrimaryModule != "" {
		fmt.Fprintf(&sb, "\tprimary_module: %q\n", cfg.Resolver.PrimaryModule)
	}
	sb.WriteString("}\n")

	sb.WriteString("\nboot: {\n")
	fmt.Fprintf(&sb, "\tconcurrency: %d\n", cfg.Boot.Concurrency)
	sb.WriteString("}\n")

	sb.WriteString("\ntelemetry: {\n")
	fmt.Fprintf(&sb, "\texporter: %q\n", cfg.Telemetry.Exporter)
	sb.WriteString("}\n")

	if cfg.Desired != "" {
		fmt.Fprintf(&sb, "\ndesired: %q\n", cfg.Desired)
	}

	return sb.String()
}

func cueList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
