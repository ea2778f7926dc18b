package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/fabula/internal/model"
)

// Version is the fabula release, overridden at build time via -ldflags
var Version = "0.1.0"

var (
	cfgFile string
	verbose bool
	docs    map[string]string

	// configErr holds the failure from initConfig until a command runs
	configErr error
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fabula",
	Short: "Fabula - backstory consistency checking against source novels",
	Long: `Fabula checks whether a character backstory is consistent with the novel
it is set in.

Each backstory is split into claims. Every claim is matched against the most
similar passages of the novel, a judge model labels each (claim, passage) pair
as CONTRADICT, SUPPORT or NEUTRAL, and a small classifier turns the pooled
scores into a consistent / inconsistent decision.

Fabula is a screening aid, not a literary authority.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configErr
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of Fabula.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fabula v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.fabula/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.StringToStringVar(&docs, "doc", nil, "source document as name=path-or-URL (repeatable)")

	// Config overrides
	flags.String("judge-provider", "", "judge provider (openai, anthropic, ollama)")
	flags.String("judge-model", "", "judge model name")
	flags.Int("concurrency", 0, "judge worker pool size")
	flags.Float64("rpm", 0, "judge calls per minute across all workers (0 = unlimited)")
	flags.String("embedding-provider", "", "embedding provider (openai, ollama, hashing)")
	flags.Int("top-k", 0, "passages retrieved per claim")
	flags.Bool("no-cache", false, "disable the verdict cache")
	flags.String("store", "", "SQLite feature store path (empty keeps the configured path)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("no-cache", flags.Lookup("no-cache"))
	bindOverride("judge.provider", "judge-provider")
	bindOverride("judge.model", "judge-model")
	bindOverride("judge.concurrency", "concurrency")
	bindOverride("judge.requests_per_minute", "rpm")
	bindOverride("embedding.provider", "embedding-provider")
	bindOverride("retrieval.top_k", "top-k")
	bindOverride("store.path", "store")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// bindOverride maps a flag onto a config key. The flag only takes effect
// when set, so unset flags never mask file or environment values.
func bindOverride(key, flag string) {
	_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
}

// initConfig reads in config file and ENV variables. A failure is kept in
// configErr so the command aborts before doing any work.
func initConfig() {
	configErr = nil
	if err := configureViper(viper.GetViper(), cfgFile); err != nil {
		configErr = fmt.Errorf("error reading config: %w", err)
		return
	}
	if file := viper.ConfigFileUsed(); file != "" && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", file)
	}
}

// configureViper registers defaults, the config file and FABULA_* environment variables
func configureViper(v *viper.Viper, file string) error {
	if err := setDefaults(v, model.DefaultConfig()); err != nil {
		return err
	}

	if file != "" {
		// Use config file from the flag
		v.SetConfigFile(file)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("find home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".fabula"))
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	// Read in environment variables that match FABULA_*, e.g. FABULA_JUDGE_MODEL
	v.SetEnvPrefix("FABULA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys omitted from the defaults are unknown to AutomaticEnv
	for _, key := range []string{
		"judge.api_key", "judge.base_url",
		"embedding.api_key", "embedding.base_url",
		"http.http_proxy", "http.https_proxy",
	} {
		_ = v.BindEnv(key)
	}

	// A missing default config file is fine; an explicit one must exist
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// setDefaults registers every leaf of cfg as a viper default so that
// environment variables resolve for nested keys
func setDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}
	flattenInto(v, "", tree)
	return nil
}

func flattenInto(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok && k != "documents" {
			flattenInto(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// loadConfig resolves the effective configuration from the global viper
func loadConfig() (*model.Config, error) {
	return decodeConfig(viper.GetViper(), docs)
}

// decodeConfig unmarshals v over the defaults, then applies --doc entries
// and provider API keys from the environment
func decodeConfig(v *viper.Viper, extraDocs map[string]string) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Documents == nil {
		cfg.Documents = map[string]string{}
	}
	for name, src := range extraDocs {
		cfg.Documents[name] = src
	}
	if v.GetBool("no-cache") {
		cfg.Cache.Enabled = false
	}
	applyEnvKeys(cfg, os.Getenv)
	return cfg, nil
}

// applyEnvKeys fills provider credentials the config left empty from the
// providers' conventional environment variables
func applyEnvKeys(cfg *model.Config, getenv func(string) string) {
	fill := func(provider string, apiKey, baseURL *string) {
		switch strings.ToLower(provider) {
		case "openai":
			if *apiKey == "" {
				*apiKey = getenv("OPENAI_API_KEY")
			}
			if *baseURL == "" {
				*baseURL = getenv("OPENAI_BASE_URL")
			}
		case "anthropic", "claude":
			if *apiKey == "" {
				*apiKey = getenv("ANTHROPIC_API_KEY")
			}
		case "ollama":
			if *baseURL == "" {
				*baseURL = getenv("OLLAMA_BASE_URL")
			}
		}
	}
	fill(cfg.Judge.Provider, &cfg.Judge.APIKey, &cfg.Judge.BaseURL)
	fill(cfg.Embedding.Provider, &cfg.Embedding.APIKey, &cfg.Embedding.BaseURL)
}

// newLogger builds the stderr logger handed to library packages
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
