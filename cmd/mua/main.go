// Command mua is the client and server binary for the mua knowledge store.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muahq/mua/client"
	"github.com/muahq/mua/internal/config"
)

const defaultURL = "http://localhost:3040"

// Build-time variables set via ldflags.
var (
	commit    = ""
	buildDate = ""
)

var (
	apiClient *client.Client
	flagURL   string
	flagKey   string
	flagFmt   string
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("mua version %s (commit: %s, built: %s)", config.Version, commit, buildDate)
	}

	return fmt.Sprintf("mua version %s", config.Version)
}

// configFile is ~/.mua/config.yaml. Env entries become environment defaults
// for the server-side commands.
type configFile struct {
	URL           string                   `yaml:"url,omitempty"`
	APIKey        string                   `yaml:"api_key,omitempty"`
	Profiles      map[string]configProfile `yaml:"profiles,omitempty"`
	ActiveProfile string                   `yaml:"active_profile,omitempty"`
	Env           map[string]string        `yaml:"env,omitempty"`
}

type configProfile struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "mua",
		Short:   "mua: notes, people and the follow-ups between them",
		Version: versionString(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			resolveConfig()

			var opts []client.Option
			if flagKey != "" {
				opts = append(opts, client.WithAPIKey(flagKey))
			}
			apiClient = client.New(flagURL, opts...)
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flagURL, "url", defaultURL, "mua server URL (env: MUA_URL)")
	rootCmd.PersistentFlags().StringVar(&flagKey, "api-key", "", "API key (env: MUA_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&flagFmt, "format", "json", "Output format: json|table|quiet")

	initCmd := newInitCmd()
	initCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {} // skip client setup
	doctorCmd := newDoctorCmd()
	doctorCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {} // skip client setup

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(newBlockCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newClarifyCmd())
	rootCmd.AddCommand(newCRMCmd())
	rootCmd.AddCommand(newEntitiesCmd())
	rootCmd.AddCommand(newProcessCmd())
	rootCmd.AddCommand(newArtifactCmd())
	rootCmd.AddCommand(newAdminCmd())

	// Server-side commands talk to Postgres directly.
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newBatchCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".mua", "config.yaml"), nil
}

func loadConfigFile() (string, *configFile, error) {
	cfgPath, err := configPath()
	if err != nil {
		return "", nil, err
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return cfgPath, nil, err
	}

	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfgPath, nil, err
	}

	return cfgPath, &cfg, nil
}

// resolveConfig fills flags from the environment and then the config file.
// Flags win over env, env wins over the file.
func resolveConfig() {
	if flagURL == defaultURL {
		if v := os.Getenv("MUA_URL"); v != "" {
			flagURL = v
		}
	}
	if flagKey == "" {
		flagKey = os.Getenv("MUA_API_KEY")
	}

	_, cfg, err := loadConfigFile()
	if err != nil {
		return
	}

	applyEnvDefaults(cfg.Env)

	resolvedURL, resolvedKey := cfg.profileSettings()
	if flagURL == defaultURL && resolvedURL != "" {
		flagURL = resolvedURL
	}
	if flagKey == "" && resolvedKey != "" {
		flagKey = resolvedKey
	}
}

// profileSettings returns the active profile's URL and key, falling back to
// the flat top-level fields.
func (c *configFile) profileSettings() (url, apiKey string) {
	url, apiKey = c.URL, c.APIKey

	if c.Profiles == nil {
		return url, apiKey
	}

	name := c.ActiveProfile
	if name == "" {
		name = "default"
	}

	if p, ok := c.Profiles[name]; ok {
		if p.URL != "" {
			url = p.URL
		}
		if p.APIKey != "" {
			apiKey = p.APIKey
		}
	}

	return url, apiKey
}

// applyEnvDefaults exports each entry unless the variable is already set.
func applyEnvDefaults(env map[string]string) {
	for k, v := range env {
		if _, ok := os.LookupEnv(k); !ok {
			os.Setenv(k, v) //nolint:errcheck // keys come from a parsed YAML map.
		}
	}
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}
