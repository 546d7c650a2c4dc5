package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muahq/mua/client"
)

func newInitCmd() *cobra.Command {
	var (
		initURL    string
		initAPIKey string
		initDBURL  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up mua CLI configuration",
		Long:  "Interactive setup wizard that creates ~/.mua/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			nonInteractive := initURL != "" || initAPIKey != ""
			return runInit(initURL, initAPIKey, initDBURL, nonInteractive)
		},
	}

	cmd.Flags().StringVar(&initURL, "url", "", "Server URL (non-interactive mode)")
	cmd.Flags().StringVar(&initAPIKey, "api-key", "", "API key (non-interactive mode)")
	cmd.Flags().StringVar(&initDBURL, "database-url", "", "DATABASE_URL saved for serve, migrate and batch")
	return cmd
}

func runInit(url, apiKey, dbURL string, nonInteractive bool) error {
	if !nonInteractive {
		fmt.Println("\n  mua setup")
		fmt.Println("  ─────────")
		fmt.Println()

		reader := bufio.NewReader(os.Stdin)

		fmt.Printf("  Server URL [%s]: ", defaultURL)
		line, _ := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			url = line
		}

		fmt.Print("  API Key: ")
		keyLine, _ := reader.ReadString('\n')
		apiKey = strings.TrimSpace(keyLine)
	}

	if url == "" {
		url = defaultURL
	}

	if apiKey == "" {
		return fmt.Errorf("API key is required")
	}

	if !nonInteractive {
		fmt.Print("\n  Testing connection... ")
	}

	ver, err := testConnection(url, apiKey)
	if err != nil {
		if !nonInteractive {
			fmt.Println("✗")
		}
		return fmt.Errorf("connection failed: %w", err)
	}

	if !nonInteractive {
		fmt.Printf("✓ Connected (%s)\n", ver)
	}

	cfgPath, err := writeConfig(url, apiKey, dbURL)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if nonInteractive {
		fmt.Printf("Config saved to %s\n", cfgPath)
	} else {
		fmt.Printf("\n  ✓ Config saved to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("  Next steps:")
		fmt.Println("    mua doctor          # Full diagnostic check")
		fmt.Println("    mua clarify digest  # Answer open questions")
		fmt.Println("    mua --help          # See all commands")
		fmt.Println()
	}

	return nil
}

// testConnection checks the key against an authenticated endpoint and
// returns the server version.
func testConnection(url, apiKey string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := client.New(url, client.WithAPIKey(apiKey), client.WithTimeout(10*time.Second))

	if _, err := c.Stats(ctx); err != nil {
		return "", err
	}

	health, err := c.Health(ctx)
	if err != nil {
		return "", err
	}

	if health.Version == "" {
		return "unknown", nil
	}

	return health.Version, nil
}

// writeConfig stores the default profile, keeping any other profiles and env
// entries already in the file.
func writeConfig(url, apiKey, dbURL string) (string, error) {
	cfgPath, existing, err := loadConfigFile()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	cfg := configFile{}
	if existing != nil {
		cfg = *existing
	}

	if cfg.Profiles == nil {
		cfg.Profiles = map[string]configProfile{}
	}
	cfg.Profiles["default"] = configProfile{URL: url, APIKey: apiKey}
	cfg.ActiveProfile = "default"

	if dbURL != "" {
		if cfg.Env == nil {
			cfg.Env = map[string]string{}
		}
		cfg.Env["DATABASE_URL"] = dbURL
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return "", err
	}

	return cfgPath, nil
}
