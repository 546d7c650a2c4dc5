package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/muahq/mua/client"
	"github.com/muahq/mua/internal/db"
	"github.com/muahq/mua/internal/db/migrations"
	"github.com/muahq/mua/internal/dbpool"
)

const doctorTimeout = 5 * time.Second

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity",
		Long:  "Run diagnostic checks against config, server, auth and, when DATABASE_URL is set, the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
	Hint   string
}

func runDoctor() error {
	fmt.Println("\nmua doctor")
	fmt.Println("==========")

	var results []checkResult

	cfgPath, _, cfgErr := loadConfigFile()
	if cfgErr != nil {
		results = append(results, checkResult{
			Name: "Config file", Passed: false,
			Detail: cfgPath,
			Hint:   "Run: mua init",
		})
	} else {
		results = append(results, checkResult{
			Name: "Config file", Passed: true,
			Detail: fmt.Sprintf("found (%s)", cfgPath),
		})
	}

	// Same precedence as the other commands.
	resolveConfig()

	url, apiKey := flagURL, flagKey

	results = append(results, checkResult{Name: "Server URL", Passed: true, Detail: url})

	if apiKey == "" {
		results = append(results, checkResult{
			Name: "API key", Passed: false,
			Hint: "Set --api-key, MUA_API_KEY, or run mua init",
		})
	} else {
		results = append(results, checkResult{Name: "API key", Passed: true, Detail: "configured"})
	}

	results = append(results, doctorCheckServer(url, apiKey)...)

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		results = append(results, doctorCheckDatabase(dbURL))
	}

	fmt.Println()
	allPassed := true
	for _, r := range results {
		mark := "✅"
		if !r.Passed {
			mark = "❌"
			allPassed = false
		}

		if r.Detail != "" {
			fmt.Printf("%s %s: %s\n", mark, r.Name, r.Detail)
		} else {
			fmt.Printf("%s %s\n", mark, r.Name)
		}

		if !r.Passed && r.Hint != "" {
			fmt.Printf("   Hint: %s\n", r.Hint)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("❌ Some checks failed.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println("✅ All checks passed!")

	return nil
}

func doctorCheckServer(url, apiKey string) []checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	opts := []client.Option{client.WithTimeout(doctorTimeout)}
	if apiKey != "" {
		opts = append(opts, client.WithAPIKey(apiKey))
	}
	c := client.New(url, opts...)

	health, err := c.Health(ctx)
	if err != nil {
		return []checkResult{{
			Name: "Server reachable", Passed: false,
			Detail: url,
			Hint:   fmt.Sprintf("Is the server running? Try: mua serve\n   Error: %v", err),
		}}
	}

	results := []checkResult{{
		Name: "Server reachable", Passed: true,
		Detail: fmt.Sprintf("%s (db %s, embeddings %s)", health.Version, health.Database, health.Embeddings),
	}}

	if apiKey == "" {
		return results
	}

	if _, err := c.Stats(ctx); err != nil {
		hint := fmt.Sprintf("Error: %v", err)
		if client.IsUnauthorized(err) {
			hint = "Check your API key. " + hint
		}

		return append(results, checkResult{Name: "Authentication", Passed: false, Hint: hint})
	}

	return append(results, checkResult{Name: "Authentication", Passed: true, Detail: "valid"})
}

func doctorCheckDatabase(dbURL string) checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	pool, err := dbpool.NewPool(ctx, dbURL, 2)
	if err != nil {
		return checkResult{Name: "Database", Passed: false, Hint: fmt.Sprintf("Check DATABASE_URL. Error: %v", err)}
	}
	defer pool.Close()

	current, latest, err := db.MigrationStatus(ctx, pool, migrations.FS)
	if err != nil {
		return checkResult{Name: "Database", Passed: false, Hint: fmt.Sprintf("Error: %v", err)}
	}

	if current < latest {
		return checkResult{
			Name: "Database", Passed: false,
			Detail: fmt.Sprintf("schema %d of %d", current, latest),
			Hint:   "Run: mua migrate",
		}
	}

	vector, err := pool.VectorVersion(ctx)
	if err != nil {
		return checkResult{
			Name: "Database", Passed: false,
			Detail: fmt.Sprintf("schema %d", current),
			Hint:   "Install pgvector: CREATE EXTENSION vector",
		}
	}

	return checkResult{Name: "Database", Passed: true, Detail: fmt.Sprintf("schema %d, pgvector %s", current, vector)}
}
