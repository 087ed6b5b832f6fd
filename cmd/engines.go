package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/metisearch/metis/pkg/config"
	"github.com/metisearch/metis/pkg/core"
)

// EnginesCommand creates the engines command
func EnginesCommand() *cli.Command {
	return &cli.Command{
		Name:  "engines",
		Usage: "List configured engines and their capabilities",
		Action: func(ctx context.Context, c *cli.Command) error {
			return listEngines(c.String("config"))
		},
	}
}

func listEngines(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	registry := core.GetGlobalRegistry()
	if err := createEnginesFromConfig(registry, cfg); err != nil {
		return fmt.Errorf("creating engines: %w", err)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			fmt.Printf("Warning: failed to close registry: %v\n", err)
		}
	}()

	engines := registry.GetAllEngines()
	if len(engines) == 0 {
		fmt.Println("No engines configured. Run 'metis init' and edit the config file.")
		return nil
	}

	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		engine := engines[name]
		caps := engine.Capabilities()

		fmt.Printf("%s (%s)\n", name, engine.Type())
		fmt.Printf("  categories: %s\n", strings.Join(engine.Categories(), ", "))
		fmt.Printf("  weight: %.2f\n", cfg.GetEngineWeight(name))
		fmt.Printf("  timeout: %v\n", cfg.GetEngineTimeout(name))

		var features []string
		if caps.Paging {
			if caps.MaxPage > 0 {
				features = append(features, fmt.Sprintf("paging (max %d)", caps.MaxPage))
			} else {
				features = append(features, "paging")
			}
		}
		if caps.SafeSearch {
			features = append(features, "safesearch")
		}
		if caps.TimeRange {
			features = append(features, "time range")
		}
		if len(features) > 0 {
			fmt.Printf("  features: %s\n", strings.Join(features, ", "))
		}
		if len(caps.Locales) > 0 {
			fmt.Printf("  locales: %s\n", strings.Join(caps.Locales, ", "))
		}
		fmt.Println()
	}

	return nil
}
