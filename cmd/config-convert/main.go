package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chrissnell/landchange/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Check if SQLite file already exists
	if _, err := os.Stat(*sqliteFile); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\n", *sqliteFile)
		fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
		os.Exit(1)
	}

	fmt.Printf("Converting YAML configuration to SQLite...\n")
	fmt.Printf("  Source: %s\n", *yamlFile)
	fmt.Printf("  Target: %s\n", *sqliteFile)

	configData, err := config.NewYAMLProvider(*yamlFile).LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML configuration: %v\n", err)
		os.Exit(1)
	}

	printConfigSummary(configData)
	if *dryRun {
		fmt.Println("DRY RUN complete - no database created")
		return
	}

	if *force {
		if err := os.Remove(*sqliteFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error removing existing database: %v\n", err)
			os.Exit(1)
		}
	}

	provider, err := config.NewSQLiteProvider(*sqliteFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating SQLite database: %v\n", err)
		os.Exit(1)
	}
	defer provider.Close()

	if err := provider.SaveConfig(configData); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving configuration: %v\n", err)
		os.Exit(1)
	}

	// Read it back to make sure the database is usable
	if _, err := provider.LoadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error verifying converted configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Conversion complete")
}

func printConfigSummary(c *config.ConfigData) {
	fmt.Printf("Configuration summary:\n")
	fmt.Printf("  Input: %s (frequencies %v)\n", c.Input.Path, c.Input.Frequencies)
	fmt.Printf("  Detection: consecutive=%d threshold=%g strategy=%s lambda=%g robust=%t\n",
		c.Detection.Consecutive, c.Detection.Threshold, c.Detection.Strategy, c.Detection.Lambda, c.Detection.Robust)
	if c.Storage.SQLite != nil {
		fmt.Printf("  Storage: sqlite %s\n", c.Storage.SQLite.Path)
	}
	if c.Storage.TimescaleDB != nil {
		fmt.Printf("  Storage: timescaledb\n")
	}
	if c.Storage.File != nil {
		fmt.Printf("  Storage: file %s (%s)\n", c.Storage.File.Path, c.Storage.File.Format)
	}
	fmt.Printf("  Workers: %d\n", c.Workers)
}
