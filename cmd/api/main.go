package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/storefront/catalog/cmd/api/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Storefront Catalog API Server",
		Long:  `Storefront Catalog serves the shelves and products of the storefront from a single JSON document, with automatic backups and verified writes.`,
	}

	// Add commands
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewImportCommand())
	rootCmd.AddCommand(commands.NewBackupCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
