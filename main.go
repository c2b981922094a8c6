package main

import (
	"fmt"
	"os"

	"github.com/5amCurfew/xtkt-target/cmd"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "0.1.0"
var configPath string

func main() {
	Execute()
}

func Execute() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the config JSON")

	if err := rootCmd.Execute(); err != nil {
		log.WithFields(log.Fields{"Error": err}).Error("error using xtkt-target")
		os.Exit(1)
	}
	os.Exit(0)
}

var rootCmd = &cobra.Command{
	Use:           "xtkt-target [PATH_TO_CONFIG_JSON]",
	Version:       version,
	Short:         "xtkt-target - Singer target writing CSV batches to object storage",
	Long:          `xtkt-target reads Singer SCHEMA, RECORD and STATE messages on stdin, writes each stream's records to CSV batches, uploads them to object storage and optionally loads them into a warehouse.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(command *cobra.Command, args []string) error {
		log.SetFormatter(&log.JSONFormatter{})
		log.SetOutput(os.Stderr)

		path := configPath
		if path == "" && len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			log.Info("no config JSON path provided, using defaults")
		}

		if err := cmd.Persist(command.Context(), path, version); err != nil {
			return fmt.Errorf("failed to persist messages: %w", err)
		}
		return nil
	},
}
