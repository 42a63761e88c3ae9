// Package cmd holds the cardex-server command line.
package cmd

import (
	"os"

	"cardex-server/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const serviceName = "cardex"

var rootCmd = &cobra.Command{
	Use:   "cardex-server",
	Short: "Business card exchange backend",
	Long: `cardex-server serves the card catalog, saved contacts and card
exchanges over HTTP.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadEnv()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Logging(serviceName); err != nil {
		return cfg, err
	}
	return cfg, nil
}
