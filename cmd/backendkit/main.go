// Package main runs the backendkit provider registry as a standalone service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/backendkit/bootstrap"
	"github.com/kbukum/backendkit/config"
	"github.com/kbukum/backendkit/version"
)

var (
	configFile string
	envFile    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "backendkit",
	Short: "Provider registry and lifecycle orchestrator",
	Long: `backendkit registers the providers named in its configuration file,
starts them in dependency order and serves the admin API until interrupted.`,
	Version:       version.Get().String(),
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: search ./config.yml and ./config/)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the config")
	rootCmd.AddCommand(serveCmd, validateCmd, versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the registry and the admin API",
	RunE:  runServe,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration without starting anything",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s): %d providers\n", cfg.Name, cfg.Environment, len(cfg.Providers))
		for _, p := range cfg.Providers {
			fmt.Fprintf(out, "  %-20s %-10s auto_start=%v depends_on=%v\n", p.Name, p.Type, p.AutoStart, p.DependsOn)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
	},
}

func load() (*bootstrap.Config, error) {
	var opts []config.LoaderOption
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	if envFile != "" {
		opts = append(opts, config.WithEnvFile(envFile))
	}
	cfg := &bootstrap.Config{}
	if err := config.LoadConfig("backendkit", cfg, opts...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	var opts []bootstrap.Option
	if configFile != "" {
		opts = append(opts, bootstrap.WithConfigFile(configFile))
	}
	app, err := bootstrap.NewApp(cfg, opts...)
	if err != nil {
		return err
	}
	return app.Run(cmd.Context())
}
