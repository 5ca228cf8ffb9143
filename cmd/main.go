// Package main is the entry point for the prediction gateway.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/askcos/prediction-gateway/internal/config"
	"github.com/askcos/prediction-gateway/internal/monitoring"
)

// Version is set at build time via ldflags
var Version = "v0.1.0"

// ANSI color codes
const (
	accent = "\033[38;2;33;102;172m"
	bold   = "\033[1m"
	reset  = "\033[0m"
)

const banner = `
  ___              _ _      _   _
 | _ \_ _ ___ __| (_)__| |_(_)___ _ _     __ _ __ _| |_ _____ __ ____ _ _  _
 |  _/ '_/ -_) _' | / _|  _| / _ \ ' \   / _' / _' |  _/ -_) V  V / _' | || |
 |_| |_| \___\__,_|_\__|\__|_\___/_||_|  \__, \__,_|\__\___|\_/\_/\__,_|\_, |
                                         |___/                          |__/
`

func printBanner() {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print(accent + bold + banner + reset + "\n")
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the CLI: serve, check-config and version.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "prediction-gateway",
		Short:        "Uniform sync/async HTTP gateway over prediction backends",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newCheckConfigCommand())
	root.AddCommand(newVersionCommand())
	return root
}

type serveOptions struct {
	configPath string
	debug      bool
	noBanner   bool
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the gateway server and worker pools",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadEnvFiles()
			if !opts.noBanner {
				printBanner()
			}

			cfg, source, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			logger := setupLogging(cfg.Monitoring.Log, opts.debug)

			logger.Info().
				Str("version", Version).
				Str("config", source).
				Int("port", cfg.Server.Port).
				Strs("backends", cfg.Backends.Enabled()).
				Msg("prediction gateway starting")

			return runServe(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")
	cmd.Flags().BoolVar(&opts.noBanner, "no-banner", false, "suppress startup banner")
	return cmd
}

func newCheckConfigCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate a config file, then print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadEnvFiles()
			cfg, source, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config:   %s\n", source)
			fmt.Fprintf(out, "port:     %d\n", cfg.Server.Port)
			fmt.Fprintf(out, "store:    %s\n", cfg.Store.Type)
			fmt.Fprintf(out, "backends: %s\n", strings.Join(cfg.Backends.Enabled(), ", "))
			fmt.Fprintf(out, "queues:   %s\n", strings.Join(append([]string{config.GenericQueue}, cfg.Backends.Queues()...), ", "))
			fmt.Fprintln(out, "OK")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "prediction-gateway %s\n", Version)
		},
	}
}

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	configEnv := filepath.Join(homeDir, ".config", "prediction-gateway", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Local .env does not override variables already set.
	_ = godotenv.Load()
}

// resolveConfig resolves the config file.
// Checks: user flag -> filesystem locations -> embedded config.
// Returns raw bytes and source description.
func resolveConfig(userConfig string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	var searchPaths []string
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "prediction-gateway", "gateway.yaml"))
	}
	searchPaths = append(searchPaths, "configs/gateway.yaml")

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	if data, err := getEmbeddedConfig(defaultConfigName); err == nil {
		return data, "(embedded) " + defaultConfigName + ".yaml", nil
	}

	names, _ := listEmbeddedConfigs()
	return nil, "", fmt.Errorf("no config file found (embedded: %s). Specify --config path", strings.Join(names, ", "))
}

func loadConfig(userConfig string) (*config.Config, string, error) {
	data, source, err := resolveConfig(userConfig)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromBytes(data)
	if err != nil {
		return nil, source, fmt.Errorf("%s: %w", source, err)
	}
	return cfg, source, nil
}

// setupLogging configures the global zerolog logger. An empty format picks
// console output on a terminal and JSON otherwise.
func setupLogging(cfg monitoring.LoggerConfig, debug bool) *monitoring.Logger {
	if cfg.Format == "" {
		cfg.Format = "json"
		if cfg.Output == "" || cfg.Output == "stdout" {
			if term.IsTerminal(int(os.Stdout.Fd())) {
				cfg.Format = "console"
			}
		}
	}
	if debug {
		cfg.Level = "debug"
	}
	return monitoring.Global(cfg)
}
