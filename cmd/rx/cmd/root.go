package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/wlame/rx/internal/app"
	"github.com/wlame/rx/internal/config"
	"github.com/wlame/rx/internal/observability"
)

var (
	configPath string
	debugFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "rx [flags] [paths...]",
	Short: "rx - streaming regex search for large log files",
	Long: "Searches files and directories by splitting them into line-aligned\n" +
		"chunks and running ripgrep over the chunks in parallel. Flags after\n" +
		"\"--\" are passed to ripgrep verbatim.",
	Example: "  rx -e 'connection refused' /var/log/app.log\n" +
		"  rx -e error -e warn /var/log --max-results=50\n" +
		"  rx -e 'timeout' /var/log/app.log -- -i -w",
	RunE:         runSearch,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/rx/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(samplesCmd)
	rootCmd.AddCommand(analyseCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
}

// loadConfig reads the config file and applies environment overrides.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if debugFlag {
		cfg.LogLevel = "debug"
	}
	observability.SetupLogging(cfg.LogLevel)
	return cfg, nil
}

// loadApp assembles the application from configuration.
func loadApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
