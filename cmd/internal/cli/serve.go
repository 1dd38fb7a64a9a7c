package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"qrauth/cmd/internal/app"
)

// NewServeCommand runs the HTTP server. Flags override the matching
// QRAUTH_* environment variables.
func NewServeCommand() *cobra.Command {
	var (
		addr      string
		logLevel  string
		logFormat string
		baseURL   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.HTTPAddr = addr
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			if flags.Changed("base-url") {
				cfg.PublicBaseURL = baseURL
			}

			return app.Run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "0.0.0.0:8080", "HTTP listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "json", "Log format (json, text)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public origin used in verify URLs")

	return cmd
}
