// Package cli implements the authcore command line: the HTTP service, an
// offline token check and the version command.
package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/StricklySoft/stricklysoft-authcore/pkg/config"
)

// BuildVersion is set at link time.
var BuildVersion = "dev"

type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string

	logger *slog.Logger
}

// NewRootCommand returns the authcore command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "authcore",
		Short:         "Bearer token authentication and permission expansion",
		Long:          "authcore validates bearer tokens from several identity providers and expands their roles into permissions.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			opts.logger = logger
			slog.SetDefault(logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Optional YAML or JSON configuration file. Environment variables take precedence.")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level: debug, info, warn or error. Can also be set via LOG_LEVEL.")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", envOr("LOG_FORMAT", "json"), "Log format: json or text. Can also be set via LOG_FORMAT.")

	root.AddCommand(
		newServeCommand(opts),
		newValidateCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *rootOptions) loader() *config.Loader {
	l := config.New()
	if o.configFile != "" {
		l = l.WithFile(o.configFile)
	}
	return l
}
