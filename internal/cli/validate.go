package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/StricklySoft/stricklysoft-authcore/pkg/auth"
)

func newValidateCommand(opts *rootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a bearer token against the configured providers",
		Long: "Validate a bearer token against the configured providers and print the resulting identity.\n" +
			"The token is read from --token or, when omitted, from stdin. A leading \"Bearer \" is accepted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg validateConfig
			if err := opts.loader().Load(&cfg); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			raw := token
			if raw == "" {
				data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 64<<10))
				if err != nil {
					return fmt.Errorf("read token from stdin: %w", err)
				}
				raw = string(data)
			}
			raw = strings.TrimSpace(raw)
			if bearer := auth.ExtractBearerToken(raw); bearer != "" {
				raw = bearer
			}

			registry, err := auth.NewProviderRegistryFromConfig(cfg.Auth, nil, auth.WithRegistryLogger(opts.logger))
			if err != nil {
				return err
			}
			validator, err := auth.NewValidator(registry,
				auth.WithClockSkew(cfg.Auth.ClockSkew),
				auth.WithValidatorLogger(opts.logger),
			)
			if err != nil {
				return err
			}

			identity, err := validator.Validate(cmd.Context(), raw)
			if err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}
			out, err := json.MarshalIndent(identity, "", "  ")
			if err != nil {
				return fmt.Errorf("encode identity: %w", err)
			}
			cmd.Printf("%s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Bearer token to validate. Read from stdin when empty.")
	return cmd
}
