package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sai034/css-video-editor/internal/middleware"
)

var (
	tokenClient string
	tokenTTL    time.Duration
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API bearer token for a client",
		Long: `Sign an HS256 bearer token with the API's server.authSecret.

The secret comes from --config or VEDIT_SERVER_AUTHSECRET.`,
		Example: "  vedit token --client mobile-app --ttl 720h",
		Args:    cobra.NoArgs,
		RunE:    runToken,
	}

	cmd.Flags().StringVar(&tokenClient, "client", "", "Client ID the token is issued to")
	cmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "How long the token stays valid")
	_ = cmd.MarkFlagRequired("client")

	return cmd
}

type tokenOutput struct {
	ClientID  string    `json:"client_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server.AuthSecret == "" {
		return errors.New("no auth secret configured (set server.authSecret)")
	}
	if tokenTTL <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", tokenTTL)
	}

	expires := time.Now().Add(tokenTTL)
	token, err := middleware.NewTokenAuth(cfg.Server.AuthSecret).Issue(tokenClient, tokenTTL)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, tokenOutput{ClientID: tokenClient, Token: token, ExpiresAt: expires.UTC()})
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
