package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ideaflow/api/internal/auth"
	"ideaflow/api/internal/config"
	"ideaflow/api/internal/rbac"
)

var (
	tokenName  string
	tokenEmail string
	tokenRole  string
	tokenTTL   time.Duration
)

// tokenCmd mints a bearer token for local testing and scripts.
var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a signed bearer token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		role := rbac.Normalize(tokenRole)
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.TokenTTL
		}
		token, err := auth.IssueFor([]byte(cfg.TokenSecret), args[0], tokenName, tokenEmail, string(role), ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name claim")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "student", "student, reviewer or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to IDEAFLOW_TOKEN_TTL_SECONDS)")
}
