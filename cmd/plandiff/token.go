package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"venture-plan-server/pkg/jwt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	tokenUser    string
	tokenTTL     time.Duration
	tokenIssuer  string
	tokenRefresh bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token",
	Long: `Mint a bearer token signed with JWT_SECRET (read from the environment or
.env). Only for local development; production tokens come from the auth
provider.

Example:
  plandiff token --user founder-1 --ttl 2h`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User ID to embed in the token (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "", "Issuer claim (defaults to JWT_ISSUER)")
	tokenCmd.Flags().BoolVar(&tokenRefresh, "refresh", false, "Mint a refresh token instead of an access token")
	tokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, args []string) error {
	godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if tokenTTL <= 0 {
		return errors.New("--ttl must be positive")
	}

	issuer := tokenIssuer
	if issuer == "" {
		issuer = os.Getenv("JWT_ISSUER")
	}

	var (
		token string
		err   error
	)
	switch {
	case tokenRefresh:
		token, err = jwt.GenerateRefreshToken(tokenUser, tokenTTL, secret)
	default:
		token, err = jwt.GenerateTokenWithIssuer(tokenUser, issuer, tokenTTL, secret)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
