package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"taskify/internal/service"

	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed API token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}
			if err := initJWT(); err != nil {
				return err
			}
			token, err := service.GenerateJWT(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id to sign for")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func initJWT() error {
	secret, err := requireEnv("JWT_SECRET")
	if err != nil {
		return err
	}
	ttl := 24 * time.Hour
	if v := os.Getenv("JWT_TTL_HOURS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("JWT_TTL_HOURS must be a positive integer")
		}
		ttl = time.Duration(n) * time.Hour
	}
	service.InitJWT(secret, ttl)
	return nil
}
