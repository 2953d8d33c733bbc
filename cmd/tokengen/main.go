// Command tokengen issues and inspects staff tokens for the /admin routes.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/cookingpapa/internal/auth"
	"github.com/suPer8Hu/cookingpapa/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tokengen",
		Short: "Staff token tool",
	}

	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a staff token with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			staffID, _ := cmd.Flags().GetString("staff")
			name, _ := cmd.Flags().GetString("name")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			tok, err := auth.SignJWT(staffID, name, config.Load().JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	issue.Flags().StringP("staff", "s", "", "staff id (token subject)")
	issue.Flags().StringP("name", "n", "", "display name")
	issue.Flags().Duration("ttl", 12*time.Hour, "token lifetime")
	_ = issue.MarkFlagRequired("staff")

	rootCmd.AddCommand(issue)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "verify <token>",
		Short: "Check a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := auth.ParseJWT(args[0], config.Load().JWTSecret)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "staff=%s name=%s expires=%s\n",
				claims.Subject, claims.Name, claims.ExpiresAt.Time.Format(time.RFC3339))
			return nil
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
