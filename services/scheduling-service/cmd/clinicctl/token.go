package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/auth"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 staff token",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := settings(cmd.Flags())
			role := v.GetString("role")
			if role != auth.RoleAdmin && role != auth.RoleStaff {
				return fmt.Errorf("unknown role %q", role)
			}
			claims := auth.NewClaims(v.GetString("subject"), role, v.GetDuration("ttl"))
			claims.ClinicID = v.GetString("clinic-id")
			token, err := auth.SignHS256(claims, v.GetString("jwt-secret"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "staff", "Token subject")
	cmd.Flags().String("role", auth.RoleStaff, "admin or staff")
	cmd.Flags().String("clinic-id", "", "Optional clinic id claim")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Lifetime")
	cmd.Flags().String("jwt-secret", "", "Signing secret, defaults to JWT_SECRET")
	return cmd
}
