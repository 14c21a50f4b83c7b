package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/pkg/app"
)

func adminCreateCmd() *cobra.Command {
	var in services.AdminInput
	cmd := &cobra.Command{
		Use:   "admin:create",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.BootDB(); err != nil {
				return err
			}
			defer app.Release()

			user, err := services.NewAdminService().CreateAdmin(cmd.Context(), in)
			var verr *services.ValidationError
			if errors.As(err, &verr) {
				msgs := make([]string, 0, len(verr.Fields))
				for field, msg := range verr.Fields {
					msgs = append(msgs, field+": "+msg)
				}
				return fmt.Errorf("invalid input: %s", strings.Join(msgs, "; "))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Admin %s created (id %d).\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "login email")
	cmd.Flags().StringVar(&in.Password, "password", "", "password, at least 8 characters")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
