package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	"github.com/noah-isme/sma-admissions-api/internal/service"
)

func newCreateAdminCmd() *cobra.Command {
	var (
		email    string
		name     string
		role     string
		password string
	)
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Provision a back-office account",
		Long: `Provision a back-office account.

The password is read from --password or, when omitted, from ADMIN_PASSWORD.

Examples:
  ADMIN_PASSWORD=change-me admissionctl create-admin --email head@school.test --name "Head Office"
  admissionctl create-admin --email clerk@school.test --name Clerk --role STAFF --password change-me`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			userRole := models.UserRole(strings.ToUpper(role))
			if !userRole.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			auth := service.NewAuthService(
				repository.NewUserRepository(e.db),
				repository.NewAuditRepository(e.db),
				validator.New(),
				e.logger,
				service.AuthConfig{AccessTokenSecret: e.cfg.JWT.Secret},
			)
			user, err := auth.CreateUser(cmd.Context(), models.CreateUserRequest{
				Email:    email,
				Password: password,
				FullName: name,
				Role:     userRole,
			}, &models.Actor{UserAgent: "admissionctl"})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), user)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&role, "role", string(models.RoleSuperAdmin), "SUPERADMIN, ADMIN or STAFF")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
