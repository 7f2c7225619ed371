package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/lessons-api/internal/models"
	"github.com/noah-isme/lessons-api/internal/repository"
	"github.com/noah-isme/lessons-api/pkg/database"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the user directory",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user that can log in",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		password, _ := cmd.Flags().GetString("password")
		rawRole, _ := cmd.Flags().GetString("role")

		role := models.UserRole(strings.ToUpper(strings.TrimSpace(rawRole)))
		switch role {
		case models.RoleAdmin, models.RoleTeacher, models.RoleStudent:
		default:
			return fmt.Errorf("unknown role %q", rawRole)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		cfg, logr, err := bootstrap()
		if err != nil {
			return err
		}
		defer logr.Sync() //nolint:errcheck

		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()

		user := &models.User{
			Email:        strings.ToLower(strings.TrimSpace(email)),
			PasswordHash: string(hash),
			FullName:     name,
			Role:         role,
			Active:       true,
		}
		if err := repository.NewUserRepository(db).Create(cmd.Context(), user); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), user.ID)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().String("email", "", "E-mail address used to log in")
	userCreateCmd.Flags().String("name", "", "Full name")
	userCreateCmd.Flags().String("password", "", "Initial password")
	userCreateCmd.Flags().String("role", string(models.RoleTeacher), "ADMIN, TEACHER or STUDENT")
	for _, f := range []string{"email", "name", "password"} {
		_ = userCreateCmd.MarkFlagRequired(f)
	}
	userCmd.AddCommand(userCreateCmd)
}
