// seed-admin creates or updates the back-office admin user.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
//
// Username and password can be overridden with ADMIN_USERNAME / ADMIN_PASSWORD.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/arkline-sg/backoffice_backend/config"
	"github.com/arkline-sg/backoffice_backend/models"
	"github.com/arkline-sg/backoffice_backend/utils"
)

const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "Arkline@dmin"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = defaultAdminUsername
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = defaultAdminPassword
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var user models.User
	err = db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Name:     "Back Office Admin",
			Username: username,
			Password: string(hashed),
			Role:     models.UserRoleAdmin,
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("created admin user %q (id %d)\n", username, user.ID)
	case err != nil:
		fmt.Fprintf(os.Stderr, "failed to look up admin user: %v\n", err)
		os.Exit(1)
	default:
		updates := map[string]any{"password": hashed, "role": models.UserRoleAdmin}
		if err := db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
			os.Exit(1)
		}
		_ = user.RemoveInstanceRedis()
		fmt.Printf("updated admin user %q (id %d)\n", username, user.ID)
	}
}
