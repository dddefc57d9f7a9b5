// Command seed_admin provisions the first admin panel account. It is meant
// for initial environment setup; subsequent accounts are created through the
// /admins endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/repository"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/config"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/database"
)

func main() {
	var (
		username string
		email    string
		name     string
		password string
		role     string
	)

	flag.StringVar(&username, "username", "", "login username (required)")
	flag.StringVar(&email, "email", "", "account email (required)")
	flag.StringVar(&name, "name", "", "display name (required)")
	flag.StringVar(&password, "password", "", "initial password, min 8 chars (required)")
	flag.StringVar(&role, "role", string(models.RoleSuperAdmin), "account role")
	flag.Parse()

	if username == "" || email == "" || name == "" || password == "" {
		flag.Usage()
		log.Fatal("username, email, name and password are required")
	}
	if len(password) < 8 {
		log.Fatal("password must have at least 8 characters")
	}

	adminRole := models.AdminRole(strings.ToUpper(role))
	switch adminRole {
	case models.RoleSuperAdmin, models.RoleAdmin, models.RoleAgent:
	default:
		log.Fatalf("unknown role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("password hashing failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := repository.NewAdminRepository(db)

	username = strings.ToLower(strings.TrimSpace(username))
	if existing, err := repo.FindByUsername(ctx, username); err == nil && existing != nil {
		log.Fatalf("username %q already exists", username)
	}

	now := time.Now().UTC()
	user := &models.AdminUser{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hash),
		Name:         name,
		Role:         adminRole,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := repo.Create(ctx, user); err != nil {
		log.Fatalf("account creation failed: %v", err)
	}

	fmt.Printf("admin account created: %s (%s) id=%s\n", user.Username, user.Role, user.ID)
}
