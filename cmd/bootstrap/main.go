// Package main 初始化数据库结构与首个管理员
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/TravelTable/nexusairbx-sub000/internal/config"
	"github.com/TravelTable/nexusairbx-sub000/internal/domain/entity"
	"github.com/TravelTable/nexusairbx-sub000/internal/infrastructure/persistence/postgres"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	pg, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("failed to init postgres: %v", err)
	}
	defer pg.Close()

	// 1. 建表
	fmt.Println("Running migrations...")
	if err := pg.DB().WithContext(ctx).AutoMigrate(
		&entity.User{},
		&entity.UserQuota{},
		&entity.TokenLedgerEntry{},
		&entity.LLMUsageEvent{},
		&entity.GenerationJob{},
		&entity.Script{},
		&entity.ScriptVersion{},
	); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// 2. 创建首个管理员
	adminEmail := os.Getenv("BOOTSTRAP_ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@nexusairbx.com"
	}
	adminPassword := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "admin123" // 生产环境请务必通过环境变量设置
	}

	userRepo := postgres.NewUserRepository(pg)
	exists, err := userRepo.ExistsByEmail(ctx, adminEmail)
	if err != nil {
		log.Fatalf("failed to check admin existence: %v", err)
	}

	if !exists {
		fmt.Printf("Creating admin user: %s...\n", adminEmail)
		admin := entity.NewUser(uuid.NewString(), adminEmail, "System Admin")
		admin.Role = entity.UserRoleAdmin
		if err := admin.SetPassword(adminPassword); err != nil {
			log.Fatalf("failed to hash admin password: %v", err)
		}
		if err := userRepo.Create(ctx, admin); err != nil {
			log.Fatalf("failed to create admin user: %v", err)
		}
		fmt.Println("Admin user created successfully.")
	} else {
		fmt.Printf("Admin user %s already exists.\n", adminEmail)
	}

	fmt.Println("Bootstrap completed successfully.")
}
