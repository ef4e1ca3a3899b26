package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"jobMatch/internal/auth"
	"jobMatch/internal/config"
	"jobMatch/internal/database"
)

func main() {
	_ = godotenv.Load()

	var (
		username = flag.String("username", "", "管理员用户名（必填）")
		promote  = flag.Bool("promote", false, "将已有账号提升为管理员，不重置密码")
		dbHost   = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort   = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName   = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser   = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass   = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode  = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	u := strings.TrimSpace(*username)
	if u == "" {
		log.Fatal("missing required flag: --username")
	}

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}
	overrideString(&dbCfg.Host, *dbHost)
	overrideString(&dbCfg.Name, *dbName)
	overrideString(&dbCfg.User, *dbUser)
	overrideString(&dbCfg.Password, *dbPass)
	overrideString(&dbCfg.SSLMode, *sslMode)
	if *dbPort > 0 {
		dbCfg.Port = *dbPort
	}
	if err := dbCfg.Validate(); err != nil {
		log.Fatalf("database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var existing database.User
	switch err := db.Where("username = ?", u).First(&existing).Error; {
	case err == nil:
		if !*promote {
			log.Fatalf("user %q already exists (use --promote to grant admin role)", u)
		}
		if err := db.Model(&existing).Update("role", database.RoleAdmin).Error; err != nil {
			log.Fatalf("promote user: %v", err)
		}
		fmt.Printf("已将账号 %s（id=%d）设为管理员。\n", u, existing.ID)
		return
	case errors.Is(err, gorm.ErrRecordNotFound):
		if *promote {
			log.Fatalf("user %q not found", u)
		}
	default:
		log.Fatalf("query user: %v", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	user := database.User{
		Username:     u,
		PasswordHash: hashed,
		Role:         database.RoleAdmin,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("create user: %v", err)
	}

	fmt.Printf("已创建管理员账号（可查看任意用户的匹配结果）：\n")
	fmt.Printf("用户名: %s\n", u)
	fmt.Printf("密码: %s\n", password)
	fmt.Printf("提示：该密码仅显示一次，请妥善保存。\n")
}

func overrideString(dst *string, flagValue string) {
	if v := strings.TrimSpace(flagValue); v != "" {
		*dst = v
	}
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
