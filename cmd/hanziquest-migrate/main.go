// Command hanziquest-migrate creates or updates the schema of the configured
// SQL or GORM store. It reads the same configuration as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"hanziquest/adapters/gormstore"
	sqlxAdapter "hanziquest/adapters/sqlx"
	"hanziquest/config"
)

func main() {
	_ = godotenv.Load()

	configFile := flag.String("config", os.Getenv("HANZIQUEST_CONFIG_FILE"), "path to a .json or .yaml config file")
	timeout := flag.Duration("timeout", time.Minute, "migration timeout")
	flag.Parse()

	log, _ := zap.NewProduction()
	defer func() { _ = log.Sync() }()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := migrate(ctx, cfg); err != nil {
		log.Fatal("migration failed", zap.String("adapter", cfg.Storage.Adapter), zap.Error(err))
	}
	log.Info("migration complete", zap.String("adapter", cfg.Storage.Adapter))
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func migrate(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Adapter {
	case "sql":
		sqlCfg := cfg.Storage.SQL
		sqlCfg.AutoMigrate = false
		s, err := sqlxAdapter.New(sqlCfg)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.Migrate(ctx)
	case "gorm":
		gormCfg := cfg.Storage.Gorm
		gormCfg.AutoMigrate = false
		s, err := gormstore.Open(gormCfg)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.Migrate(ctx)
	default:
		return fmt.Errorf("storage adapter %q has no schema to migrate", cfg.Storage.Adapter)
	}
}
