package pg

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"l2book/biz/model"
	"l2book/conf"
)

// PostgresClient serves the audit trail's batch inserts; GormDB serves the
// query side. Both stay nil when no DSN is configured.
var PostgresClient *pgxpool.Pool
var GormDB *gorm.DB

func Init() {
	pgConf := conf.GetConf().Postgres
	if pgConf.DSN == "" {
		hlog.Info("postgres not configured, placement audit disabled")
		return
	}
	pool, err := pgxpool.New(context.Background(), pgConf.DSN)
	if err != nil {
		panic(fmt.Sprintf("failed to connect to postgres: %v", err))
	}
	if err := pool.Ping(context.Background()); err != nil {
		panic(fmt.Sprintf("failed to ping postgres: %v", err))
	}
	PostgresClient = pool

	if err := initGorm(pgConf.DSN); err != nil {
		panic(fmt.Sprintf("failed to init gorm: %v", err))
	}
	if err := autoMigrate(); err != nil {
		panic(fmt.Sprintf("failed to auto migrate: %v", err))
	}
}

func initGorm(dsn string) error {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return err
	}
	GormDB = db
	return nil
}

func autoMigrate() error {
	if GormDB == nil {
		return gorm.ErrInvalidDB
	}
	return GormDB.AutoMigrate(&model.Placement{})
}

func GetPool() *pgxpool.Pool {
	return PostgresClient
}
