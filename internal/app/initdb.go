package app

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/config"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/docstore"
	"github.com/vitaspro/storefront/internal/domain"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func getDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	db, err := OpenDatabase(cfg, workdir)
	if err != nil {
		panic(err)
	}
	return db
}

// OpenDatabase opens the postgres or sqlite database from the config.
func OpenDatabase(cfg config.DBConfig, workdir string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if cfg.Debug {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(path.Join(workdir, "data", cfg.Name+".db"))
	default:
		return nil, errors.Errorf("unsupported database type %q", cfg.Type)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", cfg.Type)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConn)
	}
	if cfg.IdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.IdleConn)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// SeedDocument copies the Drive document into the database when the
// database backend is selected and holds no document yet.
func (a *Application) SeedDocument(ctx context.Context) error {
	if a.appConfig.Storage.Backend != config.BackendDatabase || a.remote == nil {
		return nil
	}
	var count int64
	if err := a.gormDB.Model(&domain.CatalogDocument{}).Count(&count).Error; err != nil {
		return errors.Wrap(err, "count catalog documents")
	}
	if count > 0 {
		return nil
	}

	snap, err := a.remote.Load(ctx, catalog.LoadOptions{Force: true})
	if err != nil {
		return errors.Wrap(err, "read drive document for seeding")
	}
	res, err := docstore.New(a.gormDB).Save(ctx, snap.Products, catalog.SaveOptions{Expected: "0"})
	if err != nil {
		return err
	}
	zap.L().Info("initialized catalog document from drive",
		zap.String("namespace", "app"),
		zap.Int("items", len(snap.Products)),
		zap.String("source", snap.Source),
		zap.String("version", string(res.Version)))
	return nil
}
