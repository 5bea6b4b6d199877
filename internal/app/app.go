package app

import (
	"context"
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/vitaspro/storefront/config"
	"github.com/vitaspro/storefront/internal/backup"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/docstore"
	"github.com/vitaspro/storefront/internal/domain"
	"github.com/vitaspro/storefront/internal/metrics"
	"github.com/vitaspro/storefront/internal/remote"
	"github.com/vitaspro/storefront/internal/settings"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron
	bus       EventBus.Bus
	settings  *settings.Store
	remote    *remote.Client
	store     catalog.Store
	service   *catalog.Service
	cache     *catalog.Cache
	metrics   *metrics.Store
	backup    *backup.Job
}

// Ensure Application implements all interfaces
var (
	_ DBProvider        = (*Application)(nil)
	_ ConfigProvider    = (*Application)(nil)
	_ SettingsProvider  = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ CatalogProvider   = (*Application)(nil)
	_ ImageProvider     = (*Application)(nil)
	_ SyncProvider      = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	InitLogger(cfg.Logger)

	// Initialize metrics with workdir convention
	if err = metrics.InitMetrics(cfg.System.Workdir); err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}
	a.metrics = metrics.Default()

	a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	// Ensure database schema is migrated before the catalog starts
	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	if err := a.Setup(nil); err != nil {
		zap.S().Fatalf("catalog setup failed: %s", err.Error())
	}

	go func() {
		if err := a.SeedDocument(context.Background()); err != nil {
			zap.S().Warnf("seed catalog document failed: %s", err.Error())
		}
		if _, err := a.cache.Refresh(context.Background(), false); err != nil {
			zap.S().Warnf("initial catalog load failed: %s", err.Error())
		}
	}()

	a.initJob()
}

// InitLogger installs the global zap logger, optionally teed into a rotated file.
func InitLogger(cfg config.LogConfig) {
	var zapConfig zap.Config
	if cfg.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}
	zap.ReplaceGlobals(logger)
}

// Setup wires the settings store, the remote client, the catalog backend and
// the snapshot cache. A nil client builds one from the drive config.
func (a *Application) Setup(client *remote.Client) error {
	cfg := a.appConfig
	if a.settings == nil {
		st, err := settings.Open(cfg.SettingsDBPath(), settings.Defaults(cfg.Drive))
		if err != nil {
			return err
		}
		a.settings = st
	}

	if client == nil {
		var opts []remote.Option
		opts = append(opts, remote.WithLogger(zap.L()))
		if a.metrics != nil {
			opts = append(opts, remote.WithRecorder(a.metrics))
		}
		c, err := remote.NewClient(remote.ConfigFrom(cfg.Drive), a.settings, opts...)
		if err != nil {
			return err
		}
		client = c
	}
	a.remote = client

	switch cfg.Storage.Backend {
	case config.BackendDatabase:
		if a.gormDB == nil {
			return errors.New("database backend selected but no database is open")
		}
		a.store = docstore.New(a.gormDB)
	default:
		a.store = client
	}

	a.bus = EventBus.New()
	opts := []catalog.Option{catalog.WithEventBus(a.bus), catalog.WithLogger(zap.L())}
	if a.gormDB != nil {
		opts = append(opts, catalog.WithAuditor(&syncLogAuditor{db: a.gormDB}))
	}
	svc, err := catalog.NewService(a.store, cfg.Catalog.NodeID, opts...)
	if err != nil {
		return err
	}
	a.service = svc

	a.cache = catalog.NewCache(a.store, cfg.Catalog.RefreshDelay)
	if err := a.cache.Subscribe(a.bus); err != nil {
		return errors.Wrap(err, "subscribe snapshot cache")
	}
	a.backup = backup.FromConfig(a.store, cfg)
	zap.L().Info("catalog ready",
		zap.String("namespace", "app"),
		zap.String("backend", cfg.Storage.Backend))
	return nil
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	if track {
		if err := a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	} else {
		if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	}
	return nil
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func (a *Application) Settings() *settings.Store {
	return a.settings
}

func (a *Application) Catalog() *catalog.Service {
	return a.service
}

func (a *Application) Snapshots() *catalog.Cache {
	return a.cache
}

func (a *Application) Images() ImageUploader {
	return a.remote
}

func (a *Application) Metrics() *metrics.Store {
	return a.metrics
}

// BreakerStates reports the circuit state of each remote strategy.
func (a *Application) BreakerStates() map[string]string {
	if a.remote == nil {
		return map[string]string{}
	}
	return a.remote.BreakerStates()
}

// RefreshNow reloads the snapshot, bypassing caches.
func (a *Application) RefreshNow(ctx context.Context) (catalog.Snapshot, error) {
	snap, err := a.cache.Refresh(ctx, true)
	if err == nil && a.metrics != nil {
		a.metrics.SetGauge(metrics.CatalogSizeMetric, int64(len(snap.Products)))
	}
	return snap, err
}

// RunBackupNow writes a backup file and returns its path.
func (a *Application) RunBackupNow(ctx context.Context) (string, error) {
	return a.backup.Run(ctx)
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.remote != nil {
		a.remote.Close()
	}
	if a.settings != nil {
		_ = a.settings.Close()
	}
	_ = metrics.Close()
	_ = zap.L().Sync()
}
