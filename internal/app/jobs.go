package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vitaspro/storefront/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// syncLogAuditor stores one sync_log row per catalog mutation.
type syncLogAuditor struct {
	db *gorm.DB
}

func (r *syncLogAuditor) Record(ctx context.Context, entry domain.SyncLog) {
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		zap.L().Error("failed to write sync log", zap.String("action", entry.Action), zap.Error(err))
	}
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	if loc == nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc(a.appConfig.Catalog.RefreshInterval, func() {
		go a.SchedRefreshTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		a.SchedClearExpireData()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	if a.appConfig.Backup.Enabled {
		_, err = a.sched.AddFunc(a.appConfig.Backup.Schedule, func() {
			go a.SchedBackupTask()
		})
		if err != nil {
			zap.S().Errorf("init backup job error %s", err.Error())
		}
	}

	a.sched.Start()
}

// SchedRefreshTask reloads the storefront snapshot
func (a *Application) SchedRefreshTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*a.appConfig.Drive.ReadTimeout)
	defer cancel()
	if _, err := a.RefreshNow(ctx); err != nil {
		zap.L().Warn("scheduled catalog refresh failed",
			zap.String("namespace", "app"),
			zap.Error(err))
	}
}

// SchedBackupTask writes a backup of the products document
func (a *Application) SchedBackupTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := a.RunBackupNow(ctx); err != nil {
		zap.L().Error("scheduled backup failed", zap.String("namespace", "app"), zap.Error(err))
	}
}

// SchedClearExpireData removes sync logs older than a year
func (a *Application) SchedClearExpireData() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	if a.gormDB == nil {
		return
	}
	a.gormDB.
		Where("opt_time < ? ", time.Now().
			Add(-time.Hour*24*365)).Delete(&domain.SyncLog{})
}
