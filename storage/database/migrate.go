package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"CareFollow/internal/model"
	"CareFollow/pkg/logger"
)

// 旧版数据只有时间戳没有 status 列的值，按时间戳补齐；已发出但缺 sent_at 的行补上发送时间
var backfillStatements = []string{
	`UPDATE reminder_records SET created_at = scheduled_at WHERE created_at IS NULL`,
	`UPDATE reminder_records SET status = 'responded' WHERE (status IS NULL OR status = '') AND responded_at IS NOT NULL`,
	`UPDATE reminder_records SET status = 'sent' WHERE (status IS NULL OR status = '') AND sent_at IS NOT NULL`,
	`UPDATE reminder_records SET status = 'scheduled' WHERE status IS NULL OR status = ''`,
	`UPDATE reminder_records SET sent_at = COALESCE(updated_at, scheduled_at) WHERE sent_at IS NULL AND status IN ('sent', 'responded', 'no_response')`,
}

// Migrate 建表并补齐旧数据的状态
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	if err := db.AutoMigrate(
		&model.ReminderRecord{},
		&model.DeliveryAttempt{},
	); err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	for _, stmt := range backfillStatements {
		res := db.Exec(stmt)
		if res.Error != nil {
			logger.Logger.Error("Legacy status backfill failed", zap.Error(res.Error))
			return res.Error
		}
		if res.RowsAffected > 0 {
			logger.Logger.Info("Backfilled legacy reminder status", zap.Int64("rows", res.RowsAffected))
		}
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
