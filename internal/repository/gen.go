package repository

import (
	"fmt"

	"gorm.io/gen"
	"gorm.io/gorm"

	"CareFollow/internal/model"
	"CareFollow/pkg/errors"
)

// ========== ReminderRecord 相关查询接口 ==========

// ReminderQuerier 提醒记录查询接口（供运维脚本和报表使用的类型安全查询）
type ReminderQuerier interface {
	// ListByPatient 查询患者的全部提醒
	//
	// SELECT * FROM @@table
	// WHERE patient_id = @patientID
	// ORDER BY scheduled_at ASC
	ListByPatient(patientID string) ([]*gen.T, error)

	// ListDue 查询到期未发送的提醒
	//
	// SELECT * FROM @@table
	// WHERE status = 'scheduled'
	//   AND scheduled_at <= NOW()
	// ORDER BY id ASC
	// LIMIT @limit
	ListDue(limit int) ([]*gen.T, error)

	// ListStale 查询超过阈值仍未回复的提醒
	//
	// SELECT * FROM @@table
	// WHERE status = 'sent'
	//   AND sent_at <= NOW() - (@hours * INTERVAL '1 hour')
	// ORDER BY id ASC
	ListStale(hours int) ([]*gen.T, error)

	// CountByStatus 按状态统计
	//
	// SELECT status, COUNT(*) as count
	// FROM @@table
	// GROUP BY status
	CountByStatus() ([]gen.M, error)
}

// ========== DeliveryAttempt 相关查询接口 ==========

// DeliveryAttemptQuerier 投递审计查询接口
type DeliveryAttemptQuerier interface {
	// ListByRecipient 查询某接收方最近的投递记录
	//
	// SELECT * FROM @@table
	// WHERE recipient = @recipient
	// ORDER BY attempted_at DESC
	// LIMIT @limit
	ListByRecipient(recipient string, limit int) ([]*gen.T, error)

	// CountFailuresSince 统计某时间之后各失败原因的次数
	//
	// SELECT reason_code, COUNT(*) as count
	// FROM @@table
	// WHERE outcome <> 'success'
	//   AND attempted_at >= @since
	// GROUP BY reason_code
	CountFailuresSince(since string) ([]gen.M, error)
}

// Generate 生成 internal/repository/query 下的查询代码
func Generate(db *gorm.DB, outPath string) error {
	if db == nil {
		return errors.ErrDatabaseConnectionNil
	}
	if outPath == "" {
		outPath = "./internal/repository/query"
	}

	g := gen.NewGenerator(gen.Config{
		OutPath:           outPath,
		ModelPkgPath:      "CareFollow/internal/model",
		Mode:              gen.WithDefaultQuery | gen.WithQueryInterface,
		FieldNullable:     true,
		FieldCoverable:    false,
		FieldSignable:     false,
		FieldWithIndexTag: false,
		FieldWithTypeTag:  true,
	})

	g.UseDB(db)

	g.ApplyBasic(
		&model.ReminderRecord{},
		&model.DeliveryAttempt{},
	)

	g.ApplyInterface(func(ReminderQuerier) {}, &model.ReminderRecord{})
	g.ApplyInterface(func(DeliveryAttemptQuerier) {}, &model.DeliveryAttempt{})

	g.Execute()

	fmt.Println("Code generation completed:", outPath)
	return nil
}
