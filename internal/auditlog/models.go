package auditlog

import (
	"time"

	"gorm.io/datatypes"
)

// OperationRecord is one row of the operation audit trail. The unique index
// on (operation, user, reference, status) collapses replayed idempotent
// submissions: a transaction hash or bonus date skipped on every retry
// produces one row per user and outcome. Rows without a reference are never
// deduplicated.
type OperationRecord struct {
	RecordID  uint64         `gorm:"primaryKey;autoIncrement"`
	Operation string         `gorm:"not null;index:uniq_audit_operation_reference,unique,priority:1"`
	UserID    string         `gorm:"index:uniq_audit_operation_reference,unique,priority:2"`
	Amount    int64          `gorm:"not null"`
	Reference *string        `gorm:"index:uniq_audit_operation_reference,unique,priority:3"`
	Status    string         `gorm:"not null;index:uniq_audit_operation_reference,unique,priority:4"`
	Detail    datatypes.JSON `gorm:""`
	CreatedAt time.Time      `gorm:"not null"`
}

func (OperationRecord) TableName() string { return "operation_audit" }
