// Package auditlog persists ledger operation logs to a relational database.
package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/remixcast/creditledger/pkg/credits"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
)

// Logger writes one audit row per ledger operation. It implements
// credits.OperationLogger; failures are reported through zap rather than
// surfaced, because the audit trail must never fail the ledger operation it
// describes.
type Logger struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ credits.OperationLogger = (*Logger)(nil)

// New returns a Logger writing to db.
func New(db *gorm.DB, logger *zap.Logger) *Logger {
	return &Logger{db: db, logger: logger}
}

// LogOperation records the entry, swallowing duplicate-reference conflicts.
func (auditLogger *Logger) LogOperation(ctx context.Context, entry credits.OperationLog) {
	record := OperationRecord{
		Operation: entry.Operation,
		UserID:    entry.UserID,
		Amount:    entry.Amount.Int64(),
		Reference: referenceOrNil(entry.Reference),
		Status:    entry.Status,
		Detail:    detailJSON(entry),
		CreatedAt: time.Now().UTC(),
	}
	err := auditLogger.db.WithContext(ctx).Create(&record).Error
	if err == nil || isUniqueViolation(err) {
		return
	}
	auditLogger.logger.Warn("audit write failed",
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID),
		zap.Error(err),
	)
}

// Open resolves a DSN to a sqlite or postgres connection. Supported forms:
// postgres://..., sqlite://path, or a bare sqlite path.
func Open(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported audit database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	if driver == "sqlite" {
		if err := db.AutoMigrate(&OperationRecord{}); err != nil {
			return nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		// ":memory:" is not a parseable authority
		if trimmed := strings.TrimPrefix(dsn, "sqlite://"); trimmed == ":memory:" {
			return "sqlite", ":memory:", nil
		}
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Path
		if path == "" {
			path = parsed.Host
		}
		if path == "" || path == "/" {
			path = "audit.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func referenceOrNil(reference string) *string {
	if strings.TrimSpace(reference) == "" {
		return nil
	}
	return &reference
}

func detailJSON(entry credits.OperationLog) datatypes.JSON {
	detail := map[string]string{}
	if entry.Error != nil {
		detail["error"] = entry.Error.Error()
	}
	if len(detail) == 0 {
		return nil
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return nil
	}
	return datatypes.JSON(payload)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
