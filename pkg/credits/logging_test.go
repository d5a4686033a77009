package credits

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func TestServiceLogsSpendOperation(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	logger := &recorderLogger{}
	service, err := NewService(store, time.Now, WithOperationLogger(logger))
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	userID := mustAccountWithBalance(test, service, "fid:1", 10)
	logger.entries = nil

	if _, err := service.Spend(context.Background(), userID, 4); err != nil {
		test.Fatalf("spend failed: %v", err)
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != operationSpend || entry.UserID != userID.String() || entry.Amount != 4 {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Error != nil || entry.Status != operationStatusOK {
		test.Fatalf("expected successful log entry, got %+v", entry)
	}
}

func TestServiceLogsSkippedStatusOnOverspend(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	logger := &recorderLogger{}
	service, err := NewService(store, time.Now, WithOperationLogger(logger))
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	userID := mustAccountWithBalance(test, service, "fid:1", 3)
	logger.entries = nil

	if _, err := service.Spend(context.Background(), userID, 5); err != nil {
		test.Fatalf("spend failed: %v", err)
	}
	if len(logger.entries) != 1 || logger.entries[0].Status != operationStatusSkipped {
		test.Fatalf("expected skipped status, got %+v", logger.entries)
	}
}

func TestServiceLogsErrorStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	logger := &recorderLogger{}
	service, err := NewService(store, time.Now, WithOperationLogger(logger))
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	userID := mustAccountWithBalance(test, service, "fid:1", 10)
	logger.entries = nil
	store.failures["IncrBy"] = errors.New("boom")

	if _, err := service.Spend(context.Background(), userID, 4); err == nil {
		test.Fatalf("expected error")
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	if logger.entries[0].Status != operationStatusError || logger.entries[0].Error == nil {
		test.Fatalf("expected error log entry, got %+v", logger.entries[0])
	}
}
