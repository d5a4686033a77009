package credits

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestApplyGlobalGiftsAdvancesCursorMonotonically(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustAccountWithBalance(test, service, "fid:1", 0)
	seedGlobalGift(test, store, Gift{ID: 3, Amount: 9, Kind: GiftKindGlobal})
	seedGlobalGift(test, store, Gift{ID: 6, Amount: 2, Kind: GiftKindGlobal})
	seedGlobalGift(test, store, Gift{ID: 7, Amount: 3, Kind: GiftKindGlobal})
	store.hashes[userKey(userID)][fieldGiftCursor] = "5"

	application, err := service.ApplyPendingGifts(context.Background(), userID)
	if err != nil {
		test.Fatalf("apply: %v", err)
	}
	if application.Total != 5 {
		test.Fatalf("expected total 5 (gifts 6 and 7 only), got %d", application.Total)
	}
	if application.Cursor != 7 || application.GlobalApplied != 2 {
		test.Fatalf("unexpected application: %+v", application)
	}

	rerun, err := service.ApplyPendingGifts(context.Background(), userID)
	if err != nil {
		test.Fatalf("rerun: %v", err)
	}
	if rerun.Total != 0 || rerun.Cursor != 7 || rerun.GlobalApplied != 0 {
		test.Fatalf("expected no-op rerun, got %+v", rerun)
	}
	if rerun.Balance != 5 {
		test.Fatalf("expected balance 5 after single application, got %d", rerun.Balance)
	}
}

func TestApplyTargetedGiftsConsumesOnce(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustAccountWithBalance(test, service, "fid:1", 0)
	if _, err := service.IssueTargetedGift(context.Background(), userID, 1, "welcome"); err != nil {
		test.Fatalf("issue: %v", err)
	}
	if _, err := service.IssueTargetedGift(context.Background(), userID, 3, "compensation"); err != nil {
		test.Fatalf("issue: %v", err)
	}

	application, err := service.ApplyPendingGifts(context.Background(), userID)
	if err != nil {
		test.Fatalf("apply: %v", err)
	}
	if application.Total != 4 || application.TargetedApplied != 2 || application.Balance != 4 {
		test.Fatalf("unexpected application: %+v", application)
	}

	rerun, err := service.ApplyPendingGifts(context.Background(), userID)
	if err != nil {
		test.Fatalf("rerun: %v", err)
	}
	if rerun.Total != 0 || rerun.TargetedApplied != 0 || rerun.Balance != 4 {
		test.Fatalf("expected empty second apply, got %+v", rerun)
	}
}

func TestApplyCombinedGiftsAsOneUpdate(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustAccountWithBalance(test, service, "fid:1", 10)
	if _, err := service.IssueGlobalGift(context.Background(), 5, "airdrop"); err != nil {
		test.Fatalf("issue global: %v", err)
	}
	if _, err := service.IssueTargetedGift(context.Background(), userID, -2, "penalty"); err != nil {
		test.Fatalf("issue targeted: %v", err)
	}

	application, err := service.ApplyPendingGifts(context.Background(), userID)
	if err != nil {
		test.Fatalf("apply: %v", err)
	}
	if application.Total != 3 || application.Balance != 13 {
		test.Fatalf("unexpected application: %+v", application)
	}
	if application.GlobalApplied != 1 || application.TargetedApplied != 1 {
		test.Fatalf("unexpected counts: %+v", application)
	}
	if application.Cursor != 1 {
		test.Fatalf("expected cursor at first gift id, got %d", application.Cursor)
	}
}

func TestApplyNegativeGiftTotalFloorsAtZero(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustAccountWithBalance(test, service, "fid:1", 2)
	if _, err := service.IssueGlobalGift(context.Background(), -5, "clawback"); err != nil {
		test.Fatalf("issue: %v", err)
	}

	application, err := service.ApplyPendingGifts(context.Background(), userID)
	if err != nil {
		test.Fatalf("apply: %v", err)
	}
	if application.Balance != 0 {
		test.Fatalf("expected floored balance 0, got %d", application.Balance)
	}
	if application.Cursor != 1 {
		test.Fatalf("expected cursor advanced past clawback, got %d", application.Cursor)
	}
}

func TestApplyGiftReadFailureDegradesToNoGifts(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustAccountWithBalance(test, service, "fid:1", 7)
	if _, err := service.IssueGlobalGift(context.Background(), 5, "airdrop"); err != nil {
		test.Fatalf("issue: %v", err)
	}
	store.failures["SortedSetRangeByScore"] = errors.New("zset down")
	store.failures["ListRange"] = errors.New("list down")

	application, err := service.ApplyPendingGifts(context.Background(), userID)
	if err != nil {
		test.Fatalf("expected degraded apply to succeed, got %v", err)
	}
	if application.Total != 0 || application.Balance != 7 {
		test.Fatalf("expected no gifts applied, got %+v", application)
	}
}

func TestApplySkipsMalformedGiftPayloads(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustAccountWithBalance(test, service, "fid:1", 0)
	store.lists[pendingGiftsKey(userID)] = []string{"{garbage", mustGiftJSON(test, Gift{ID: 9, Amount: 4, Kind: GiftKindTargeted})}

	application, err := service.ApplyPendingGifts(context.Background(), userID)
	if err != nil {
		test.Fatalf("apply: %v", err)
	}
	if application.Total != 4 || application.TargetedApplied != 1 {
		test.Fatalf("expected only the valid gift applied, got %+v", application)
	}
}

func TestApplyGiftsBeforeBootstrapKeepsStartingGrant(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustUserID(test, "fid:9")
	if _, err := service.IssueGlobalGift(context.Background(), 5, "airdrop"); err != nil {
		test.Fatalf("issue: %v", err)
	}

	application, err := service.ApplyPendingGifts(context.Background(), userID)
	if err != nil {
		test.Fatalf("apply: %v", err)
	}
	if application.Total != 5 || application.Balance != 15 {
		test.Fatalf("expected starting grant plus gift, got %+v", application)
	}

	account, err := service.GetOrCreateAccount(context.Background(), userID)
	if err != nil {
		test.Fatalf("get or create: %v", err)
	}
	if account.Credits != 15 {
		test.Fatalf("expected balance 15 after late bootstrap, got %d", account.Credits)
	}
}

func TestApplyTargetedBacklogSurvivesBatchLimit(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	userID := mustAccountWithBalance(test, service, "fid:1", 0)
	for i := 0; i < GiftBatchLimit+5; i++ {
		if _, err := service.IssueTargetedGift(context.Background(), userID, 1, "drip"); err != nil {
			test.Fatalf("issue: %v", err)
		}
	}

	first, err := service.ApplyPendingGifts(context.Background(), userID)
	if err != nil {
		test.Fatalf("first apply: %v", err)
	}
	if first.TargetedApplied != GiftBatchLimit || first.Total != GiftBatchLimit {
		test.Fatalf("expected one full batch, got %+v", first)
	}

	second, err := service.ApplyPendingGifts(context.Background(), userID)
	if err != nil {
		test.Fatalf("second apply: %v", err)
	}
	if second.TargetedApplied != 5 || second.Total != 5 {
		test.Fatalf("expected the backlog remainder, got %+v", second)
	}
	if second.Balance != GiftBatchLimit+5 {
		test.Fatalf("expected every queued gift credited, got %d", second.Balance)
	}
}

func TestIssueGiftsAllocateSequentialIDs(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	target := mustUserID(test, "addr:0x00112233445566778899aabbccddeeff00112233")

	first, err := service.IssueGlobalGift(context.Background(), 5, "one")
	if err != nil {
		test.Fatalf("issue global: %v", err)
	}
	second, err := service.IssueTargetedGift(context.Background(), target, 2, "two")
	if err != nil {
		test.Fatalf("issue targeted: %v", err)
	}
	if first.ID != 1 || second.ID != 2 {
		test.Fatalf("expected ids 1 and 2 from the shared sequence, got %d and %d", first.ID, second.ID)
	}
	if second.Kind != GiftKindTargeted || second.TargetUserID != target.String() {
		test.Fatalf("unexpected targeted gift: %+v", second)
	}
}

func TestIssueGiftRejectsZeroAmount(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	if _, err := service.IssueGlobalGift(context.Background(), 0, "nothing"); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestListGlobalGifts(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	service := mustNewService(test, store)
	if _, err := service.IssueGlobalGift(context.Background(), 5, "one"); err != nil {
		test.Fatalf("issue: %v", err)
	}
	if _, err := service.IssueGlobalGift(context.Background(), 7, "two"); err != nil {
		test.Fatalf("issue: %v", err)
	}

	gifts, err := service.ListGlobalGifts(context.Background(), 1, 10)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(gifts) != 1 || gifts[0].Message != "two" {
		test.Fatalf("expected only the second gift, got %+v", gifts)
	}
}

func seedGlobalGift(test *testing.T, store *stubStore, gift Gift) {
	test.Helper()
	payload := mustGiftJSON(test, gift)
	if err := store.SortedSetAdd(context.Background(), globalGiftsKey, float64(gift.ID), payload); err != nil {
		test.Fatalf("seed gift: %v", err)
	}
}

func mustGiftJSON(test *testing.T, gift Gift) string {
	test.Helper()
	payload, err := json.Marshal(gift)
	if err != nil {
		test.Fatalf("encode gift: %v", err)
	}
	return string(payload)
}
