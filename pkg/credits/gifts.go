package credits

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// IssueGlobalGift queues a credit adjustment visible to every user whose
// cursor is below the new gift id. Amount may be negative (penalty) but not
// zero.
func (service *Service) IssueGlobalGift(ctx context.Context, amount Credits, message string) (Gift, error) {
	return service.issueGift(ctx, Gift{Amount: amount, Message: message, Kind: GiftKindGlobal}, UserID{})
}

// IssueTargetedGift queues a credit adjustment for one user, consumed exactly
// once by that user's next gift application.
func (service *Service) IssueTargetedGift(ctx context.Context, target UserID, amount Credits, message string) (Gift, error) {
	return service.issueGift(ctx, Gift{Amount: amount, Message: message, Kind: GiftKindTargeted, TargetUserID: target.String()}, target)
}

func (service *Service) issueGift(ctx context.Context, gift Gift, target UserID) (Gift, error) {
	if gift.Amount == 0 {
		return Gift{}, fmt.Errorf("%w: gift amount must be non-zero", ErrInvalidAmount)
	}
	id, err := service.store.IncrBy(ctx, giftSequenceKey, 1)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationIssueGift, UserID: gift.TargetUserID, Amount: gift.Amount, Error: err})
		return Gift{}, err
	}
	gift.ID = id
	gift.CreatedUnixUTC = service.nowFn().UTC().Unix()
	payload, err := json.Marshal(gift)
	if err != nil {
		return Gift{}, WrapError(operationIssueGift, "gift", "encode", err)
	}
	switch gift.Kind {
	case GiftKindGlobal:
		err = service.store.SortedSetAdd(ctx, globalGiftsKey, float64(id), string(payload))
	case GiftKindTargeted:
		err = service.store.ListPush(ctx, pendingGiftsKey(target), string(payload))
	default:
		return Gift{}, fmt.Errorf("%w: %q", ErrInvalidGiftKind, gift.Kind)
	}
	service.logOperation(ctx, OperationLog{Operation: operationIssueGift, UserID: gift.TargetUserID, Amount: gift.Amount, Reference: formatInt(id), Error: err})
	if err != nil {
		return Gift{}, err
	}
	return gift, nil
}

// ApplyPendingGifts applies every outstanding gift for the user: global gifts
// above the user's cursor (at most GiftBatchLimit per pass) plus the user's
// pending targeted gifts (same cap; leftovers survive for the next pass).
// Applied as one logical update: award the combined total, persist the
// advanced cursor, and only then trim the consumed entries off the targeted
// list, so a crash before the award loses nothing. The engine is pull-based;
// a user who never triggers it receives nothing.
func (service *Service) ApplyPendingGifts(ctx context.Context, userID UserID) (GiftApplication, error) {
	fields, err := service.ensureAccount(ctx, userID)
	if err != nil {
		return GiftApplication{}, err
	}
	cursor := coerceInt(fields[fieldGiftCursor])

	// Gift reads degrade to "no gifts found" on store trouble: gifting is a
	// non-critical feature and must not fail the surrounding request.
	var total Credits
	globalApplied := 0
	maxID := cursor
	members, err := service.store.SortedSetRangeByScore(ctx, globalGiftsKey, float64(cursor+1), math.Inf(1), GiftBatchLimit)
	if err != nil {
		members = nil
	}
	for _, member := range members {
		gift, ok := decodeGift(member)
		if !ok || gift.ID <= cursor {
			continue
		}
		total += gift.Amount
		globalApplied++
		if gift.ID > maxID {
			maxID = gift.ID
		}
	}

	targetedApplied := 0
	pending, err := service.store.ListRange(ctx, pendingGiftsKey(userID), 0, GiftBatchLimit-1)
	if err != nil {
		pending = nil
	}
	consumed := len(pending)
	for _, value := range pending {
		gift, ok := decodeGift(value)
		if !ok {
			continue
		}
		total += gift.Amount
		targetedApplied++
	}

	if total == 0 && maxID == cursor && consumed == 0 {
		balance, err := service.Balance(ctx, userID)
		if err != nil {
			return GiftApplication{}, err
		}
		return GiftApplication{Cursor: cursor, Balance: balance}, nil
	}

	balance, err := service.adjustBalance(ctx, userID, total)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationApplyGifts, UserID: userID.String(), Amount: total, Error: err})
		return GiftApplication{}, err
	}
	updates := map[string]string{
		fieldGiftCursor: formatInt(maxID),
		fieldUpdatedAt:  formatInt(service.nowFn().UTC().Unix()),
	}
	if err := service.store.HashSet(ctx, userKey(userID), updates); err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationApplyGifts, UserID: userID.String(), Amount: total, Error: err})
		return GiftApplication{}, err
	}
	if consumed > 0 {
		if err := service.store.ListTrim(ctx, pendingGiftsKey(userID), int64(consumed), -1); err != nil {
			service.logOperation(ctx, OperationLog{Operation: operationApplyGifts, UserID: userID.String(), Amount: total, Error: err})
			return GiftApplication{}, err
		}
	}
	service.logOperation(ctx, OperationLog{Operation: operationApplyGifts, UserID: userID.String(), Amount: total, Reference: formatInt(maxID)})
	return GiftApplication{
		Total:           total,
		Cursor:          maxID,
		GlobalApplied:   globalApplied,
		TargetedApplied: targetedApplied,
		Balance:         balance,
	}, nil
}

// ListGlobalGifts returns global gifts with ids above sinceID, oldest first.
func (service *Service) ListGlobalGifts(ctx context.Context, sinceID int64, limit int) ([]Gift, error) {
	if limit <= 0 || limit > GiftBatchLimit {
		limit = GiftBatchLimit
	}
	members, err := service.store.SortedSetRangeByScore(ctx, globalGiftsKey, float64(sinceID+1), math.Inf(1), limit)
	if err != nil {
		return nil, err
	}
	gifts := make([]Gift, 0, len(members))
	for _, member := range members {
		if gift, ok := decodeGift(member); ok {
			gifts = append(gifts, gift)
		}
	}
	return gifts, nil
}

func decodeGift(raw string) (Gift, bool) {
	var gift Gift
	if err := json.Unmarshal([]byte(raw), &gift); err != nil {
		return Gift{}, false
	}
	return gift, true
}
