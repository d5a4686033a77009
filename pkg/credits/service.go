package credits

import (
	"context"
	"fmt"
	"time"
)

// Service contains the ledger domain logic over a Store. It holds no state of
// its own: every invocation reads fresh and relies on the store's per-key
// atomicity for correctness.
type Service struct {
	store  Store
	nowFn  func() time.Time
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// GetOrCreateAccount reads the user record, creating it with the starting
// grant when absent.
func (service *Service) GetOrCreateAccount(ctx context.Context, userID UserID) (Account, error) {
	fields, err := service.ensureAccount(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	balance, err := service.Balance(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	return Account{
		UserID:         userID,
		Credits:        balance,
		LastShareDate:  fields[fieldLastShareDate],
		GiftCursor:     coerceInt(fields[fieldGiftCursor]),
		CreatedUnixUTC: coerceInt(fields[fieldCreatedAt]),
		UpdatedUnixUTC: coerceInt(fields[fieldUpdatedAt]),
	}, nil
}

// ensureAccount creates the user record with the starting grant when it does
// not exist yet, returning the record's hash fields. Creation is keyed on the
// created_at field rather than hash emptiness, and every mutating operation
// runs through here: the account is created lazily on first reference no
// matter which operation touches the user first, and a partial record left by
// an operation that raced the first bootstrap still receives the grant.
// Concurrent creation converges because the defaults are deterministic and
// the starting balance is written with set-if-absent. Fields already present
// are never overwritten except updated_at.
func (service *Service) ensureAccount(ctx context.Context, userID UserID) (map[string]string, error) {
	fields, err := service.store.HashGetAll(ctx, userKey(userID))
	if err != nil {
		return nil, err
	}
	if fields[fieldCreatedAt] != "" {
		return fields, nil
	}
	nowUnixUTC := service.nowFn().UTC().Unix()
	if _, err := service.store.SetIfAbsent(ctx, balanceKey(userID), formatInt(StartingCredits.Int64()), 0); err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationGetOrCreate, UserID: userID.String(), Error: err})
		return nil, err
	}
	updates := map[string]string{
		fieldCreatedAt: formatInt(nowUnixUTC),
		fieldUpdatedAt: formatInt(nowUnixUTC),
	}
	if _, ok := fields[fieldLastShareDate]; !ok {
		updates[fieldLastShareDate] = ""
	}
	if _, ok := fields[fieldGiftCursor]; !ok {
		updates[fieldGiftCursor] = "0"
	}
	if err := service.store.HashSet(ctx, userKey(userID), updates); err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationGetOrCreate, UserID: userID.String(), Error: err})
		return nil, err
	}
	if _, err := service.store.SetAdd(ctx, usersIndexKey, userID.String()); err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationGetOrCreate, UserID: userID.String(), Error: err})
		return nil, err
	}
	service.logOperation(ctx, OperationLog{Operation: operationGetOrCreate, UserID: userID.String(), Amount: StartingCredits})
	for field, value := range updates {
		fields[field] = value
	}
	return fields, nil
}

// AccountExists reports whether the user is a known account holder without
// creating a record.
func (service *Service) AccountExists(ctx context.Context, userID UserID) (bool, error) {
	return service.store.SetIsMember(ctx, usersIndexKey, userID.String())
}

// Balance returns the current balance, clamped to zero. A transiently
// negative stored value (mid-compensation, or after a negative award) is
// never surfaced.
func (service *Service) Balance(ctx context.Context, userID UserID) (Credits, error) {
	raw, found, err := service.store.Get(ctx, balanceKey(userID))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	balance := Credits(coerceInt(raw))
	if balance < 0 {
		balance = 0
	}
	return balance, nil
}

// Spend atomically debits the balance. The decrement happens first and is
// compensated when the result goes negative: concurrent spenders racing near
// zero are serialized by the store's increment, so at most one can end up
// non-negative. Callers see a brief window (one round trip) where the stored
// balance may be negative.
func (service *Service) Spend(ctx context.Context, userID UserID, amount Credits) (SpendResult, error) {
	if amount <= 0 {
		return SpendResult{}, fmt.Errorf("%w: spend amount must be positive, got %d", ErrInvalidAmount, amount)
	}
	if _, err := service.ensureAccount(ctx, userID); err != nil {
		return SpendResult{}, err
	}
	balanceAfter, err := service.store.IncrBy(ctx, balanceKey(userID), -amount.Int64())
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationSpend, UserID: userID.String(), Amount: amount, Error: err})
		return SpendResult{}, err
	}
	if balanceAfter < 0 {
		restored, err := service.store.IncrBy(ctx, balanceKey(userID), amount.Int64())
		if err != nil {
			service.logOperation(ctx, OperationLog{Operation: operationSpend, UserID: userID.String(), Amount: amount, Error: err})
			return SpendResult{}, err
		}
		result := SpendResult{OK: false, Balance: clampCredits(restored)}
		service.logOperation(ctx, OperationLog{Operation: operationSpend, UserID: userID.String(), Amount: amount, Status: operationStatusSkipped})
		return result, nil
	}
	service.logOperation(ctx, OperationLog{Operation: operationSpend, UserID: userID.String(), Amount: amount})
	return SpendResult{OK: true, Balance: Credits(balanceAfter)}, nil
}

// Refund reverses a prior charge after a downstream failure. Refunds are
// trusted: only the caller that originally spent issues them, and no upper
// bound is enforced.
func (service *Service) Refund(ctx context.Context, userID UserID, amount Credits) (Credits, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: refund amount must be positive, got %d", ErrInvalidAmount, amount)
	}
	if _, err := service.ensureAccount(ctx, userID); err != nil {
		return 0, err
	}
	balanceAfter, err := service.store.IncrBy(ctx, balanceKey(userID), amount.Int64())
	service.logOperation(ctx, OperationLog{Operation: operationRefund, UserID: userID.String(), Amount: amount, Error: err})
	if err != nil {
		return 0, err
	}
	return clampCredits(balanceAfter), nil
}

// Award credits (or, for administrative penalties, debits) the balance. The
// non-negative floor still holds: a result below zero is reset so a negative
// value is never left stored.
func (service *Service) Award(ctx context.Context, userID UserID, amount Credits) (Credits, error) {
	if _, err := service.ensureAccount(ctx, userID); err != nil {
		return 0, err
	}
	balance, err := service.adjustBalance(ctx, userID, amount)
	service.logOperation(ctx, OperationLog{Operation: operationAward, UserID: userID.String(), Amount: amount, Error: err})
	return balance, err
}

// adjustBalance applies a signed delta and enforces the non-negative floor.
// Operations composing an award into a larger unit (transaction crediting,
// bonus, gifts) call this directly so each public operation logs once.
func (service *Service) adjustBalance(ctx context.Context, userID UserID, amount Credits) (Credits, error) {
	balanceAfter, err := service.store.IncrBy(ctx, balanceKey(userID), amount.Int64())
	if err != nil {
		return 0, err
	}
	if balanceAfter < 0 {
		if err := service.store.Set(ctx, balanceKey(userID), "0", 0); err != nil {
			return 0, err
		}
		balanceAfter = 0
	}
	return Credits(balanceAfter), nil
}

// WasTransactionCounted reports whether a transaction has already triggered a
// credit award.
func (service *Service) WasTransactionCounted(ctx context.Context, txID TxID) (bool, error) {
	_, found, err := service.store.Get(ctx, txKey(txID))
	if err != nil {
		return false, err
	}
	return found, nil
}

// CreditTransaction awards credit for a verified on-chain transaction at most
// once. A single atomic set-if-absent marker is the gate: the invocation that
// wins the marker performs the award, every other sees Credited=false. When
// the gate itself cannot be consulted no credit is awarded.
func (service *Service) CreditTransaction(ctx context.Context, userID UserID, txID TxID, amount Credits) (TxCreditResult, error) {
	if amount <= 0 {
		return TxCreditResult{}, fmt.Errorf("%w: transaction award must be positive, got %d", ErrInvalidAmount, amount)
	}
	if _, err := service.ensureAccount(ctx, userID); err != nil {
		return TxCreditResult{}, err
	}
	won, err := service.store.SetIfAbsent(ctx, txKey(txID), "1", TxRetention)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationCreditTx, UserID: userID.String(), Amount: amount, Reference: txID.String(), Error: err})
		return TxCreditResult{}, err
	}
	if !won {
		balance, err := service.Balance(ctx, userID)
		if err != nil {
			return TxCreditResult{}, err
		}
		service.logOperation(ctx, OperationLog{Operation: operationCreditTx, UserID: userID.String(), Amount: amount, Reference: txID.String(), Status: operationStatusSkipped})
		return TxCreditResult{Credited: false, Balance: balance}, nil
	}
	balance, err := service.adjustBalance(ctx, userID, amount)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationCreditTx, UserID: userID.String(), Amount: amount, Reference: txID.String(), Error: err})
		return TxCreditResult{}, err
	}
	service.logOperation(ctx, OperationLog{Operation: operationCreditTx, UserID: userID.String(), Amount: amount, Reference: txID.String()})
	return TxCreditResult{Credited: true, Balance: balance}, nil
}

// CanClaimDailyBonus compares the stored last-share date with the current UTC
// calendar day. Day boundaries are strictly UTC: 23:59 and 00:01 around
// midnight fall on different days.
func (service *Service) CanClaimDailyBonus(ctx context.Context, userID UserID) (bool, string, error) {
	today := service.todayUTC()
	fields, err := service.store.HashGetAll(ctx, userKey(userID))
	if err != nil {
		return false, today, err
	}
	return fields[fieldLastShareDate] != today, today, nil
}

// ClaimDailyBonus awards the bonus once per UTC calendar day. The check and
// the date write are two round trips; two claims landing in the same instant
// can both pass, which is accepted over the cost of a distributed lock.
func (service *Service) ClaimDailyBonus(ctx context.Context, userID UserID, bonus Credits) (BonusResult, error) {
	if bonus <= 0 {
		return BonusResult{}, fmt.Errorf("%w: bonus amount must be positive, got %d", ErrInvalidAmount, bonus)
	}
	today := service.todayUTC()
	fields, err := service.ensureAccount(ctx, userID)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationDailyBonus, UserID: userID.String(), Amount: bonus, Reference: today, Error: err})
		return BonusResult{}, err
	}
	if fields[fieldLastShareDate] == today {
		balance, err := service.Balance(ctx, userID)
		if err != nil {
			return BonusResult{}, err
		}
		service.logOperation(ctx, OperationLog{Operation: operationDailyBonus, UserID: userID.String(), Amount: bonus, Reference: today, Status: operationStatusSkipped})
		return BonusResult{OK: false, Balance: balance, Today: today}, nil
	}
	updates := map[string]string{
		fieldLastShareDate: today,
		fieldUpdatedAt:     formatInt(service.nowFn().UTC().Unix()),
	}
	if err := service.store.HashSet(ctx, userKey(userID), updates); err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationDailyBonus, UserID: userID.String(), Amount: bonus, Reference: today, Error: err})
		return BonusResult{}, err
	}
	balance, err := service.adjustBalance(ctx, userID, bonus)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationDailyBonus, UserID: userID.String(), Amount: bonus, Reference: today, Error: err})
		return BonusResult{}, err
	}
	service.logOperation(ctx, OperationLog{Operation: operationDailyBonus, UserID: userID.String(), Amount: bonus, Reference: today})
	return BonusResult{OK: true, Balance: balance, Today: today}, nil
}

func (service *Service) todayUTC() string {
	return service.nowFn().UTC().Format(dateLayoutUTC)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func clampCredits(raw int64) Credits {
	if raw < 0 {
		return 0
	}
	return Credits(raw)
}
