package credits

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Credits is an integer amount of usage entitlement. No fractional credits exist.
type Credits int64

// Int64 returns the raw amount.
func (amount Credits) Int64() int64 {
	return int64(amount)
}

// UserID identifies an account holder. Normalized forms are
// "fid:<farcaster id>" and "addr:<lowercased 0x address>".
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	lowered := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lowered, "fid:"):
		digits := strings.TrimPrefix(lowered, "fid:")
		parsed, err := strconv.ParseInt(digits, 10, 64)
		if err != nil || parsed <= 0 {
			return UserID{}, fmt.Errorf("%w: malformed farcaster id %q", ErrInvalidUserID, raw)
		}
		return UserID{value: "fid:" + strconv.FormatInt(parsed, 10)}, nil
	case strings.HasPrefix(lowered, "addr:"):
		address := strings.TrimPrefix(lowered, "addr:")
		if !isHexAddress(address) {
			return UserID{}, fmt.Errorf("%w: malformed wallet address %q", ErrInvalidUserID, raw)
		}
		return UserID{value: "addr:" + address}, nil
	default:
		return UserID{}, fmt.Errorf("%w: expected fid: or addr: prefix, got %q", ErrInvalidUserID, raw)
	}
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

func isHexAddress(address string) bool {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") {
		return false
	}
	for _, character := range address[2:] {
		switch {
		case character >= '0' && character <= '9':
		case character >= 'a' && character <= 'f':
		default:
			return false
		}
	}
	return true
}

// TxID identifies an external on-chain transaction. Case-insensitive,
// normalized to lowercase.
type TxID struct {
	value string
}

// NewTxID validates and case-folds a transaction identifier.
func NewTxID(raw string) (TxID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TxID{}, fmt.Errorf("%w: empty value", ErrInvalidTxID)
	}
	return TxID{value: strings.ToLower(trimmed)}, nil
}

// String returns the normalized identifier.
func (id TxID) String() string {
	return id.value
}

// Account is a snapshot of one user record.
type Account struct {
	UserID         UserID
	Credits        Credits
	LastShareDate  string // UTC calendar date YYYY-MM-DD, empty when never claimed
	GiftCursor     int64  // highest global gift id already applied
	CreatedUnixUTC int64
	UpdatedUnixUTC int64
}

// GiftKind distinguishes broadcast gifts from per-user gifts.
type GiftKind string

const (
	GiftKindGlobal   GiftKind = "global"
	GiftKindTargeted GiftKind = "targeted"
)

// Gift is an admin-issued credit adjustment. Amounts may be negative
// (penalties).
type Gift struct {
	ID             int64    `json:"id"`
	Amount         Credits  `json:"amount"`
	Message        string   `json:"message,omitempty"`
	Kind           GiftKind `json:"kind"`
	TargetUserID   string   `json:"target_user_id,omitempty"`
	CreatedUnixUTC int64    `json:"created_unix_utc"`
}

// SpendResult reports the outcome of a spend attempt. An insufficient balance
// is an expected business outcome, not an error.
type SpendResult struct {
	OK      bool
	Balance Credits
}

// TxCreditResult reports whether a transaction award was applied or had
// already been counted.
type TxCreditResult struct {
	Credited bool
	Balance  Credits
}

// BonusResult reports a daily bonus claim attempt.
type BonusResult struct {
	OK      bool
	Balance Credits
	Today   string
}

// GiftApplication summarizes one pass of the gift engine.
type GiftApplication struct {
	Total           Credits
	Cursor          int64
	GlobalApplied   int
	TargetedApplied int
	Balance         Credits
}

// Store is the key-value persistence contract required by Service. Atomicity
// is delegated entirely to the store: IncrBy must be linearizable per key and
// SetIfAbsent must be a single atomic set-if-not-exists. A zero ttl means no
// expiry.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (won bool, err error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashSet(ctx context.Context, key string, fields map[string]string) error
	SetAdd(ctx context.Context, key string, member string) (added bool, err error)
	SetIsMember(ctx context.Context, key string, member string) (bool, error)
	SortedSetAdd(ctx context.Context, key string, score float64, member string) error
	SortedSetRangeByScore(ctx context.Context, key string, min, max float64, limit int) ([]string, error)
	ListPush(ctx context.Context, key string, value string) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ListTrim(ctx context.Context, key string, start, stop int64) error
	ListDelete(ctx context.Context, key string) error
}
