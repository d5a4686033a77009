package credits

import "strconv"

// Key schema. Everything the ledger stores lives under the credits: prefix.
const (
	keyPrefix       = "credits:"
	usersIndexKey   = keyPrefix + "users"
	giftSequenceKey = keyPrefix + "gifts:seq"
	globalGiftsKey  = keyPrefix + "gifts:global"
)

func userKey(userID UserID) string {
	return keyPrefix + "user:" + userID.String()
}

func balanceKey(userID UserID) string {
	return userKey(userID) + ":balance"
}

func txKey(txID TxID) string {
	return keyPrefix + "tx:" + txID.String()
}

func pendingGiftsKey(userID UserID) string {
	return keyPrefix + "gifts:pending:" + userID.String()
}

// User record hash fields.
const (
	fieldCreatedAt     = "created_at"
	fieldUpdatedAt     = "updated_at"
	fieldLastShareDate = "last_share_date"
	fieldGiftCursor    = "gift_cursor"
)

// coerceInt parses a stored numeric string, defaulting to 0 for missing or
// malformed values. Manual store edits and partial writes must not wedge the
// ledger.
func coerceInt(raw string) int64 {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func formatInt(value int64) string {
	return strconv.FormatInt(value, 10)
}
