package credits

import "time"

const (
	operationGetOrCreate = "get_or_create"
	operationSpend       = "spend"
	operationRefund      = "refund"
	operationAward       = "award"
	operationCreditTx    = "credit_tx"
	operationDailyBonus  = "daily_bonus"
	operationApplyGifts  = "apply_gifts"
	operationIssueGift   = "issue_gift"

	operationStatusOK      = "ok"
	operationStatusError   = "error"
	operationStatusSkipped = "skipped"

	// StartingCredits is the fixed grant given to every new account.
	StartingCredits Credits = 10

	// TxRetention is how long a counted transaction marker is kept. A replay
	// after this window would be credited again; on-chain hashes are not
	// legitimately replayed months later.
	TxRetention = 90 * 24 * time.Hour

	// GiftBatchLimit caps how many gifts one apply pass processes, bounding a
	// single request against an unbounded backlog.
	GiftBatchLimit = 100

	dateLayoutUTC = "2006-01-02"
)
