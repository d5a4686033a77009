// Package httpapi exposes the credit ledger over an authenticated HTTP
// surface.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/remixcast/creditledger/pkg/credits"
)

// Run boots the HTTP API using the supplied configuration and blocks until
// ctx is cancelled or the listener fails.
func Run(ctx context.Context, cfg Config, service *credits.Service, logger *zap.Logger) error {
	router := NewRouter(cfg, service, logger)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("credit api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter assembles the gin engine with session auth, CORS, and all ledger
// routes.
func NewRouter(cfg Config, service *credits.Service, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(sessionMiddleware(cfg))

	api.POST("/bootstrap", handler.handleBootstrap)
	api.GET("/wallet", handler.handleWallet)
	api.POST("/spend", handler.handleSpend)
	api.POST("/refund", handler.handleRefund)
	api.POST("/daily-bonus", handler.handleDailyBonus)
	api.POST("/gifts/apply", handler.handleApplyGifts)
	api.POST("/tx-credit", handler.handleTxCredit)

	admin := api.Group("/admin")
	admin.Use(requireAdmin())
	admin.POST("/gifts", handler.handleIssueGift)
	admin.GET("/gifts", handler.handleListGifts)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *credits.Service
	cfg     Config
}

func (handler *httpHandler) handleBootstrap(ctx *gin.Context) {
	userID, ok := handler.sessionUserID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	account, err := handler.service.GetOrCreateAccount(requestCtx, userID)
	if err != nil {
		handler.respondServiceError(ctx, err)
		return
	}
	// gift delivery is pull-based; app open is the pull
	application, err := handler.service.ApplyPendingGifts(requestCtx, userID)
	if err != nil {
		handler.respondServiceError(ctx, err)
		return
	}
	account.Credits = application.Balance
	account.GiftCursor = application.Cursor
	ctx.JSON(http.StatusOK, gin.H{
		"wallet":        accountPayloadFrom(account),
		"gifts_applied": application.Total.Int64(),
	})
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	userID, ok := handler.sessionUserID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	account, err := handler.service.GetOrCreateAccount(requestCtx, userID)
	if err != nil {
		handler.respondServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": accountPayloadFrom(account)})
}

func (handler *httpHandler) handleSpend(ctx *gin.Context) {
	userID, ok := handler.sessionUserID(ctx)
	if !ok {
		return
	}
	var request amountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with amount"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.service.Spend(requestCtx, userID, credits.Credits(request.Amount))
	if err != nil {
		handler.respondServiceError(ctx, err)
		return
	}
	if !result.OK {
		ctx.JSON(http.StatusPaymentRequired, gin.H{
			"status":  "insufficient_credits",
			"balance": result.Balance.Int64(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"balance": result.Balance.Int64(),
	})
}

func (handler *httpHandler) handleRefund(ctx *gin.Context) {
	userID, ok := handler.sessionUserID(ctx)
	if !ok {
		return
	}
	var request amountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with amount"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	balance, err := handler.service.Refund(requestCtx, userID, credits.Credits(request.Amount))
	if err != nil {
		handler.respondServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": balance.Int64()})
}

func (handler *httpHandler) handleDailyBonus(ctx *gin.Context) {
	userID, ok := handler.sessionUserID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.service.ClaimDailyBonus(requestCtx, userID, handler.cfg.DailyBonusCredits)
	if err != nil {
		handler.respondServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"claimed": result.OK,
		"today":   result.Today,
		"balance": result.Balance.Int64(),
	})
}

func (handler *httpHandler) handleApplyGifts(ctx *gin.Context) {
	userID, ok := handler.sessionUserID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	application, err := handler.service.ApplyPendingGifts(requestCtx, userID)
	if err != nil {
		handler.respondServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"total":            application.Total.Int64(),
		"cursor":           application.Cursor,
		"global_applied":   application.GlobalApplied,
		"targeted_applied": application.TargetedApplied,
		"balance":          application.Balance.Int64(),
	})
}

func (handler *httpHandler) handleTxCredit(ctx *gin.Context) {
	userID, ok := handler.sessionUserID(ctx)
	if !ok {
		return
	}
	var request txCreditRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with tx_id and amount"))
		return
	}
	txID, err := credits.NewTxID(request.TxID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_tx_id", "tx_id must be non-empty"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.service.CreditTransaction(requestCtx, userID, txID, credits.Credits(request.Amount))
	if err != nil {
		handler.respondServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"credited": result.Credited,
		"balance":  result.Balance.Int64(),
	})
}

func (handler *httpHandler) handleIssueGift(ctx *gin.Context) {
	var request issueGiftRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with amount"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	var gift credits.Gift
	var err error
	if request.TargetUserID == "" {
		gift, err = handler.service.IssueGlobalGift(requestCtx, credits.Credits(request.Amount), request.Message)
	} else {
		var target credits.UserID
		target, err = credits.NewUserID(request.TargetUserID)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_target", "target_user_id is malformed"))
			return
		}
		gift, err = handler.service.IssueTargetedGift(requestCtx, target, credits.Credits(request.Amount), request.Message)
	}
	if err != nil {
		handler.respondServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"gift": gift})
}

func (handler *httpHandler) handleListGifts(ctx *gin.Context) {
	var query listGiftsQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_query", "since_id and limit must be integers"))
		return
	}
	if query.Limit <= 0 {
		query.Limit = defaultGiftListLimit
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	gifts, err := handler.service.ListGlobalGifts(requestCtx, query.SinceID, query.Limit)
	if err != nil {
		handler.respondServiceError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"gifts": gifts})
}

// sessionUserID resolves the authenticated ledger user, writing the error
// response itself when the session is unusable.
func (handler *httpHandler) sessionUserID(ctx *gin.Context) (credits.UserID, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return credits.UserID{}, false
	}
	userID, err := credits.NewUserID(claims.Subject)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "session subject is not a ledger user"))
		return credits.UserID{}, false
	}
	return userID, true
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) respondServiceError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, credits.ErrStoreUnavailable):
		handler.logger.Error("credit store unavailable",
			zap.String("request_id", ctx.GetString(requestIDContextKey)),
			zap.Error(err),
		)
		ctx.JSON(http.StatusBadGateway, errorResponse("store_unavailable", "credit store unreachable"))
	case errors.Is(err, credits.ErrInvalidAmount),
		errors.Is(err, credits.ErrInvalidUserID),
		errors.Is(err, credits.ErrInvalidTxID),
		errors.Is(err, credits.ErrInvalidGiftKind):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
	default:
		handler.logger.Error("ledger operation failed",
			zap.String("request_id", ctx.GetString(requestIDContextKey)),
			zap.Error(err),
		)
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "operation failed"))
	}
}

// requestIDMiddleware tags each request for log correlation, honoring an
// inbound X-Request-ID when the caller already set one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := ctx.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Set(requestIDContextKey, requestID)
		ctx.Writer.Header().Set(requestIDHeader, requestID)
		ctx.Next()
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type txCreditRequest struct {
	TxID   string `json:"tx_id"`
	Amount int64  `json:"amount"`
}

type issueGiftRequest struct {
	Amount       int64  `json:"amount"`
	Message      string `json:"message"`
	TargetUserID string `json:"target_user_id"`
}

type listGiftsQuery struct {
	SinceID int64 `form:"since_id"`
	Limit   int   `form:"limit"`
}

type accountPayload struct {
	UserID         string `json:"user_id"`
	Credits        int64  `json:"credits"`
	LastShareDate  string `json:"last_share_date,omitempty"`
	GiftCursor     int64  `json:"gift_cursor"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
	UpdatedUnixUTC int64  `json:"updated_unix_utc"`
}

func accountPayloadFrom(account credits.Account) accountPayload {
	return accountPayload{
		UserID:         account.UserID.String(),
		Credits:        account.Credits.Int64(),
		LastShareDate:  account.LastShareDate,
		GiftCursor:     account.GiftCursor,
		CreatedUnixUTC: account.CreatedUnixUTC,
		UpdatedUnixUTC: account.UpdatedUnixUTC,
	}
}
