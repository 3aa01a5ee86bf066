package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/CastPay/CastPay-Backend/api/apistrings"
	models "github.com/CastPay/CastPay-Backend/api/models"
	basemodels "github.com/CastPay/CastPay-Backend/models"
	"github.com/CastPay/CastPay-Backend/services/ledger"
	"github.com/CastPay/CastPay-Backend/services/wallet"
	"github.com/CastPay/CastPay-Backend/utils"
	"github.com/gin-gonic/gin"
)

type Wallet struct {
	server *Server
}

func (w Wallet) router(server *Server) {
	w.server = server

	serverGroupV1 := server.router.Group("/api/v1/wallet")
	serverGroupV1.GET("balance", AuthenticatedMiddleware(), w.getBalance)
	serverGroupV1.POST("topup", AuthenticatedMiddleware(), w.initiateTopup)
	serverGroupV1.POST("withdraw", AuthenticatedMiddleware(), w.initiateWithdrawal)
	serverGroupV1.POST("withdraw/verify", AuthenticatedMiddleware(), w.verifyWithdrawal)
	serverGroupV1.POST("gift", AuthenticatedMiddleware(), w.sendGift)
	serverGroupV1.GET("transactions", AuthenticatedMiddleware(), w.getTransactions)
	serverGroupV1.GET("statistics", AuthenticatedMiddleware(), w.getStatistics)
}

func (w *Wallet) getBalance(ctx *gin.Context) {
	activeAccount, err := utils.GetActiveAccount(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.AccountNotFound))
		return
	}

	summary, err := w.server.wallet.GetBalance(ctx, activeAccount.AccountID)
	if err != nil {
		walletErrorResponse(ctx, w.server, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Balance Fetched Successfully", summary))
}

func (w *Wallet) initiateTopup(ctx *gin.Context) {
	request := models.TopupRequest{}
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidTopupInput))
		return
	}

	activeAccount, err := utils.GetActiveAccount(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.AccountNotFound))
		return
	}

	initiation, err := w.server.wallet.InitiateTopup(ctx, activeAccount.AccountID, request.Amount, ctx.ClientIP())
	if err != nil {
		walletErrorResponse(ctx, w.server, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Top-up Initiated Successfully", initiation))
}

func (w *Wallet) initiateWithdrawal(ctx *gin.Context) {
	request := models.WithdrawRequest{}
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidWithdrawInput))
		return
	}

	activeAccount, err := utils.GetActiveAccount(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.AccountNotFound))
		return
	}

	initiation, err := w.server.wallet.InitiateWithdrawal(ctx, activeAccount.AccountID, request.Amount, wallet.BankDetails{
		BankCode:      request.BankCode,
		AccountNumber: request.AccountNumber,
		AccountName:   request.AccountName,
	})
	if err != nil {
		walletErrorResponse(ctx, w.server, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Withdrawal Initiated, Confirmation Code Sent", initiation))
}

func (w *Wallet) verifyWithdrawal(ctx *gin.Context) {
	request := models.VerifyWithdrawalRequest{}
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidVerifyInput))
		return
	}

	activeAccount, err := utils.GetActiveAccount(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.AccountNotFound))
		return
	}

	tx, err := w.server.wallet.VerifyWithdrawalOTP(ctx, activeAccount.AccountID, request.Reference, request.OTP)
	if err != nil {
		walletErrorResponse(ctx, w.server, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Withdrawal Completed Successfully", tx))
}

func (w *Wallet) sendGift(ctx *gin.Context) {
	request := models.GiftRequest{}
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidGiftInput))
		return
	}

	activeAccount, err := utils.GetActiveAccount(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.AccountNotFound))
		return
	}

	result, err := w.server.wallet.SendGift(ctx, activeAccount.AccountID, request.ReceiverID, request.Amount, request.Description)
	if err != nil {
		walletErrorResponse(ctx, w.server, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Gift Sent Successfully", result))
}

func (w *Wallet) getTransactions(ctx *gin.Context) {
	activeAccount, err := utils.GetActiveAccount(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.AccountNotFound))
		return
	}

	limit, err := strconv.ParseInt(ctx.DefaultQuery("limit", "20"), 10, 32)
	if err != nil || limit < 0 {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidListInput))
		return
	}
	offset, err := strconv.ParseInt(ctx.DefaultQuery("offset", "0"), 10, 32)
	if err != nil || offset < 0 {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidListInput))
		return
	}

	filter := ledger.Filter{
		Type:   ledger.TransactionType(ctx.Query("type")),
		Status: ledger.TransactionStatus(ctx.Query("status")),
	}

	transactions, err := w.server.wallet.ListTransactions(ctx, activeAccount.AccountID, filter, ledger.Page{
		Limit:  int32(limit),
		Offset: int32(offset),
	})
	if err != nil {
		walletErrorResponse(ctx, w.server, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Transactions Fetched Successfully", transactions))
}

func (w *Wallet) getStatistics(ctx *gin.Context) {
	activeAccount, err := utils.GetActiveAccount(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.AccountNotFound))
		return
	}

	from, to, err := parseStatisticsRange(ctx.Query("from"), ctx.Query("to"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidDateRange))
		return
	}

	stats, err := w.server.statistics.GetStatistics(ctx, activeAccount.AccountID, from, to)
	if err != nil {
		walletErrorResponse(ctx, w.server, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Statistics Fetched Successfully", stats))
}

// parseStatisticsRange turns YYYY-MM-DD query values into a half-open
// interval. The "to" day is included by pushing the bound to the next
// midnight; an empty range defaults to the last 30 days.
func parseStatisticsRange(fromStr, toStr string) (from, to time.Time, err error) {
	const layout = "2006-01-02"

	now := time.Now().UTC()
	from = now.AddDate(0, 0, -30)
	to = now

	if fromStr != "" {
		from, err = time.Parse(layout, fromStr)
		if err != nil {
			return from, to, err
		}
	}
	if toStr != "" {
		to, err = time.Parse(layout, toStr)
		if err != nil {
			return from, to, err
		}
		to = to.AddDate(0, 0, 1)
	}

	if to.Before(from) {
		return from, to, errors.New("range end before start")
	}

	return from, to, nil
}

// walletErrorResponse maps service errors onto the API envelope. The
// default arm logs before answering 500 so no failure goes dark.
func walletErrorResponse(ctx *gin.Context, server *Server, err error) {
	switch {
	case errors.Is(err, wallet.ErrInvalidAmount):
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidTopupInput))
	case errors.Is(err, wallet.ErrInsufficientFunds):
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InsufficientFunds))
	case errors.Is(err, wallet.ErrSelfGift):
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.SelfGift))
	case errors.Is(err, wallet.ErrInvalidOrExpiredOTP):
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidOTP))
	case errors.Is(err, wallet.ErrTooManyAttempts):
		ctx.JSON(http.StatusTooManyRequests, basemodels.NewError(apistrings.TooManyAttempts))
	case errors.Is(err, wallet.ErrForbidden):
		ctx.JSON(http.StatusForbidden, basemodels.NewError(apistrings.TransactionForbidden))
	case errors.Is(err, wallet.ErrUnknownTransaction), errors.Is(err, ledger.ErrNotFound):
		ctx.JSON(http.StatusNotFound, basemodels.NewError(apistrings.TransactionNotFound))
	case errors.Is(err, ledger.ErrAccountNotFound):
		ctx.JSON(http.StatusNotFound, basemodels.NewError(apistrings.AccountNotFound))
	case errors.Is(err, wallet.ErrAlreadyProcessed):
		ctx.JSON(http.StatusConflict, basemodels.NewError(apistrings.TransactionProcessed))
	case errors.Is(err, wallet.ErrStateConflict):
		ctx.JSON(http.StatusConflict, basemodels.NewError(apistrings.TransactionConflict))
	case errors.Is(err, wallet.ErrInvalidSignature):
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.InvalidSignature))
	case errors.Is(err, wallet.ErrInvalidCallbackOutcome):
		ctx.JSON(http.StatusConflict, basemodels.NewError(apistrings.InvalidCallback))
	default:
		server.logger.Errorf("unhandled wallet error: %v", err)
		ctx.JSON(http.StatusInternalServerError, basemodels.NewError(apistrings.ServerError))
	}
}
