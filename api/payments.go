package api

import (
	"net/http"

	"github.com/CastPay/CastPay-Backend/api/apistrings"
	models "github.com/CastPay/CastPay-Backend/api/models"
	basemodels "github.com/CastPay/CastPay-Backend/models"
	"github.com/gin-gonic/gin"
)

// Payment carries the gateway-facing endpoints. These are called by
// external systems, not by authenticated users: the gateway callback is
// authenticated by its HMAC signature, the settlement callback by the
// payout provider's channel.
type Payment struct {
	server *Server
}

func (p Payment) router(server *Server) {
	p.server = server

	serverGroupV1 := server.router.Group("/api/v1/payments")
	serverGroupV1.GET("gateway/callback", p.gatewayCallback)
	serverGroupV1.POST("withdraw/callback", p.bankSettlementCallback)
	serverGroupV1.GET("methods", p.getPaymentMethods)
}

func (p *Payment) gatewayCallback(ctx *gin.Context) {
	params := make(map[string]string)
	for key, values := range ctx.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	tx, err := p.server.wallet.HandleGatewayCallback(ctx, params)
	if err != nil {
		walletErrorResponse(ctx, p.server, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Callback Processed Successfully", tx))
}

func (p *Payment) bankSettlementCallback(ctx *gin.Context) {
	request := models.BankSettlementRequest{}
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidSettlementInput))
		return
	}

	tx, err := p.server.wallet.HandleBankSettlement(
		ctx,
		request.Reference,
		request.BankReference,
		request.Status == "SUCCESS",
		request.Note,
	)
	if err != nil {
		walletErrorResponse(ctx, p.server, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Settlement Processed Successfully", tx))
}

func (p *Payment) getPaymentMethods(ctx *gin.Context) {
	methods := []models.PaymentMethod{
		{
			Code:        "GATEWAY",
			Name:        "Payment Gateway",
			Description: "Top up via the card and bank payment gateway",
		},
		{
			Code:        "BANK_TRANSFER",
			Name:        "Bank Transfer",
			Description: "Withdraw to a verified bank account",
		},
		{
			Code:        "INTERNAL",
			Name:        "Wallet Transfer",
			Description: "Send gifts to other wallet holders",
		},
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Payment Methods Fetched Successfully", methods))
}
