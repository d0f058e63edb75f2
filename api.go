package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/models"
	"bitbucket.org/mmdatafocus/finledger_backend/utils"
	"bitbucket.org/mmdatafocus/finledger_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// registerValidations adds custom binding rules on top of the tag-based
// validator gin ships with.
func registerValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("currencycode", func(fl validator.FieldLevel) bool {
		code := fl.Field().String()
		if len(code) < 3 || len(code) > 8 {
			return false
		}
		for _, r := range code {
			if r < 'A' || r > 'Z' {
				return false
			}
		}
		return true
	})
}

func respondError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	var periodErr *models.PeriodLockedError
	var dupErr *models.DuplicateSubmissionError
	var rejectErr *models.MatchRejectedError

	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &validationErr):
		body := gin.H{"error": validationErr.Message, "code": validationErr.Code}
		if !validationErr.Imbalance.IsZero() {
			body["imbalance"] = validationErr.Imbalance
		}
		c.JSON(http.StatusUnprocessableEntity, body)
	case errors.As(err, &periodErr):
		c.JSON(http.StatusConflict, gin.H{"error": periodErr.Error(), "period_status": periodErr.Status})
	case errors.As(err, &dupErr):
		c.JSON(http.StatusConflict, gin.H{"error": dupErr.Error(), "reference": dupErr.Reference})
	case errors.As(err, &rejectErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rejectErr.Error()})
	case errors.Is(err, workflow.ErrReconciliationInProgress),
		errors.Is(err, workflow.ErrIdempotencyInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		config.LogError(config.GetLogger(), "api.go", "respondError", "unhandled", c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func registerRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// Chart of accounts
	api.POST("/accounts", createAccountHandler)
	api.GET("/accounts", listAccountsHandler)
	api.POST("/accounts/seed", seedAccountsHandler)
	api.POST("/accounts/:id/deactivate", deactivateAccountHandler)

	// Ledger
	api.POST("/transactions", postTransactionHandler)
	api.GET("/transactions/:id", getTransactionHandler)
	api.POST("/transactions/:id/reverse", reverseTransactionHandler)

	// Fiscal periods
	api.POST("/fiscal-periods", createFiscalPeriodHandler)
	api.POST("/fiscal-periods/adjustment", createAdjustmentPeriodHandler)
	api.GET("/fiscal-periods", listFiscalPeriodsHandler)
	api.POST("/fiscal-periods/:id/close", closePeriodHandler)
	api.POST("/fiscal-periods/:id/lock", lockPeriodHandler)

	// Procurement documents
	api.POST("/purchase-orders", createPurchaseOrderHandler)
	api.POST("/purchase-orders/:id/cancel", cancelPurchaseOrderHandler)
	api.POST("/goods-receipts", createGoodsReceiptHandler)
	api.POST("/vendor-invoices", createVendorInvoiceHandler)

	// Three-way matching
	api.POST("/three-way-matches", runThreeWayMatchHandler)
	api.GET("/three-way-matches/:id", getThreeWayMatchHandler)
	api.POST("/three-way-matches/:id/approve", approveThreeWayMatchHandler)
	api.POST("/three-way-matches/:id/reject", rejectThreeWayMatchHandler)
	api.GET("/tolerance-config", getToleranceConfigHandler)
	api.PUT("/tolerance-config", saveToleranceConfigHandler)

	// Forex
	api.POST("/forex-adjustments", forexAdjustmentHandler)

	// Bank reconciliation
	api.POST("/bank-statements", importBankStatementHandler)
	api.POST("/bank-accounts/:id/reconcile", reconcileBankAccountHandler)

	// Operator tooling
	api.POST("/admin/outbox/requeue-dead", requeueDeadEventsHandler)
}

func createAccountHandler(c *gin.Context) {
	var input models.NewAccount
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	account, err := models.CreateAccount(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func listAccountsHandler(c *gin.Context) {
	accounts, err := models.GetAccounts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func seedAccountsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
		return
	}
	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return models.SeedDefaultAccounts(tx, businessId)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func deactivateAccountHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	account, err := models.DeactivateAccount(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func postTransactionHandler(c *gin.Context) {
	var draft models.DraftTransaction
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	txn, err := workflow.PostTransaction(c.Request.Context(), draft)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

func getTransactionHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	txn, err := utils.FetchModel[models.Transaction](ctx, businessId, id, "Lines")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

type reverseRequest struct {
	ReversalDate time.Time `json:"reversal_date" binding:"required"`
	Reason       string    `json:"reason" binding:"required"`
}

func reverseTransactionHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req reverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reversal, err := workflow.ReverseTransaction(c.Request.Context(), id, req.ReversalDate, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reversal)
}

func createFiscalPeriodHandler(c *gin.Context) {
	var input models.NewFiscalPeriod
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	period, err := models.CreateFiscalPeriod(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, period)
}

func createAdjustmentPeriodHandler(c *gin.Context) {
	var input models.NewFiscalPeriod
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	period, err := models.CreateAdjustmentPeriod(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, period)
}

func listFiscalPeriodsHandler(c *gin.Context) {
	periods, err := models.GetFiscalPeriods(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, periods)
}

func closePeriodHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	period, err := workflow.ClosePeriod(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, period)
}

func lockPeriodHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	period, err := workflow.LockPeriod(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, period)
}

func createPurchaseOrderHandler(c *gin.Context) {
	var input models.NewPurchaseOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := models.CreatePurchaseOrder(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func cancelPurchaseOrderHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	order, err := models.CancelPurchaseOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func createGoodsReceiptHandler(c *gin.Context) {
	var input models.NewGoodsReceipt
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	receipt, err := models.CreateGoodsReceipt(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

func createVendorInvoiceHandler(c *gin.Context) {
	var input models.NewVendorInvoice
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	invoice, err := models.CreateVendorInvoice(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func runThreeWayMatchHandler(c *gin.Context) {
	var input workflow.NewThreeWayMatch
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	match, err := workflow.RunThreeWayMatch(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, match)
}

func getThreeWayMatchHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	match, err := models.GetThreeWayMatch(config.GetDB().WithContext(ctx), businessId, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

type matchDecisionRequest struct {
	Note string `json:"note"`
}

func approveThreeWayMatchHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req matchDecisionRequest
	_ = c.ShouldBindJSON(&req)
	match, err := workflow.ApproveThreeWayMatch(c.Request.Context(), id, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func rejectThreeWayMatchHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req matchDecisionRequest
	_ = c.ShouldBindJSON(&req)
	match, err := workflow.RejectThreeWayMatch(c.Request.Context(), id, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func getToleranceConfigHandler(c *gin.Context) {
	ctx := c.Request.Context()
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	cfg, err := models.GetMatchToleranceConfig(config.GetDB().WithContext(ctx), businessId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func saveToleranceConfigHandler(c *gin.Context) {
	var input models.UpsertMatchToleranceConfig
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := models.SaveMatchToleranceConfig(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func forexAdjustmentHandler(c *gin.Context) {
	var input workflow.ForexAdjustmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	txn, err := workflow.PostForexAdjustment(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	if txn == nil {
		c.JSON(http.StatusOK, gin.H{"adjustment": "0", "transaction": nil})
		return
	}
	c.JSON(http.StatusCreated, txn)
}

func importBankStatementHandler(c *gin.Context) {
	var input models.NewBankStatementImport
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := models.ImportBankStatement(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rows)
}

type reconcileRequest struct {
	BankGLAccountId int `json:"bank_gl_account_id" binding:"required"`
}

func reconcileBankAccountHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := workflow.ReconcileBankAccount(c.Request.Context(), id, req.BankGLAccountId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func requeueDeadEventsHandler(c *gin.Context) {
	requeued, err := workflow.RequeueDeadEvents(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requeued": requeued})
}
