package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/familyledger/ledger/shared/cqrs"
	"github.com/familyledger/ledger/shared/middleware"
	"github.com/familyledger/ledger/shared/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const Greeting = "Hey this is my API running 🥳"

// AccountCommander defines the account write operations used by LedgerHandler.
type AccountCommander interface {
	CreateAccount(ctx context.Context, cmd cqrs.CreateAccountCommand) (*models.Account, error)
	AddChild(ctx context.Context, cmd cqrs.AddChildCommand) (*models.Account, error)
	Deposit(ctx context.Context, cmd cqrs.DepositCommand) error
}

// TransferCommander defines the transfer operation used by LedgerHandler.
type TransferCommander interface {
	Transfer(ctx context.Context, cmd cqrs.TransferCommand) (*models.Transfer, error)
}

// AccountQuerier defines the read operations used by LedgerHandler.
type AccountQuerier interface {
	GetBalance(ctx context.Context, q cqrs.GetBalanceQuery) (decimal.Decimal, error)
	ListChildren(ctx context.Context, q cqrs.ListChildrenQuery) ([]string, error)
}

// LedgerHandler handles the HTTP surface of the ledger.
type LedgerHandler struct {
	accounts  AccountCommander
	transfers TransferCommander
	queries   AccountQuerier
}

type CreateAccountRequest struct {
	DOB     string           `json:"dob" validate:"required"`
	Email   string           `json:"email" validate:"required,email"`
	Name    string           `json:"name" validate:"required"`
	Role    string           `json:"role" validate:"required,oneof=parent child"`
	Balance *decimal.Decimal `json:"balance" validate:"required"`
}

type AddChildRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	DOB      string `json:"dob" validate:"required"`
	ParentID string `json:"parentId" validate:"required"`
}

type TransferRequest struct {
	From   string           `json:"from" validate:"required"`
	To     string           `json:"to" validate:"required"`
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type DepositRequest struct {
	AccountID string           `json:"accountId" validate:"required"`
	Amount    *decimal.Decimal `json:"amount" validate:"required"`
}

type GetBalanceRequest struct {
	AccountID string `form:"accountId" validate:"required"`
}

type ListChildrenRequest struct {
	ParentID string `form:"parentId" validate:"required"`
}

type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type ChildrenResponse struct {
	ParentID string   `json:"parentId"`
	Children []string `json:"children"`
}

func NewLedgerHandler(accounts AccountCommander, transfers TransferCommander, queries AccountQuerier) *LedgerHandler {
	return &LedgerHandler{accounts: accounts, transfers: transfers, queries: queries}
}

func (h *LedgerHandler) Home(c *gin.Context) {
	c.String(http.StatusOK, Greeting)
}

func (h *LedgerHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *LedgerHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := h.accounts.CreateAccount(c.Request.Context(), cqrs.CreateAccountCommand{
		DOB:     req.DOB,
		Email:   req.Email,
		Name:    req.Name,
		Role:    models.Role(req.Role),
		Balance: *req.Balance,
	})
	if err != nil {
		respondWithLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Account created successfully",
		"accountId": account.ID,
	})
}

func (h *LedgerHandler) AddChild(c *gin.Context) {
	var req AddChildRequest
	if !bindJSON(c, &req) {
		return
	}

	child, err := h.accounts.AddChild(c.Request.Context(), cqrs.AddChildCommand{
		Name:     req.Name,
		Email:    req.Email,
		DOB:      req.DOB,
		ParentID: req.ParentID,
	})
	if err != nil {
		respondWithLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Child account created successfully",
		"childId": child.ID,
	})
}

func (h *LedgerHandler) Transfer(c *gin.Context) {
	var req TransferRequest
	if !bindJSON(c, &req) {
		return
	}

	transfer, err := h.transfers.Transfer(c.Request.Context(), cqrs.TransferCommand{
		From:   req.From,
		To:     req.To,
		Amount: *req.Amount,
	})
	if err != nil {
		respondWithLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Transfer successful",
		"transferId": transfer.ID,
	})
}

func (h *LedgerHandler) Deposit(c *gin.Context) {
	var req DepositRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.accounts.Deposit(c.Request.Context(), cqrs.DepositCommand{
		AccountID: req.AccountID,
		Amount:    *req.Amount,
	})
	if err != nil {
		respondWithLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Deposit successful"})
}

func (h *LedgerHandler) GetBalance(c *gin.Context) {
	var req GetBalanceRequest
	if !bindQuery(c, &req) {
		return
	}

	balance, err := h.queries.GetBalance(c.Request.Context(), cqrs.GetBalanceQuery{AccountID: req.AccountID})
	if err != nil {
		respondWithLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{Balance: balance})
}

func (h *LedgerHandler) ListChildren(c *gin.Context) {
	var req ListChildrenRequest
	if !bindQuery(c, &req) {
		return
	}

	children, err := h.queries.ListChildren(c.Request.Context(), cqrs.ListChildrenQuery{ParentID: req.ParentID})
	if err != nil {
		respondWithLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChildrenResponse{ParentID: req.ParentID, Children: children})
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return false
	}
	return true
}

func bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid query parameters")
		return false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return false
	}
	return true
}

// respondWithLedgerError maps the ledger error taxonomy onto status codes.
func respondWithLedgerError(c *gin.Context, err error) {
	var (
		validationErr *models.ValidationError
		policyErr     *models.PolicyViolationError
	)
	switch {
	case errors.As(err, &validationErr):
		middleware.RespondWithError(c, http.StatusBadRequest, validationErr.Message)
	case errors.Is(err, models.ErrNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, "Account not found")
	case errors.As(err, &policyErr):
		middleware.RespondWithError(c, http.StatusBadRequest, policyErr.Reason)
	case errors.Is(err, models.ErrInsufficientBalance):
		middleware.RespondWithError(c, http.StatusBadRequest, "Insufficient balance")
	default:
		// Picked up by the request logger.
		_ = c.Error(err)
		middleware.RespondWithError(c, http.StatusInternalServerError, err.Error())
	}
}
