package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"simple-bank/internal/auth"
	"simple-bank/internal/domain"
	"simple-bank/internal/idempotency"
	"simple-bank/internal/service"
)

// Handler wires HTTP routes to the account service.
type Handler struct {
	accounts     service.AccountService
	tokens       *auth.TokenManager
	idempotency  idempotency.Store
	requireToken bool
	logger       *logrus.Logger
}

// Options tunes optional handler behaviour.
type Options struct {
	// RequireToken makes account routes demand a bearer token for the email they act on.
	RequireToken bool
	Logger       *logrus.Logger
}

func NewHandler(accounts service.AccountService, tokens *auth.TokenManager, idem idempotency.Store, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Handler{
		accounts:     accounts,
		tokens:       tokens,
		idempotency:  idem,
		requireToken: opts.RequireToken,
		logger:       opts.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger), corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/users", h.createAccount)
		api.POST("/login", h.login)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}

	accounts := api.Group("", h.authenticate())
	{
		accounts.POST("/deposit", h.deposit)
		accounts.POST("/withdraw", h.withdraw)
		accounts.GET("/balance/:email", h.balance)
		accounts.POST("/bank-account", h.createBankAccount)
		accounts.PUT("/profile", h.updateProfile)
		accounts.GET("/users", h.findUsers)
	}
}

type createAccountRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type transactionRequest struct {
	Email  string          `json:"email" binding:"required,email"`
	Amount decimal.Decimal `json:"amount"`
}

type bankAccountRequest struct {
	Email       string `json:"email" binding:"required,email"`
	AccountType string `json:"accountType" binding:"required"`
}

type updateProfileRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Name        string `json:"name" binding:"required"`
	PhoneNumber string `json:"phoneNumber" binding:"required"`
}

// UserResponse is the public view of a user record.
type UserResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Balance       decimal.Decimal `json:"balance"`
	AccountType   string          `json:"accountType,omitempty"`
	AccountNumber string          `json:"accountNumber"`
	PhoneNumber   string          `json:"phoneNumber,omitempty"`
	Role          string          `json:"role"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, Idempotency-Key")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Authorization, Idempotent-Replayed, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (h *Handler) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.accounts.CreateAccount(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Account created successfully",
		"user":    userToResponse(*user),
	})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, token, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Authorization", "Bearer "+token)
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user": gin.H{
			"email": user.Email,
			"name":  user.Name,
		},
	})
}

func (h *Handler) deposit(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.authorize(c, req.Email) {
		return
	}

	h.idempotent(c, req, func() {
		user, err := h.accounts.Deposit(c.Request.Context(), req.Email, req.Amount)
		if err != nil {
			h.writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Deposit successful",
			"balance": user.Balance,
		})
	})
}

func (h *Handler) withdraw(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.authorize(c, req.Email) {
		return
	}

	h.idempotent(c, req, func() {
		user, err := h.accounts.Withdraw(c.Request.Context(), req.Email, req.Amount)
		if err != nil {
			h.writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Withdrawal successful",
			"balance": user.Balance,
		})
	})
}

func (h *Handler) balance(c *gin.Context) {
	email := strings.TrimSpace(c.Param("email"))
	if !h.authorize(c, email) {
		return
	}

	balance, err := h.accounts.Balance(c.Request.Context(), email)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Balance retrieved successfully",
		"balance": balance,
	})
}

func (h *Handler) createBankAccount(c *gin.Context) {
	var req bankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.authorize(c, req.Email) {
		return
	}

	accountType := domain.AccountType(strings.ToLower(strings.TrimSpace(req.AccountType)))
	user, err := h.accounts.CreateBankAccount(c.Request.Context(), req.Email, accountType)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Bank account created successfully",
		"user":    userToResponse(*user),
	})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.authorize(c, req.Email) {
		return
	}

	if _, err := h.accounts.UpdateProfile(c.Request.Context(), req.Email, req.Name, req.PhoneNumber); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully"})
}

func (h *Handler) findUsers(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email query parameter is required"})
		return
	}
	if !h.authorize(c, email) {
		return
	}

	users, err := h.accounts.FindByEmail(c.Request.Context(), email)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]UserResponse, len(users))
	for i := range users {
		resp[i] = userToResponse(users[i])
	}
	c.JSON(http.StatusOK, gin.H{"users": resp})
}

// writeError maps service errors onto status codes. Insufficient funds shares
// 404 with a missing account; the message tells them apart.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrBalanceLimit):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrNotFound.Error()})
	case errors.Is(err, domain.ErrInsufficientFunds):
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrInsufficientFunds.Error()})
	case errors.Is(err, domain.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": domain.ErrAlreadyExists.Error()})
	case errors.Is(err, domain.ErrAuthenticationFailed):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	default:
		entryFor(c, h.logger).WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func userToResponse(user domain.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Name:          user.Name,
		Email:         user.Email,
		Balance:       user.Balance,
		AccountType:   string(user.AccountType),
		AccountNumber: user.AccountNumber,
		PhoneNumber:   user.PhoneNumber,
		Role:          string(user.Role),
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}
