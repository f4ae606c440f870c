package handler

import (
	"log/slog"
	"strconv"

	"carbonledger/internal/auth"
	"carbonledger/internal/config"
	"carbonledger/internal/logging"
	"carbonledger/internal/model"
	"carbonledger/internal/service"
	"carbonledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Handler struct {
	userService       *service.UserService
	projectService    *service.ProjectService
	walletService     *service.WalletService
	settlementService *service.SettlementService
	logger            *slog.Logger
}

func NewHandler(db *gorm.DB, rdb *redis.Client, tokens *auth.TokenManager, cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		userService:       service.NewUserService(db, tokens),
		projectService:    service.NewProjectService(db),
		walletService:     service.NewWalletService(db),
		settlementService: service.NewSettlementService(db, rdb, cfg, logger),
		logger:            logging.Component(logger, "http"),
	}
}

// ============================================================
// users
// ============================================================

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateUserResponse struct {
	User   *model.User   `json:"user"`
	Wallet *model.Wallet `json:"wallet"`
}

// CreateUser POST /api/v1/user
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	user, wallet, err := h.userService.Create(c.Request.Context(), service.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, CreateUserResponse{User: user, Wallet: wallet})
}

type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignIn POST /api/v1/user/sign-in
func (h *Handler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	token, err := h.userService.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, token)
}

// ============================================================
// wallet
// ============================================================

// GetWallet GET /api/v1/wallet
func (h *Handler) GetWallet(c *gin.Context) {
	summary, err := h.walletService.GetSummary(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, summary)
}

type PageResponse struct {
	List     interface{} `json:"list"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// ListTransactions GET /api/v1/wallet/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, pageSize := pagination(c)
	entries, total, err := h.walletService.ListTransactions(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, PageResponse{List: entries, Total: total, Page: page, PageSize: pageSize})
}

type TopupRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	RequestID string          `json:"request_id" binding:"max=64"`
	Reference string          `json:"reference" binding:"max=255"`
}

// Topup PUT /api/v1/wallet/topup/:wallet_id
func (h *Handler) Topup(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("wallet_id"))
	if err != nil {
		response.ParamError(c, "invalid wallet_id")
		return
	}
	var req TopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	entry, err := h.settlementService.SettleTopup(c.Request.Context(), &service.TopupRequest{
		UserID:    currentUserID(c),
		WalletID:  walletID,
		Amount:    req.Amount,
		RequestID: req.RequestID,
		Reference: req.Reference,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, entry)
}

// ============================================================
// projects
// ============================================================

type CreateProjectRequest struct {
	Name             string          `json:"name" binding:"required"`
	Description      string          `json:"description" binding:"required"`
	TotalCredits     decimal.Decimal `json:"total_credits"`
	AvailableCredits decimal.Decimal `json:"available_credits"`
	PricePerCredit   decimal.Decimal `json:"price_per_credit"`
}

// CreateProject POST /api/v1/project
func (h *Handler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), currentUserID(c), service.CreateProjectInput{
		Name:             req.Name,
		Description:      req.Description,
		TotalCredits:     req.TotalCredits,
		AvailableCredits: req.AvailableCredits,
		PricePerCredit:   req.PricePerCredit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, project)
}

// ListProjects GET /api/v1/project?page=1&page_size=20
func (h *Handler) ListProjects(c *gin.Context) {
	page, pageSize := pagination(c)
	projects, total, err := h.projectService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, PageResponse{List: projects, Total: total, Page: page, PageSize: pageSize})
}

// GetProject GET /api/v1/project/:id
func (h *Handler) GetProject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ParamError(c, "invalid project id")
		return
	}
	project, err := h.projectService.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, project)
}

// DeactivateProject DELETE /api/v1/project/:id
func (h *Handler) DeactivateProject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ParamError(c, "invalid project id")
		return
	}
	if err := h.projectService.Deactivate(c.Request.Context(), currentUserID(c), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "is_active": false})
}

// ============================================================
// purchase
// ============================================================

type PurchaseRequest struct {
	ProjectID uuid.UUID       `json:"project_id"`
	Amount    decimal.Decimal `json:"amount"`
	Mode      string          `json:"mode" binding:"required"`
	RequestID string          `json:"request_id" binding:"max=64"`
	Reference string          `json:"reference" binding:"max=255"`
}

type PurchaseResponse struct {
	Transaction *model.Transaction `json:"transaction"`
	Credits     decimal.Decimal    `json:"credits"`
	Cost        decimal.Decimal    `json:"cost"`
	Remainder   decimal.Decimal    `json:"remainder"`
	Replayed    bool               `json:"replayed"`
}

// Purchase POST /api/v1/transaction/purchase
func (h *Handler) Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	if req.ProjectID == uuid.Nil {
		response.ParamError(c, "project_id is required")
		return
	}

	result, err := h.settlementService.SettlePurchase(c.Request.Context(), &service.PurchaseRequest{
		UserID:    currentUserID(c),
		ProjectID: req.ProjectID,
		Amount:    req.Amount,
		Mode:      req.Mode,
		RequestID: req.RequestID,
		Reference: req.Reference,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, PurchaseResponse{
		Transaction: result.Transaction,
		Credits:     result.Credits,
		Cost:        result.Cost,
		Remainder:   result.Remainder,
		Replayed:    result.Replayed,
	})
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
