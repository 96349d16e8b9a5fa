package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	appstock "github.com/stockledger/backend/internal/application/stock"
	"github.com/stockledger/backend/internal/domain/shared"
	"github.com/stockledger/backend/internal/interfaces/http/dto"
)

// parseDate parses a date string in the formats clients are known to send
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// StockHandler handles stock ledger API endpoints
type StockHandler struct {
	BaseHandler
	stockService *appstock.StockService
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(stockService *appstock.StockService) *StockHandler {
	return &StockHandler{
		stockService: stockService,
	}
}

// RegisterRoutes registers the stock ledger routes on the API group
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	stock := rg.Group("/stock")
	{
		stock.POST("/adjust", h.Adjust)
		stock.POST("/return", h.Return)
		stock.POST("/sell", h.Sell)
		stock.POST("/receive", h.Receive)
		stock.POST("/write-off", h.WriteOff)
	}

	skus := rg.Group("/skus")
	{
		skus.GET("/below-reorder", h.GetSkusBelowReorder)
		skus.GET("/:id", h.GetSku)
		skus.GET("/:id/batches", h.GetBatches)
		skus.GET("/:id/history", h.GetSkuHistory)
	}

	batches := rg.Group("/batches")
	{
		batches.GET("/expiring", h.GetExpiringBatches)
		batches.GET("/expired", h.GetExpiredBatches)
		batches.GET("/:id/history", h.GetBatchHistory)
	}

	operations := rg.Group("/operations")
	{
		operations.GET("/:ref/history", h.GetOperationHistory)
	}
}

// AdjustStockRequest represents a request to adjust a single batch
type AdjustStockRequest struct {
	BatchID        int64  `json:"batch_id" binding:"required,gt=0"`
	SkuID          int64  `json:"sku_id" binding:"required,gt=0"`
	ChangeQty      int64  `json:"change_qty" binding:"required"`
	IsAdd          bool   `json:"is_add"`
	AllowBackorder bool   `json:"allow_backorder"`
	Remark         string `json:"remark" binding:"max=500"`
}

// ReturnStockRequest represents a request to return stock across batches
type ReturnStockRequest struct {
	SkuID     int64   `json:"sku_id" binding:"required,gt=0"`
	ChangeQty int64   `json:"change_qty" binding:"gte=0"`
	BatchIDs  []int64 `json:"batch_ids"`
	Remark    string  `json:"remark" binding:"max=500"`
}

// SellStockRequest represents a request to consume stock in FEFO order
type SellStockRequest struct {
	SkuID     int64  `json:"sku_id" binding:"required,gt=0"`
	ChangeQty int64  `json:"change_qty" binding:"required,gt=0"`
	Remark    string `json:"remark" binding:"max=500"`
}

// ReceiveStockRequest represents a request to register an inbound lot
type ReceiveStockRequest struct {
	SkuID           int64  `json:"sku_id" binding:"required,gt=0"`
	BatchNumber     string `json:"batch_number" binding:"required,max=64"`
	Quantity        int64  `json:"quantity" binding:"required,gt=0"`
	UnitCost        string `json:"unit_cost" binding:"required"`
	ManufactureDate string `json:"manufacture_date"`
	ExpireDate      string `json:"expire_date"`
	Remark          string `json:"remark" binding:"max=500"`
}

// WriteOffRequest represents a request to write off expired stock of a SKU
type WriteOffRequest struct {
	SkuID  int64  `json:"sku_id" binding:"required,gt=0"`
	Remark string `json:"remark" binding:"max=500"`
}

// Adjust handles POST /stock/adjust
func (h *StockHandler) Adjust(c *gin.Context) {
	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.stockService.AdjustStock(c.Request.Context(), appstock.AdjustStockRequest{
		BatchID:        req.BatchID,
		SkuID:          req.SkuID,
		ChangeQty:      req.ChangeQty,
		IsAdd:          req.IsAdd,
		ActorID:        getActorID(c),
		Remark:         req.Remark,
		AllowBackorder: req.AllowBackorder,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Return handles POST /stock/return
func (h *StockHandler) Return(c *gin.Context) {
	var req ReturnStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	actorID := getActorID(c)
	var actor int64
	if actorID != nil {
		actor = *actorID
	}

	result, err := h.stockService.ReturnStock(c.Request.Context(), appstock.ReturnStockRequest{
		SkuID:     req.SkuID,
		ChangeQty: req.ChangeQty,
		BatchIDs:  req.BatchIDs,
		ActorID:   actor,
		Remark:    req.Remark,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Sell handles POST /stock/sell
func (h *StockHandler) Sell(c *gin.Context) {
	var req SellStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.stockService.SellStock(c.Request.Context(), appstock.SellStockRequest{
		SkuID:     req.SkuID,
		ChangeQty: req.ChangeQty,
		ActorID:   getActorID(c),
		Remark:    req.Remark,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// Receive handles POST /stock/receive
func (h *StockHandler) Receive(c *gin.Context) {
	var req ReceiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	unitCost, err := decimal.NewFromString(req.UnitCost)
	if err != nil || unitCost.IsNegative() {
		h.BadRequest(c, "Invalid unit cost")
		return
	}

	var manufactureDate, expireDate *time.Time
	if req.ManufactureDate != "" {
		t, err := parseDate(req.ManufactureDate)
		if err != nil {
			h.BadRequest(c, "Invalid manufacture date")
			return
		}
		manufactureDate = &t
	}
	if req.ExpireDate != "" {
		t, err := parseDate(req.ExpireDate)
		if err != nil {
			h.BadRequest(c, "Invalid expire date")
			return
		}
		expireDate = &t
	}

	result, err := h.stockService.ReceiveStock(c.Request.Context(), appstock.ReceiveStockRequest{
		SkuID:           req.SkuID,
		BatchNumber:     req.BatchNumber,
		Quantity:        req.Quantity,
		UnitCost:        unitCost,
		ManufactureDate: manufactureDate,
		ExpireDate:      expireDate,
		ActorID:         getActorID(c),
		Remark:          req.Remark,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, result)
}

// WriteOff handles POST /stock/write-off
func (h *StockHandler) WriteOff(c *gin.Context) {
	var req WriteOffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.stockService.WriteOffExpired(c.Request.Context(), req.SkuID, getActorID(c), req.Remark)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// GetSku handles GET /skus/:id
func (h *StockHandler) GetSku(c *gin.Context) {
	skuID, err := parseID(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid SKU ID")
		return
	}

	sku, err := h.stockService.GetSku(c.Request.Context(), skuID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, sku)
}

// GetBatches handles GET /skus/:id/batches
func (h *StockHandler) GetBatches(c *gin.Context) {
	skuID, err := parseID(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid SKU ID")
		return
	}

	forDecrease := c.Query("for_decrease") == "true"

	batches, err := h.stockService.GetBatchesBySku(c.Request.Context(), skuID, forDecrease)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, batches)
}

// GetSkuHistory handles GET /skus/:id/history. When both start and end query
// parameters are present the result is limited to that window.
func (h *StockHandler) GetSkuHistory(c *gin.Context) {
	skuID, err := parseID(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid SKU ID")
		return
	}

	startRaw, endRaw := c.Query("start"), c.Query("end")
	if startRaw != "" || endRaw != "" {
		start, err := parseDate(startRaw)
		if err != nil {
			h.BadRequest(c, "Invalid start date")
			return
		}
		end, err := parseDate(endRaw)
		if err != nil {
			h.BadRequest(c, "Invalid end date")
			return
		}

		entries, err := h.stockService.GetHistoryByDateRange(c.Request.Context(), skuID, start, end, listFilter(c))
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, entries)
		return
	}

	entries, err := h.stockService.GetHistoryBySku(c.Request.Context(), skuID, listFilter(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, entries)
}

// GetBatchHistory handles GET /batches/:id/history
func (h *StockHandler) GetBatchHistory(c *gin.Context) {
	batchID, err := parseID(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid batch ID")
		return
	}

	entries, err := h.stockService.GetHistoryByBatch(c.Request.Context(), batchID, listFilter(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, entries)
}

// GetExpiringBatches handles GET /batches/expiring
func (h *StockHandler) GetExpiringBatches(c *gin.Context) {
	withinDays := 0 // service applies its configured default
	if raw := c.Query("within_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.BadRequest(c, "Invalid within_days")
			return
		}
		withinDays = n
	}

	batches, err := h.stockService.GetExpiringBatches(c.Request.Context(), withinDays, listFilter(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, batches)
}

// GetExpiredBatches handles GET /batches/expired
func (h *StockHandler) GetExpiredBatches(c *gin.Context) {
	batches, err := h.stockService.GetExpiredBatches(c.Request.Context(), listFilter(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, batches)
}

// GetSkusBelowReorder handles GET /skus/below-reorder
func (h *StockHandler) GetSkusBelowReorder(c *gin.Context) {
	skus, err := h.stockService.GetSkusBelowReorder(c.Request.Context(), listFilter(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, skus)
}

// GetOperationHistory handles GET /operations/:ref/history
func (h *StockHandler) GetOperationHistory(c *gin.Context) {
	ref, err := uuid.Parse(c.Param("ref"))
	if err != nil {
		h.BadRequest(c, "Invalid operation reference")
		return
	}

	entries, err := h.stockService.GetHistoryByOperation(c.Request.Context(), ref)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, entries)
}

// parseID parses a positive int64 path parameter
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}

// listFilter builds a repository filter from list query parameters
func listFilter(c *gin.Context) shared.Filter {
	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		return shared.DefaultFilter()
	}
	filter := shared.DefaultFilter()
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}
	filter.OrderBy = req.OrderBy
	filter.OrderDir = req.OrderDir
	filter.Search = req.Search
	return filter
}
