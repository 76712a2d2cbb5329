package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"retail-order-service/middlewares"
	"retail-order-service/services"
)

type ProductController struct {
	stock *services.StockService
}

func NewProductController(stock *services.StockService) *ProductController {
	return &ProductController{stock: stock}
}

func (pc *ProductController) Get(c *gin.Context) {
	defer func() {
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("get_product", success)
	}()

	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	product, err := pc.stock.GetProduct(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (pc *ProductController) List(c *gin.Context) {
	defer func() {
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("list_products", success)
	}()

	limit := queryLimit(c, 100)
	products, err := pc.stock.ListProducts(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

type decrementStockRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// DecrementStock is the standalone adjustment path: optimistic, retried on
// lock contention, outside any order transaction.
func (pc *ProductController) DecrementStock(c *gin.Context) {
	defer func() {
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("decrement_stock", success)
	}()

	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var req decrementStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newStock, err := pc.stock.DecrementStock(c.Request.Context(), productID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": productID, "stock": newStock})
}
