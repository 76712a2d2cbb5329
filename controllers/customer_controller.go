package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"retail-order-service/middlewares"
	"retail-order-service/repositories"
	"retail-order-service/services"
)

type CustomerController struct {
	customers *repositories.CustomerRepository
	orders    *services.OrderService
}

func NewCustomerController(customers *repositories.CustomerRepository, orders *services.OrderService) *CustomerController {
	return &CustomerController{customers: customers, orders: orders}
}

type customerRequest struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
	Address string `json:"address"`
}

// FindOrCreate resolves a customer by phone, creating the row when the
// number is new. Concurrent registrations of the same phone converge on one
// row.
func (cc *CustomerController) FindOrCreate(c *gin.Context) {
	defer func() {
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("find_or_create_customer", success)
	}()

	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	customer, err := cc.orders.FindOrCreateCustomer(c.Request.Context(), req.Name, req.Phone, req.Address)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (cc *CustomerController) List(c *gin.Context) {
	defer func() {
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("list_customers", success)
	}()

	limit := queryLimit(c, 100)
	customers, err := cc.customers.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customers)
}

func (cc *CustomerController) Detail(c *gin.Context) {
	defer func() {
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("customer_detail", success)
	}()

	customerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID"})
		return
	}

	detail, err := cc.customers.Detail(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (cc *CustomerController) Update(c *gin.Context) {
	defer func() {
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("update_customer", success)
	}()

	customerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID"})
		return
	}

	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := cc.customers.Update(c.Request.Context(), customerID, req.Name, req.Phone, req.Address); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Customer updated", "customer_id": customerID})
}

func (cc *CustomerController) Delete(c *gin.Context) {
	defer func() {
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("delete_customer", success)
	}()

	customerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID"})
		return
	}

	if err := cc.customers.Delete(c.Request.Context(), customerID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Customer deleted", "customer_id": customerID})
}
