package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arkline-sg/backoffice_backend/models"
	"github.com/arkline-sg/backoffice_backend/xerosync"
)

func ListPaymentsHandler(c *gin.Context) {
	payments, err := models.ListPayments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func GetPaymentHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	payment, err := models.GetPayment(c.Request.Context(), id)
	if err != nil {
		writeModelError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// CreatePaymentHandler records a payment against an invoice. When a Xero
// connection is active the payment is pushed right away; push problems are
// logged but never roll back the local write.
func CreatePaymentHandler(c *gin.Context) {
	var input models.NewPayment
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payment, err := models.CreatePayment(c.Request.Context(), &input)
	if err != nil {
		writeModelError(c, err)
		return
	}

	xerosync.PushPaymentIfConnected(c, payment)
	c.JSON(http.StatusCreated, payment)
}
