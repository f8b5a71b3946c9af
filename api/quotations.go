package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arkline-sg/backoffice_backend/models"
)

func ListQuotationsHandler(c *gin.Context) {
	quotations, err := models.ListQuotations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotations": quotations})
}

func CreateQuotationHandler(c *gin.Context) {
	var input models.NewQuotation
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quotation, err := models.CreateQuotation(c.Request.Context(), &input)
	if err != nil {
		writeModelError(c, err)
		return
	}
	c.JSON(http.StatusCreated, quotation)
}

// AcceptQuotationHandler converts an accepted quotation into a draft invoice.
func AcceptQuotationHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	quotation, err := models.AcceptQuotation(c.Request.Context(), id)
	if err != nil {
		writeModelError(c, err)
		return
	}
	c.JSON(http.StatusOK, quotation)
}
