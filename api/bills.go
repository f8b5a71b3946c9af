package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arkline-sg/backoffice_backend/models"
)

func ListBillsHandler(c *gin.Context) {
	bills, err := models.ListBills(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bills": bills})
}

func GetBillHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	bill, err := models.GetBill(c.Request.Context(), id)
	if err != nil {
		writeModelError(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

func CreateBillHandler(c *gin.Context) {
	var input models.NewBill
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bill, err := models.CreateBill(c.Request.Context(), &input)
	if err != nil {
		writeModelError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bill)
}
