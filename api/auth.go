package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arkline-sg/backoffice_backend/models"
	"github.com/arkline-sg/backoffice_backend/utils"
)

// LoginHandler handles POST /api/auth/login and returns the opaque session
// token the "token" header carries on subsequent requests.
func LoginHandler(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, user, err := models.Login(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// MeHandler handles GET /api/auth/me.
func MeHandler(c *gin.Context) {
	username, ok := utils.GetUsernameFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	user, err := models.GetUserByUsername(c.Request.Context(), username)
	if err != nil || user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, user)
}
