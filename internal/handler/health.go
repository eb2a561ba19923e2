package handler

import (
	"github.com/gin-gonic/gin"

	"trader-core/internal/handler/response"
)

// HealthCheck 存活探针
func HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
