package usage

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/echonote-api/api/types"
)

// RegisterRoutes registers usage routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("", Get(deps))
}
