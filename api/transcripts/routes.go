package transcripts

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/echonote-api/api/types"
)

// RegisterRoutes registers transcript routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("", List(deps))
	router.GET("/:id", Get(deps))
	router.POST("/:id/cancel", Cancel(deps))
	router.GET("/:id/events", Events(deps))
}

// RegisterUploadRoutes registers the audio upload route
func RegisterUploadRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.POST("", PostAudio(deps))
}
