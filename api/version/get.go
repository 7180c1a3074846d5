package version

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Info describes the running build
type Info struct {
	Version   string
	GitCommit string
	BuildTime string
}

// Get handles version requests
func Get(info Info) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "EchoNote API",
			"version":     info.Version,
			"commit":      info.GitCommit,
			"build_time":  info.BuildTime,
			"description": "Meeting transcription with speaker diarization and summaries",
			"status":      "running",
		})
	}
}
