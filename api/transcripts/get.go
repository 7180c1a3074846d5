package transcripts

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/echonote-api/api/types"
	"github.com/killallgit/echonote-api/internal/services/jobs"
)

// List returns the caller's transcripts, newest first
// @Summary      List transcripts
// @Tags         transcripts
// @Produce      json
// @Param        X-User-ID header string true "Caller identity"
// @Param        limit query int false "Page size" default(20)
// @Param        offset query int false "Offset"
// @Success      200 {object} types.TranscriptsResponse
// @Router       /api/v1/transcripts [get]
func List(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := types.QueryInt(c, "limit", jobs.DefaultListLimit)
		if !ok {
			return
		}
		offset, ok := types.QueryInt(c, "offset", 0)
		if !ok {
			return
		}

		list, total, err := deps.JobService.ListJobs(c.Request.Context(), types.UserID(c), limit, offset)
		if err != nil {
			types.SendError(c, err)
			return
		}

		out := make([]types.Transcript, 0, len(list))
		for i := range list {
			out = append(out, types.ToTranscript(&list[i], false))
		}

		types.SendSuccess(c, types.TranscriptsResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Transcripts retrieved"},
			Transcripts:  out,
			Count:        len(out),
			Total:        total,
			Offset:       offset,
		})
	}
}

// Get returns one of the caller's transcripts with its segments
// @Summary      Get a transcript
// @Tags         transcripts
// @Produce      json
// @Param        X-User-ID header string true "Caller identity"
// @Param        id path string true "Job ID"
// @Success      200 {object} types.TranscriptResponse
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Router       /api/v1/transcripts/{id} [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := deps.JobService.GetUserJob(c.Request.Context(), types.UserID(c), c.Param("id"))
		if err != nil {
			types.SendError(c, err)
			return
		}

		types.SendSuccess(c, types.TranscriptResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Transcript retrieved"},
			Transcript:   types.ToTranscript(job, true),
		})
	}
}
