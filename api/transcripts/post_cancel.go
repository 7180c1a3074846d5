package transcripts

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/echonote-api/api/types"
)

// Cancel stops one of the caller's transcripts
// @Summary      Cancel a transcript
// @Description  Pending jobs fail at once; processing jobs stop dispatching chunks and fail shortly after
// @Tags         transcripts
// @Produce      json
// @Param        X-User-ID header string true "Caller identity"
// @Param        id path string true "Job ID"
// @Success      200 {object} types.TranscriptResponse
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Failure      409 {object} types.ErrorResponse "Already finished"
// @Router       /api/v1/transcripts/{id}/cancel [post]
func Cancel(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		job, err := deps.JobService.GetUserJob(ctx, types.UserID(c), c.Param("id"))
		if err != nil {
			types.SendError(c, err)
			return
		}

		job, err = deps.Jobs.Cancel(ctx, job.ID)
		if err != nil {
			types.SendError(c, err)
			return
		}

		types.SendSuccess(c, types.TranscriptResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Cancellation requested"},
			Transcript:   types.ToTranscript(job, false),
		})
	}
}
