package usage

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/echonote-api/api/types"
)

const maxHistoryMonths = 24

// Get returns the caller's usage for the current month and recent history
// @Summary      Get transcription usage
// @Tags         usage
// @Produce      json
// @Param        X-User-ID header string true "Caller identity"
// @Param        months query int false "History length in months" default(6)
// @Success      200 {object} types.UsageResponse
// @Router       /api/v1/usage [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		months, ok := types.QueryInt(c, "months", 6)
		if !ok {
			return
		}
		if months > maxHistoryMonths {
			months = maxHistoryMonths
		}

		userID := types.UserID(c)
		current, err := deps.Usage.GetUsage(c.Request.Context(), userID, time.Now())
		if err != nil {
			types.SendError(c, err)
			return
		}

		history := make([]types.UsagePeriod, 0, months)
		if months > 0 {
			records, err := deps.Usage.ListUsage(c.Request.Context(), userID, months)
			if err != nil {
				types.SendError(c, err)
				return
			}
			for _, r := range records {
				history = append(history, types.ToUsagePeriod(r))
			}
		}

		types.SendSuccess(c, types.UsageResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Usage retrieved"},
			Current:      types.ToUsagePeriod(*current),
			History:      history,
		})
	}
}
