package controller

import (
	"context"

	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SolvedLister lists the problems a user has solved.
type SolvedLister interface {
	ListSolved(ctx context.Context, userID int64) ([]int64, error)
}

// SolvedController serves the caller's solved problems.
type SolvedController struct {
	lister SolvedLister
}

func NewSolvedController(lister SolvedLister) *SolvedController {
	return &SolvedController{lister: lister}
}

// ListMine handles GET /users/me/solved.
func (h *SolvedController) ListMine(c *gin.Context) {
	userID, ok := commonmw.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	problemIDs, err := h.lister.ListSolved(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SolvedResponse{ProblemIDs: problemIDs, Count: len(problemIDs)})
}

// SolvedResponse defines the solved list payload.
type SolvedResponse struct {
	ProblemIDs []int64 `json:"problem_ids"`
	Count      int     `json:"count"`
}
