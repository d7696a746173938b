package controller

import (
	"context"
	"strconv"

	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/internal/judge/result"
	"codejudge/internal/submit/repository"
	"codejudge/internal/submit/service"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmitAPI is the part of SubmitService the HTTP layer calls.
type SubmitAPI interface {
	Submit(ctx context.Context, input service.SubmitInput) (service.SubmitResult, error)
	Run(ctx context.Context, input service.RunInput) (service.RunResult, error)
	ListSubmissions(ctx context.Context, userID, problemID int64) ([]repository.Submission, error)
	GetSubmission(ctx context.Context, userID int64, submissionID string) (*repository.Submission, error)
}

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService SubmitAPI
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService SubmitAPI) *SubmitController {
	return &SubmitController{submitService: submitService}
}

// RegisterRoutes mounts the submission routes on an authenticated group.
func (h *SubmitController) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/problems/:id/submit", h.Submit)
	group.POST("/problems/:id/run", h.Run)
	group.GET("/problems/:id/submissions", h.List)
	group.GET("/submissions/:id", h.Get)
}

// Submit judges code against the hidden cases.
func (h *SubmitController) Submit(c *gin.Context) {
	input, ok := bindInput(c)
	if !ok {
		return
	}
	result, err := h.submitService.Submit(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Run judges code against the visible cases.
func (h *SubmitController) Run(c *gin.Context) {
	input, ok := bindInput(c)
	if !ok {
		return
	}
	result, err := h.submitService.Run(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// List returns the caller's submissions for one problem.
func (h *SubmitController) List(c *gin.Context) {
	userID, ok := commonmw.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	problemID, ok := problemIDParam(c)
	if !ok {
		return
	}
	submissions, err := h.submitService.ListSubmissions(c.Request.Context(), userID, problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]SubmissionItem, 0, len(submissions))
	for _, s := range submissions {
		items = append(items, toSubmissionItem(s))
	}
	response.Success(c, ListResponse{Items: items})
}

// Get returns one of the caller's submissions.
func (h *SubmitController) Get(c *gin.Context) {
	userID, ok := commonmw.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	submission, err := h.submitService.GetSubmission(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toSubmissionItem(*submission))
}

func bindInput(c *gin.Context) (service.SubmitInput, bool) {
	userID, ok := commonmw.UserID(c)
	if !ok {
		response.Unauthorized(c, "")
		return service.SubmitInput{}, false
	}
	problemID, ok := problemIDParam(c)
	if !ok {
		return service.SubmitInput{}, false
	}
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErr.Wrapf(err, appErr.ValidationFailed, "code and language are required"))
		return service.SubmitInput{}, false
	}
	return service.SubmitInput{
		UserID:     userID,
		ProblemID:  problemID,
		Language:   req.Language,
		SourceCode: req.Code,
	}, true
}

func problemIDParam(c *gin.Context) (int64, bool) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.Error(c, appErr.ValidationError("problem_id", "invalid"))
		return 0, false
	}
	return problemID, true
}

// toSubmissionItem only exposes compiler output; runtime stderr comes from hidden cases.
func toSubmissionItem(s repository.Submission) SubmissionItem {
	item := SubmissionItem{
		SubmissionID:    s.ID,
		ProblemID:       s.ProblemID,
		Language:        s.Language,
		SourceCode:      s.SourceCode,
		Status:          string(s.Status),
		PassedTestCases: s.PassedTestCases,
		TotalTestCases:  s.TotalTestCases,
		Runtime:         s.Runtime,
		Memory:          s.Memory,
		CreatedAt:       s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if s.Status == result.StatusCompileError {
		item.ErrorMessage = s.ErrorMessage
	}
	return item
}

// CodeRequest is the body of submit and run.
type CodeRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
}

// SubmissionItem is one entry of the submission history.
type SubmissionItem struct {
	SubmissionID    string  `json:"submission_id"`
	ProblemID       int64   `json:"problem_id"`
	Language        string  `json:"language"`
	SourceCode      string  `json:"source_code"`
	Status          string  `json:"status"`
	PassedTestCases int     `json:"passed_test_cases"`
	TotalTestCases  int     `json:"total_test_cases"`
	Runtime         float64 `json:"runtime"`
	Memory          int64   `json:"memory"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// ListResponse wraps the submission history.
type ListResponse struct {
	Items []SubmissionItem `json:"items"`
}
