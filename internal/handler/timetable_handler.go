package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusforge/timetable-scheduler/internal/dto"
	internalmiddleware "github.com/campusforge/timetable-scheduler/internal/middleware"
	"github.com/campusforge/timetable-scheduler/internal/service"
	appErrors "github.com/campusforge/timetable-scheduler/pkg/errors"
	"github.com/campusforge/timetable-scheduler/pkg/response"
)

// TimetableHandler exposes the generate/validate/check_edit operations and
// the §4.5 lifecycle transitions over HTTP.
type TimetableHandler struct {
	service *service.TimetableService
}

// NewTimetableHandler constructs a timetable handler.
func NewTimetableHandler(svc *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

type createRunRequest struct {
	Name string `json:"name" binding:"required"`
	dto.GenerateRequest
}

type createRunResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Create godoc
// @Summary Create a timetable run and enqueue generation
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body createRunRequest true "Problem payload"
// @Success 202 {object} response.Envelope
// @Router /timetables [post]
func (h *TimetableHandler) Create(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	run, err := h.service.Create(c.Request.Context(), req.Name, req.GenerateRequest)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.service.Generate(c.Request.Context(), run.ID); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, createRunResponse{ID: run.ID, Status: string(run.Status)}, nil)
}

// Result godoc
// @Summary Fetch a timetable run and its solution, if ready
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Result(c *gin.Context) {
	run, result, cacheHit, err := h.service.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	internalmiddleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, gin.H{"run": run, "result": result}, nil, internalmiddleware.ExtractMeta(c))
}

// Validate godoc
// @Summary Validate a caller-supplied schedule against a problem
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.ValidateRequest true "Validate payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/validate [post]
func (h *TimetableHandler) Validate(c *gin.Context) {
	var req dto.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.service.Validate(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CheckEdit godoc
// @Summary Check a single proposed edit against a run's last solution
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Run ID"
// @Param payload body dto.EditInput true "Edit payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/check-edit [post]
func (h *TimetableHandler) CheckEdit(c *gin.Context) {
	var edit dto.EditInput
	if err := c.ShouldBindJSON(&edit); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.service.CheckEditForRun(c.Request.Context(), c.Param("id"), edit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Publish godoc
// @Summary Publish a GENERATED run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 204
// @Router /timetables/{id}/publish [post]
func (h *TimetableHandler) Publish(c *gin.Context) {
	if err := h.service.Publish(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Archive godoc
// @Summary Archive a run regardless of its current status
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 204
// @Router /timetables/{id}/archive [post]
func (h *TimetableHandler) Archive(c *gin.Context) {
	if err := h.service.Archive(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
