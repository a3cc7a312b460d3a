package measurement

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nutriadmin/admin-api/internal/handler"
	"github.com/nutriadmin/admin-api/internal/middleware"
	"github.com/nutriadmin/admin-api/internal/model"
	"github.com/nutriadmin/admin-api/internal/service/measurement"
)

type Handler struct {
	service  measurement.MeasurementService
	maxBytes int64
}

func NewHandler(service measurement.MeasurementService, maxBytes int64) *Handler {
	return &Handler{service: service, maxBytes: maxBytes}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	imports := r.Group("/measurements/imports")
	{
		imports.POST("", h.Upload)
		imports.GET("", h.ListImports)
		imports.GET("/:id", h.GetImport)
	}
	r.GET("/patients/:id/measurements", h.GetPatientMeasurements)
}

// Upload accepts a multipart form with the workbook in "file" and the
// cohort in "subject_group".
func (h *Handler) Upload(c *gin.Context) {
	uploaderID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, handler.NewErrorResponse("file too large"))
			return
		}
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("file is required"))
		return
	}
	if fileHeader.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, handler.NewErrorResponse(
			fmt.Sprintf("file exceeds %d bytes", h.maxBytes)))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("failed to read file"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("failed to read file"))
		return
	}

	result, err := h.service.Upload(c.Request.Context(), &measurement.ImportRequest{
		Content:          content,
		OriginalFilename: fileHeader.Filename,
		SubjectGroupName: c.PostForm("subject_group"),
		UploaderID:       uploaderID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(result))
}

func (h *Handler) ListImports(c *gin.Context) {
	filter := model.ImportSessionFilter{SubjectGroupName: c.Query("subject_group")}
	if err := c.ShouldBindQuery(&filter.Pagination); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid pagination"))
		return
	}

	sessions, err := h.service.ListImportSessions(c.Request.Context(), &filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(sessions))
}

func (h *Handler) GetImport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid import id"))
		return
	}

	session, err := h.service.GetImportSession(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(session))
}

func (h *Handler) GetPatientMeasurements(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient id"))
		return
	}

	filter := model.PatientMeasurementFilter{PatientID: id}
	if err := c.ShouldBindQuery(&filter.Pagination); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid pagination"))
		return
	}

	history, err := h.service.GetPatientHistory(c.Request.Context(), &filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(history))
}

func (h *Handler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var dupErr *measurement.DuplicateFileError
	if errors.As(err, &dupErr) {
		c.JSON(http.StatusConflict, handler.NewErrorResponseWithData(
			"file already imported", gin.H{"session_id": dupErr.SessionID}))
		return
	}

	appErr := measurement.ToAppError(err)
	status := appErr.StatusCode()
	msg := appErr.Message
	if status < http.StatusInternalServerError {
		msg = appErr.Error()
	}
	c.JSON(status, handler.NewErrorResponse(msg))
}
