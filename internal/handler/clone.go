package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/voicemirror/api/internal/client"
	"github.com/voicemirror/api/internal/model"
	"github.com/voicemirror/api/internal/service"
	"github.com/voicemirror/api/pkg/response"
)

type CloneHandler struct {
	service   *service.CloneService
	validator *validator.Validate
}

func NewCloneHandler(svc *service.CloneService, v *validator.Validate) *CloneHandler {
	return &CloneHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/clone_start: it validates the multipart form,
// persists the reference, and returns a job id for polling. Synthesis runs
// in the background; this endpoint never blocks on it.
func (h *CloneHandler) Start(c *fiber.Ctx) error {
	req := &model.CloneStartRequest{
		Text:     strings.TrimSpace(c.FormValue("text")),
		Language: strings.TrimSpace(c.FormValue("language")),
		Device:   strings.TrimSpace(c.FormValue("device")),
	}
	if req.Language == "" {
		req.Language = "en"
	}

	if req.Text == "" {
		return response.BadRequest(c, "Text is required.")
	}

	fileHeader, err := c.FormFile("reference")
	if err != nil || fileHeader.Filename == "" {
		return response.BadRequest(c, "Reference audio file is required.")
	}
	if !service.AllowedFile(fileHeader.Filename) {
		return response.BadRequest(c, "Unsupported file type. Use wav, mp3, m4a, flac, ogg, opus, or webm.")
	}

	if err := h.validator.Struct(req); err != nil {
		return response.BadRequest(c, formatValidationError(err))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to read upload")
	}
	defer file.Close()

	jobID, err := h.service.StartClone(req, fileHeader.Filename, file)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.CloneStartResponse{
		Success: true,
		JobID:   jobID,
	})
}

// Status handles GET /api/clone_status/:jobId.
func (h *CloneHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.BadRequest(c, "Job ID is required.")
	}

	job, err := h.service.Status(jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Invalid job id")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.CloneStatusResponse{
		Success:  true,
		Status:   job.Status,
		Steps:    job.Steps,
		Error:    job.Error,
		AudioURL: job.AudioURL,
	})
}

// Clone handles POST /api/clone, the legacy blocking endpoint: the whole
// pipeline runs inside the request and the artifact locator is returned
// directly.
func (h *CloneHandler) Clone(c *fiber.Ctx) error {
	req := &model.CloneStartRequest{
		Text:     strings.TrimSpace(c.FormValue("text")),
		Language: strings.TrimSpace(c.FormValue("language")),
		Device:   strings.TrimSpace(c.FormValue("device")),
	}
	if req.Language == "" {
		req.Language = "en"
	}

	if req.Text == "" {
		return response.BadRequest(c, "Text is required.")
	}

	fileHeader, err := c.FormFile("reference")
	if err != nil || fileHeader.Filename == "" {
		return response.BadRequest(c, "Reference audio file is required.")
	}
	if !service.AllowedFile(fileHeader.Filename) {
		return response.BadRequest(c, "Unsupported file type. Use wav, mp3, m4a, flac, ogg, opus, or webm.")
	}

	if err := h.validator.Struct(req); err != nil {
		return response.BadRequest(c, formatValidationError(err))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to read upload")
	}
	defer file.Close()

	audioURL, err := h.service.CloneSync(c.Context(), req, fileHeader.Filename, file)
	if err != nil {
		if errors.Is(err, client.ErrConverterUnavailable) {
			return response.BadRequest(c, "Reference format not supported by backend: install ffmpeg or upload WAV/OGG/OPUS/MP3/FLAC.")
		}
		var convErr *client.ConversionError
		if errors.As(err, &convErr) {
			return response.BadRequest(c, convErr.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.CloneResponse{
		Success:  true,
		AudioURL: audioURL,
	})
}

// formatValidationError flattens validator errors into one message.
func formatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fields := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			fields = append(fields, strings.ToLower(e.Field()))
		}
		return "Invalid value for: " + strings.Join(fields, ", ")
	}
	return "Validation failed"
}
