package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/config"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/service"
)

type Handler struct {
	incidentService   service.IncidentService
	departmentService service.DepartmentService
	logger            *logrus.Logger
	validate          *validator.Validate
	cfg               *config.Config
}

func NewHandler(
	incidentService service.IncidentService,
	departmentService service.DepartmentService,
	logger *logrus.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		incidentService:   incidentService,
		departmentService: departmentService,
		logger:            logger,
		validate:          validator.New(),
		cfg:               cfg,
	}
}

// @Summary Report a new incident
// @Description Report a new incident with optional image evidence. Responders are allocated from the nearest fire departments. Requires API key.
// @Tags Incidents
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param incident body ReportIncidentRequest true "Incident report"
// @Success 201 {object} ReportIncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 422 {object} map[string]string "Evidence flagged as fake"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [post]
func (h *Handler) reportIncident(c *gin.Context) {
	var input ReportIncidentRequest
	log := h.logger.WithField("method", "reportIncident")

	evidence, err := h.bindReport(c, &input)
	if err != nil {
		log.WithError(err).Warn("Failed to bind incident report")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Сообщение без оценки серьезности принимаем с минимальной
	if input.SeverityScore == 0 {
		input.SeverityScore = models.MinSeverityScore
	}

	result, err := h.incidentService.ReportIncident(c.Request.Context(), DTOToIncidentModel(input), evidence)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFakeEvidence):
			log.WithError(err).Warn("Incident report rejected: fake evidence")
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "evidence flagged as fake"})
		case errors.Is(err, service.ErrInvalidInput):
			log.WithError(err).Warn("Incident report rejected: invalid input")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.WithError(err).Error("Failed to report incident in service")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusCreated, ReportResultToResponse(result))
}

// bindReport разбирает сообщение об инциденте из JSON или multipart формы
// с приложенными файлами-доказательствами
func (h *Handler) bindReport(c *gin.Context, input *ReportIncidentRequest) ([]service.EvidenceFile, error) {
	contentType := c.GetHeader("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		return nil, c.ShouldBindJSON(input)
	}

	if err := c.ShouldBind(input); err != nil {
		return nil, err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}

	evidence := make([]service.EvidenceFile, 0, len(form.File["evidence"]))
	for _, fileHeader := range form.File["evidence"] {
		file, err := fileHeader.Open()
		if err != nil {
			return nil, err
		}
		defer file.Close()
		evidence = append(evidence, service.EvidenceFile{
			FileName: fileHeader.Filename,
			MimeType: fileHeader.Header.Get("Content-Type"),
			Size:     fileHeader.Size,
			Content:  file,
		})
	}
	return evidence, nil
}

// @Summary Get a list of incidents
// @Description Get a paginated list of incidents, optionally filtered by status. Requires API key.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param status query string false "Filter by status" Enums(open, in_process, resolved)
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid status filter"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")
	status := c.Query("status")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	incidents, err := h.incidentService.ListIncidents(c.Request.Context(), status, page, pageSize)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.WithError(err).Error("Failed to list incidents from service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Get incident by ID
// @Description Get a single incident by its ID. Requires API key.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "getIncident").WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident from service")
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Get incident assignments
// @Description Get the fire department assignments of an incident. Requires API key.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {array} AssignmentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/assignments [get]
func (h *Handler) listAssignments(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "listAssignments").WithField("id", id)

	assignments, err := h.incidentService.ListAssignments(c.Request.Context(), id)
	if err != nil {
		log.WithError(err).Error("Failed to list assignments from service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, ModelsToAssignmentResponses(assignments))
}

// @Summary Update incident status
// @Description Update the status of an incident. Leaving in_process returns dispatched responders to the nearest fire department. Requires API key.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param status body UpdateStatusRequest true "New status"
// @Success 200 {object} UpdateStatusResponse
// @Failure 400 {object} map[string]string "Invalid request body or status"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/status [put]
func (h *Handler) updateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}
	log := h.logger.WithField("method", "updateStatus").WithField("id", id)

	var input UpdateStatusRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.incidentService.UpdateStatus(c.Request.Context(), id, input.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		default:
			log.WithError(err).Error("Failed to update incident status in service")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, StatusResultToResponse(result))
}

// @Summary Create a fire department
// @Description Register a new fire department with its roster of available responders. Requires API key.
// @Tags Departments
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param department body DepartmentRequest true "Fire department"
// @Success 201 {object} DepartmentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /departments [post]
func (h *Handler) createDepartment(c *gin.Context) {
	var input DepartmentRequest
	log := h.logger.WithField("method", "createDepartment")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model := DTOToDepartmentModel(input)
	if err := h.departmentService.CreateDepartment(c.Request.Context(), model); err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.WithError(err).Error("Failed to create department in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, ModelToDepartmentResponse(model))
}

// @Summary Update a fire department
// @Description Update the profile of a fire department. The responder counter is managed by dispatching and is not updated here. Requires API key.
// @Tags Departments
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Department ID"
// @Param department body DepartmentRequest true "Fire department"
// @Success 200 {object} DepartmentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Department not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /departments/{id} [put]
func (h *Handler) updateDepartment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid department ID"})
		return
	}
	log := h.logger.WithField("method", "updateDepartment").WithField("id", id)

	var input DepartmentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model := DTOToDepartmentModel(input)
	model.ID = id
	if err := h.departmentService.UpdateDepartment(c.Request.Context(), model); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "department not found"})
		default:
			log.WithError(err).Error("Failed to update department in service")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}
	c.JSON(http.StatusOK, ModelToDepartmentResponse(model))
}

// @Summary Get fire department by ID
// @Description Get a single fire department by its ID. Requires API key.
// @Tags Departments
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Department ID"
// @Success 200 {object} DepartmentResponse
// @Failure 400 {object} map[string]string "Invalid department ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Department not found"
// @Router /departments/{id} [get]
func (h *Handler) getDepartment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid department ID"})
		return
	}
	log := h.logger.WithField("method", "getDepartment").WithField("id", id)

	department, err := h.departmentService.GetDepartment(c.Request.Context(), id)
	if err != nil {
		log.WithError(err).Warn("Failed to get department from service")
		c.JSON(http.StatusNotFound, gin.H{"error": "department not found"})
		return
	}
	c.JSON(http.StatusOK, ModelToDepartmentResponse(department))
}

// @Summary Get a list of fire departments
// @Description Get all registered fire departments. Requires API key.
// @Tags Departments
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} DepartmentResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /departments [get]
func (h *Handler) listDepartments(c *gin.Context) {
	log := h.logger.WithField("method", "listDepartments")

	departments, err := h.departmentService.ListDepartments(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("Failed to list departments from service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, ModelsToDepartmentResponses(departments))
}

// @Summary Get dispatch statistics
// @Description Get incident counts per status and the total of dispatched responders. Requires API key.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} StatsResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/stats [get]
func (h *Handler) getStats(c *gin.Context) {
	log := h.logger.WithField("method", "getStats")

	stats, err := h.incidentService.GetStats(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("Failed to get stats from service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, StatsToResponse(stats))
}

// @Summary Health check
// @Description Check service health.
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
