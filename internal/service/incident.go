package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/config"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/detector"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/dispatch"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/webhook"
)

// ErrFakeEvidence - приложенное изображение признано поддельным, прием инцидента отклонен
var ErrFakeEvidence = errors.New("fake evidence detected")

// ErrInvalidInput - некорректные входные данные (координаты, серьезность, статус)
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound - запрошенная запись отсутствует; репозитории оборачивают его
// при pgx.ErrNoRows, обработчики проверяют через errors.Is для ответа 404
var ErrNotFound = errors.New("not found")

// IncidentRepository определяет контракт для работы с бд инцидентов
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	List(ctx context.Context, status string, page, pageSize int) ([]*models.Incident, error)
	UpdateDispatch(ctx context.Context, id uuid.UUID, status string, dispatched int) error
	SaveAssignments(ctx context.Context, incidentID uuid.UUID, assignments []*models.Assignment) error
	ListAssignments(ctx context.Context, incidentID uuid.UUID) ([]*models.Assignment, error)
	DeleteAssignments(ctx context.Context, incidentID uuid.UUID) error
	SaveAttachment(ctx context.Context, attachment *models.Attachment) error
	SaveSensorReading(ctx context.Context, reading *models.SensorReading) error
	GetStats(ctx context.Context) (*models.DispatchStats, error)

	GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	SetIncidentCache(ctx context.Context, incident *models.Incident) error
	InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error
}

// DepartmentRepository определяет контракт для справочника пожарных частей
type DepartmentRepository interface {
	Create(ctx context.Context, department *models.FireDepartment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.FireDepartment, error)
	Update(ctx context.Context, department *models.FireDepartment) error
	List(ctx context.Context) ([]*models.FireDepartment, error)
}

// FakeImageDetector - оракул подлинности изображений
type FakeImageDetector interface {
	CheckImage(ctx context.Context, fileName, mimeType string, content io.Reader) (*detector.Verdict, error)
}

// EvidenceFile - файл-доказательство, приложенный к сообщению об инциденте
type EvidenceFile struct {
	FileName string
	MimeType string
	Size     int64
	Content  io.Reader
}

// ReportResult - итог приема инцидента: кто и сколько отправил, чего не хватило
type ReportResult struct {
	Incident    *models.Incident
	Assignments []*models.Assignment
	Required    int
	Shortfall   int
}

// StatusUpdateResult - итог смены статуса с информацией о возврате спасателей
type StatusUpdateResult struct {
	Incident        *models.Incident
	ReclaimedTo     *uuid.UUID
	ReclaimedAmount int
}

// IncidentService определяет контракт для бизнес-логики управления инцидентами
type IncidentService interface {
	ReportIncident(ctx context.Context, incident *models.Incident, evidence []EvidenceFile) (*ReportResult, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus string) (*StatusUpdateResult, error)
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, status string, page, pageSize int) ([]*models.Incident, error)
	ListAssignments(ctx context.Context, incidentID uuid.UUID) ([]*models.Assignment, error)
	IngestSensorReading(ctx context.Context, reading *models.SensorReading) (*models.Incident, error)
	GetStats(ctx context.Context) (*models.DispatchStats, error)
}

type incidentService struct {
	incidents   IncidentRepository
	departments DepartmentRepository
	coordinator *dispatch.Coordinator
	detector    FakeImageDetector
	publisher   webhook.EventPublisher
	logger      *logrus.Logger
	cfg         *config.Config
}

func NewIncidentService(
	incidents IncidentRepository,
	departments DepartmentRepository,
	coordinator *dispatch.Coordinator,
	fakeDetector FakeImageDetector,
	publisher webhook.EventPublisher,
	logger *logrus.Logger,
	cfg *config.Config,
) IncidentService {
	return &incidentService{
		incidents:   incidents,
		departments: departments,
		coordinator: coordinator,
		detector:    fakeDetector,
		publisher:   publisher,
		logger:      logger,
		cfg:         cfg,
	}
}

// ReportIncident принимает сообщение об инциденте: проверяет доказательства,
// сохраняет инцидент и запускает выделение спасателей из ближайших частей.
// Нехватка ёмкости не ошибка - инцидент создается и при полном дефиците.
func (s *incidentService) ReportIncident(ctx context.Context, incident *models.Incident, evidence []EvidenceFile) (*ReportResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "ReportIncident",
		"type":    incident.Type,
	})
	log.Info("Attempting to report a new incident")

	if !incident.Location().Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	if incident.SeverityScore < models.MinSeverityScore || incident.SeverityScore > models.MaxSeverityScore {
		return nil, fmt.Errorf("%w: severity score %d out of range", ErrInvalidInput, incident.SeverityScore)
	}

	// Гейт на поддельные изображения: любое фейковое доказательство
	// отклоняет сообщение до создания инцидента
	for _, file := range evidence {
		verdict, err := s.detector.CheckImage(ctx, file.FileName, file.MimeType, file.Content)
		if err != nil {
			log.WithError(err).WithField("file_name", file.FileName).Warn("Fake image check failed, accepting evidence")
			continue
		}
		if verdict.IsFake {
			log.WithFields(logrus.Fields{
				"file_name":  file.FileName,
				"confidence": verdict.Confidence,
			}).Warn("Evidence flagged as fake, rejecting incident report")
			return nil, fmt.Errorf("%w: file %q: %s", ErrFakeEvidence, file.FileName, verdict.Reason)
		}
	}

	incident.Status = models.StatusOpen
	incident.DispatchedResponders = 0
	if err := s.incidents.Create(ctx, incident); err != nil {
		log.WithError(err).Error("Failed to create incident in repository")
		return nil, fmt.Errorf("service: could not create incident: %w", err)
	}
	log = log.WithField("incident_id", incident.ID)

	for _, file := range evidence {
		attachment := &models.Attachment{
			IncidentID:    incident.ID,
			FileName:      file.FileName,
			MimeType:      file.MimeType,
			FileSizeBytes: file.Size,
		}
		if err := s.incidents.SaveAttachment(ctx, attachment); err != nil {
			log.WithError(err).WithField("file_name", file.FileName).Error("Failed to save attachment metadata")
		}
	}

	result, err := s.allocate(ctx, incident)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"dispatched": incident.DispatchedResponders,
		"shortfall":  result.Shortfall,
		"status":     incident.Status,
	}).Info("Incident reported")
	return result, nil
}

// allocate запускает координатор и сохраняет фактические назначения
func (s *incidentService) allocate(ctx context.Context, incident *models.Incident) (*ReportResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "allocate",
		"incident_id": incident.ID,
	})

	departments, err := s.departments.List(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list departments for allocation")
		return nil, fmt.Errorf("service: could not list departments: %w", err)
	}

	candidates := make([]dispatch.Candidate, 0, len(departments))
	for _, d := range departments {
		candidates = append(candidates, dispatch.Candidate{
			ID:        d.ID,
			Name:      d.Name,
			Location:  d.Location(),
			Available: d.AvailableResponders,
		})
	}

	allocation, err := s.coordinator.Allocate(ctx, incident.ID, incident.Location(), incident.SeverityScore, candidates)
	if err != nil {
		log.WithError(err).Error("Failed to allocate responders")
		return nil, fmt.Errorf("service: could not allocate responders: %w", err)
	}

	assignments := make([]*models.Assignment, 0, len(allocation.Assignments))
	for _, a := range allocation.Assignments {
		assignments = append(assignments, &models.Assignment{
			IncidentID:           incident.ID,
			FireDepartmentID:     a.DepartmentID,
			FireDepartmentName:   a.DepartmentName,
			RespondersDispatched: a.Amount,
		})
	}
	if len(assignments) > 0 {
		if err := s.incidents.SaveAssignments(ctx, incident.ID, assignments); err != nil {
			log.WithError(err).Error("Failed to save assignments")
			return nil, fmt.Errorf("service: could not save assignments: %w", err)
		}
	}

	incident.Status = allocation.Status
	incident.DispatchedResponders = allocation.Dispatched
	if err := s.incidents.UpdateDispatch(ctx, incident.ID, incident.Status, incident.DispatchedResponders); err != nil {
		log.WithError(err).Error("Failed to update incident dispatch state")
		return nil, fmt.Errorf("service: could not update incident: %w", err)
	}

	if err := s.incidents.SetIncidentCache(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to cache incident")
	}

	eventName := webhook.EventIncidentReported
	if allocation.Dispatched > 0 {
		eventName = webhook.EventIncidentDispatched
	}
	s.publishEvent(ctx, webhook.Event{
		Event:                eventName,
		IncidentID:           incident.ID,
		Status:               incident.Status,
		DispatchedResponders: incident.DispatchedResponders,
		Shortfall:            allocation.Shortfall,
	})

	return &ReportResult{
		Incident:    incident,
		Assignments: assignments,
		Required:    allocation.Required,
		Shortfall:   allocation.Shortfall,
	}, nil
}

// UpdateStatus меняет статус инцидента. При выходе из in_process отправленные
// спасатели возвращаются ближайшей к инциденту части, счетчик сбрасывается.
func (s *incidentService) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus string) (*StatusUpdateResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "UpdateStatus",
		"incident_id": id,
		"new_status":  newStatus,
	})
	log.Info("Attempting to update incident status")

	if !models.ValidStatus(newStatus) {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, newStatus)
	}

	// Читаем напрямую из бд: для решения о возврате нужен актуальный счетчик
	incident, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted to update status of a non-existent incident")
		return nil, fmt.Errorf("service: could not load incident %s: %w", id, err)
	}

	departments, err := s.departments.List(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list departments for reclamation")
		return nil, fmt.Errorf("service: could not list departments: %w", err)
	}
	candidates := make([]dispatch.Candidate, 0, len(departments))
	for _, d := range departments {
		candidates = append(candidates, dispatch.Candidate{
			ID:        d.ID,
			Name:      d.Name,
			Location:  d.Location(),
			Available: d.AvailableResponders,
		})
	}

	change, err := s.coordinator.ChangeStatus(ctx, incident, newStatus, candidates)
	if err != nil {
		log.WithError(err).Error("Failed to apply status change")
		return nil, fmt.Errorf("service: could not change status: %w", err)
	}

	reclaimed := change.DispatchedResponders == 0 && incident.DispatchedResponders > 0

	if err := s.incidents.UpdateDispatch(ctx, id, change.NewStatus, change.DispatchedResponders); err != nil {
		log.WithError(err).Error("Failed to persist status change")
		return nil, fmt.Errorf("service: could not update incident: %w", err)
	}
	if reclaimed {
		if err := s.incidents.DeleteAssignments(ctx, id); err != nil {
			log.WithError(err).Warn("Failed to delete incident assignments after reclaim")
		}
	}

	if err := s.incidents.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}

	incident.Status = change.NewStatus
	incident.DispatchedResponders = change.DispatchedResponders

	if change.ReclaimedTo != nil {
		s.publishEvent(ctx, webhook.Event{
			Event:           webhook.EventIncidentReclaimed,
			IncidentID:      incident.ID,
			Status:          incident.Status,
			ReclaimedTo:     change.ReclaimedTo,
			ReclaimedAmount: change.ReclaimedAmount,
		})
	}

	log.WithField("reclaimed", reclaimed).Info("Incident status updated")
	return &StatusUpdateResult{
		Incident:        incident,
		ReclaimedTo:     change.ReclaimedTo,
		ReclaimedAmount: change.ReclaimedAmount,
	}, nil
}

// GetIncident получает инцидент по ID, сначала из кеша
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})

	cached, err := s.incidents.GetIncidentFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read incident from cache")
	}
	if cached != nil {
		return cached, nil
	}

	incident, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to get incident from repository")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}

	if err := s.incidents.SetIncidentCache(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to cache incident")
	}
	return incident, nil
}

// ListIncidents возвращает список инцидентов с фильтром по статусу и пагинацией
func (s *incidentService) ListIncidents(ctx context.Context, status string, page, pageSize int) ([]*models.Incident, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	if status != "" && !models.ValidStatus(status) {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "ListIncidents",
		"status":    status,
		"page":      page,
		"page_size": pageSize,
	})

	incidents, err := s.incidents.List(ctx, status, page, pageSize)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Info("Incidents listed successfully")
	return incidents, nil
}

// ListAssignments возвращает назначения частей для инцидента
func (s *incidentService) ListAssignments(ctx context.Context, incidentID uuid.UUID) ([]*models.Assignment, error) {
	assignments, err := s.incidents.ListAssignments(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("service: could not list assignments: %w", err)
	}
	return assignments, nil
}

// IngestSensorReading сохраняет показание датчика. Показания с серьезностью
// не ниже порога открывают инцидент через обычный путь выделения ресурсов.
func (s *incidentService) IngestSensorReading(ctx context.Context, reading *models.SensorReading) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "IngestSensorReading",
		"sensor_id": reading.SensorID,
		"severity":  reading.Severity,
	})
	log.Info("Ingesting sensor reading")

	var incident *models.Incident
	if reading.Severity >= s.cfg.SensorSeverityThreshold {
		score := int(math.Round(reading.Severity))
		if score < models.MinSeverityScore {
			score = models.MinSeverityScore
		}
		if score > models.MaxSeverityScore {
			score = models.MaxSeverityScore
		}

		incident = &models.Incident{
			Type:          reading.MetricType,
			Description:   reading.Description,
			Latitude:      reading.Latitude,
			Longitude:     reading.Longitude,
			SeverityScore: score,
		}
		if _, err := s.ReportIncident(ctx, incident, nil); err != nil {
			log.WithError(err).Error("Failed to open incident from sensor reading")
			return nil, fmt.Errorf("service: could not open incident from sensor reading: %w", err)
		}
		reading.IncidentID = &incident.ID
		log.WithField("incident_id", incident.ID).Info("Sensor reading opened an incident")
	}

	if err := s.incidents.SaveSensorReading(ctx, reading); err != nil {
		log.WithError(err).Error("Failed to save sensor reading")
		return nil, fmt.Errorf("service: could not save sensor reading: %w", err)
	}
	return incident, nil
}

// GetStats возвращает сводку по инцидентам и задействованным спасателям
func (s *incidentService) GetStats(ctx context.Context) (*models.DispatchStats, error) {
	stats, err := s.incidents.GetStats(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get dispatch stats")
		return nil, fmt.Errorf("service: could not get stats: %w", err)
	}
	return stats, nil
}

// publishEvent публикует событие, не прерывая основную операцию при сбое очереди
func (s *incidentService) publishEvent(ctx context.Context, event webhook.Event) {
	event.Timestamp = time.Now().UTC()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event", event.Event).Warn("Failed to publish dispatch event")
	}
}
