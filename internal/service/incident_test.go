package service_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/config"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/detector"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/dispatch"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/service"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/service/mocks"
	webhook_mocks "github.com/elton-saraci/pmrexpo-incident-management-platform/internal/webhook/mocks"
)

type incidentServiceMocks struct {
	incidents   *mocks.MockIncidentRepository
	departments *mocks.MockDepartmentRepository
	detector    *mocks.MockFakeImageDetector
	publisher   *webhook_mocks.MockEventPublisher
	store       *dispatch.MemoryCapacityStore
}

// newTestIncidentService — вспомогательная функция для создания инстанса сервиса с моками.
// Координатор работает поверх реального in-memory хранилища ёмкости.
func newTestIncidentService(t *testing.T) (service.IncidentService, *incidentServiceMocks) {
	ctrl := gomock.NewController(t)
	m := &incidentServiceMocks{
		incidents:   mocks.NewMockIncidentRepository(ctrl),
		departments: mocks.NewMockDepartmentRepository(ctrl),
		detector:    mocks.NewMockFakeImageDetector(ctrl),
		publisher:   webhook_mocks.NewMockEventPublisher(ctrl),
		store:       dispatch.NewMemoryCapacityStore(),
	}

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		SensorSeverityThreshold: 7.0,
	}

	coordinator := dispatch.NewCoordinator(m.store, logger)
	svc := service.NewIncidentService(m.incidents, m.departments, coordinator, m.detector, m.publisher, logger, cfg)
	return svc, m
}

// testDepartment регистрирует пожарную часть в in-memory хранилище ёмкости
// и возвращает её модель.
func testDepartment(m *incidentServiceMocks, name string, lonOffset float64, available int) *models.FireDepartment {
	department := &models.FireDepartment{
		ID:                  uuid.New(),
		Name:                name,
		City:                "Köln",
		Latitude:            50.9375,
		Longitude:           6.9603 + lonOffset,
		AvailableResponders: available,
	}
	m.store.Register(department.ID, available)
	return department
}

func TestReportIncident_AllocatesFromNearest(t *testing.T) {
	// Подготовка
	svc, m := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	near := testDepartment(m, "Station Deutz", 0.01, 30)
	far := testDepartment(m, "Station Ehrenfeld", 0.1, 40)

	incident := &models.Incident{
		Type:          "fire",
		Latitude:      50.9375,
		Longitude:     6.9603,
		SeverityScore: 5, // требуется 50 спасателей
	}

	// Ожидания
	m.incidents.EXPECT().
		Create(ctx, incident).
		DoAndReturn(func(_ context.Context, i *models.Incident) error {
			i.ID = incidentID
			return nil
		}).
		Times(1)
	m.departments.EXPECT().
		List(ctx).
		Return([]*models.FireDepartment{far, near}, nil).
		Times(1)
	m.incidents.EXPECT().
		SaveAssignments(ctx, incidentID, gomock.Any()).
		Return(nil).
		Times(1)
	m.incidents.EXPECT().
		UpdateDispatch(ctx, incidentID, models.StatusInProcess, 50).
		Return(nil).
		Times(1)
	m.incidents.EXPECT().
		SetIncidentCache(ctx, incident).
		Return(nil).
		Times(1)
	m.publisher.EXPECT().
		Publish(ctx, gomock.Any()).
		Return(nil).
		Times(1)

	// Действие
	result, err := svc.ReportIncident(ctx, incident, nil)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, 50, result.Required)
	assert.Equal(t, 0, result.Shortfall)
	assert.Equal(t, models.StatusInProcess, incident.Status)
	assert.Equal(t, 50, incident.DispatchedResponders)

	// Ближняя часть опустошена, дальняя добила остаток
	require.Len(t, result.Assignments, 2)
	assert.Equal(t, near.ID, result.Assignments[0].FireDepartmentID)
	assert.Equal(t, 30, result.Assignments[0].RespondersDispatched)
	assert.Equal(t, far.ID, result.Assignments[1].FireDepartmentID)
	assert.Equal(t, 20, result.Assignments[1].RespondersDispatched)

	nearLeft, err := m.store.Available(ctx, near.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, nearLeft)
	farLeft, err := m.store.Available(ctx, far.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, farLeft)
}

func TestReportIncident_NoCapacityStaysOpen(t *testing.T) {
	// Подготовка
	svc, m := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	incident := &models.Incident{
		Type:          "flood",
		Latitude:      50.9375,
		Longitude:     6.9603,
		SeverityScore: 3,
	}

	// Ожидания: частей нет вообще, инцидент создается с нулевой отправкой
	m.incidents.EXPECT().
		Create(ctx, incident).
		DoAndReturn(func(_ context.Context, i *models.Incident) error {
			i.ID = incidentID
			return nil
		}).
		Times(1)
	m.departments.EXPECT().
		List(ctx).
		Return([]*models.FireDepartment{}, nil).
		Times(1)
	m.incidents.EXPECT().
		UpdateDispatch(ctx, incidentID, models.StatusOpen, 0).
		Return(nil).
		Times(1)
	m.incidents.EXPECT().
		SetIncidentCache(ctx, incident).
		Return(nil).
		Times(1)
	m.publisher.EXPECT().
		Publish(ctx, gomock.Any()).
		Return(nil).
		Times(1)

	// Действие
	result, err := svc.ReportIncident(ctx, incident, nil)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, 30, result.Required)
	assert.Equal(t, 30, result.Shortfall)
	assert.Equal(t, models.StatusOpen, incident.Status)
	assert.Empty(t, result.Assignments)
}

func TestReportIncident_FakeEvidenceRejected(t *testing.T) {
	// Подготовка
	svc, m := newTestIncidentService(t)
	ctx := context.Background()

	incident := &models.Incident{
		Type:          "fire",
		Latitude:      50.9375,
		Longitude:     6.9603,
		SeverityScore: 5,
	}
	evidence := []service.EvidenceFile{
		{FileName: "scene.jpg", MimeType: "image/jpeg", Content: strings.NewReader("payload")},
	}

	// Ожидания: детектор признал изображение фейком, до репозитория не доходим
	m.detector.EXPECT().
		CheckImage(ctx, "scene.jpg", "image/jpeg", gomock.Any()).
		Return(&detector.Verdict{IsFake: true, Confidence: 0.97, Reason: "ai generated"}, nil).
		Times(1)

	// Действие
	result, err := svc.ReportIncident(ctx, incident, evidence)

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrFakeEvidence)
	assert.Nil(t, result)
}

func TestReportIncident_DetectorUnavailableAccepts(t *testing.T) {
	// Подготовка
	svc, m := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	incident := &models.Incident{
		Type:          "fire",
		Latitude:      50.9375,
		Longitude:     6.9603,
		SeverityScore: 1,
	}
	evidence := []service.EvidenceFile{
		{FileName: "scene.jpg", MimeType: "image/jpeg", Size: 7, Content: strings.NewReader("payload")},
	}

	// Ожидания: недоступность детектора не блокирует прием
	m.detector.EXPECT().
		CheckImage(ctx, "scene.jpg", "image/jpeg", gomock.Any()).
		Return(nil, fmt.Errorf("connection refused")).
		Times(1)
	m.incidents.EXPECT().
		Create(ctx, incident).
		DoAndReturn(func(_ context.Context, i *models.Incident) error {
			i.ID = incidentID
			return nil
		}).
		Times(1)
	m.incidents.EXPECT().
		SaveAttachment(ctx, gomock.Any()).
		Return(nil).
		Times(1)
	m.departments.EXPECT().
		List(ctx).
		Return([]*models.FireDepartment{}, nil).
		Times(1)
	m.incidents.EXPECT().
		UpdateDispatch(ctx, incidentID, models.StatusOpen, 0).
		Return(nil).
		Times(1)
	m.incidents.EXPECT().
		SetIncidentCache(ctx, incident).
		Return(nil).
		Times(1)
	m.publisher.EXPECT().
		Publish(ctx, gomock.Any()).
		Return(nil).
		Times(1)

	// Действие
	result, err := svc.ReportIncident(ctx, incident, evidence)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, result.Incident.Status)
}

func TestReportIncident_InvalidSeverity(t *testing.T) {
	// Подготовка
	svc, _ := newTestIncidentService(t)
	ctx := context.Background()

	incident := &models.Incident{
		Type:          "fire",
		Latitude:      50.9375,
		Longitude:     6.9603,
		SeverityScore: 11,
	}

	// Действие
	result, err := svc.ReportIncident(ctx, incident, nil)

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestUpdateStatus_ReclaimsToNearest(t *testing.T) {
	// Подготовка
	svc, m := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	near := testDepartment(m, "Station Deutz", 0.01, 0)
	far := testDepartment(m, "Station Ehrenfeld", 0.1, 20)

	incident := &models.Incident{
		ID:                   incidentID,
		Type:                 "fire",
		Latitude:             50.9375,
		Longitude:            6.9603,
		SeverityScore:        5,
		Status:               models.StatusInProcess,
		DispatchedResponders: 50,
	}

	// Ожидания
	m.incidents.EXPECT().
		GetByID(ctx, incidentID).
		Return(incident, nil).
		Times(1)
	m.departments.EXPECT().
		List(ctx).
		Return([]*models.FireDepartment{far, near}, nil).
		Times(1)
	m.incidents.EXPECT().
		UpdateDispatch(ctx, incidentID, models.StatusResolved, 0).
		Return(nil).
		Times(1)
	m.incidents.EXPECT().
		DeleteAssignments(ctx, incidentID).
		Return(nil).
		Times(1)
	m.incidents.EXPECT().
		InvalidateIncidentCache(ctx, incidentID).
		Return(nil).
		Times(1)
	m.publisher.EXPECT().
		Publish(ctx, gomock.Any()).
		Return(nil).
		Times(1)

	// Действие
	result, err := svc.UpdateStatus(ctx, incidentID, models.StatusResolved)

	// Проверки: все 50 вернулись ближайшей части, даже если отправляли двое
	require.NoError(t, err)
	require.NotNil(t, result.ReclaimedTo)
	assert.Equal(t, near.ID, *result.ReclaimedTo)
	assert.Equal(t, 50, result.ReclaimedAmount)
	assert.Equal(t, models.StatusResolved, result.Incident.Status)
	assert.Equal(t, 0, result.Incident.DispatchedResponders)

	available, err := m.store.Available(ctx, near.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, available)
}

func TestUpdateStatus_NoReclaimFromOpen(t *testing.T) {
	// Подготовка
	svc, m := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()

	incident := &models.Incident{
		ID:            incidentID,
		Type:          "fire",
		Latitude:      50.9375,
		Longitude:     6.9603,
		SeverityScore: 5,
		Status:        models.StatusOpen,
	}

	// Ожидания: из open возвращать нечего, события нет
	m.incidents.EXPECT().
		GetByID(ctx, incidentID).
		Return(incident, nil).
		Times(1)
	m.departments.EXPECT().
		List(ctx).
		Return([]*models.FireDepartment{}, nil).
		Times(1)
	m.incidents.EXPECT().
		UpdateDispatch(ctx, incidentID, models.StatusResolved, 0).
		Return(nil).
		Times(1)
	m.incidents.EXPECT().
		InvalidateIncidentCache(ctx, incidentID).
		Return(nil).
		Times(1)

	// Действие
	result, err := svc.UpdateStatus(ctx, incidentID, models.StatusResolved)

	// Проверки
	require.NoError(t, err)
	assert.Nil(t, result.ReclaimedTo)
	assert.Zero(t, result.ReclaimedAmount)
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	// Подготовка
	svc, _ := newTestIncidentService(t)
	ctx := context.Background()

	// Действие
	result, err := svc.UpdateStatus(ctx, uuid.New(), "closed")

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestGetIncident_Success_FromCache(t *testing.T) {
	// Подготовка
	svc, m := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:   incidentID,
		Type: "fire",
	}

	// Ожидания
	m.incidents.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)

	// Действие
	incident, err := svc.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_Success_FromDB(t *testing.T) {
	// Подготовка
	svc, m := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:   incidentID,
		Type: "fire",
	}

	// Ожидания
	// 1. Промах кеша
	m.incidents.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(nil, nil).
		Times(1)

	// 2. Попадание в БД
	m.incidents.EXPECT().
		GetByID(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)

	// 3. Запись в кеш
	m.incidents.EXPECT().
		SetIncidentCache(ctx, expectedIncident).
		Return(nil).
		Times(1)

	// Действие
	incident, err := svc.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestIngestSensorReading_BelowThresholdOnlyStores(t *testing.T) {
	// Подготовка
	svc, m := newTestIncidentService(t)
	ctx := context.Background()
	reading := &models.SensorReading{
		SensorID:   "smoke-17",
		MetricType: "smoke",
		Latitude:   50.9375,
		Longitude:  6.9603,
		Severity:   3.2,
	}

	// Ожидания
	m.incidents.EXPECT().
		SaveSensorReading(ctx, reading).
		Return(nil).
		Times(1)

	// Действие
	incident, err := svc.IngestSensorReading(ctx, reading)

	// Проверки
	require.NoError(t, err)
	assert.Nil(t, incident)
	assert.Nil(t, reading.IncidentID)
}

func TestIngestSensorReading_AboveThresholdOpensIncident(t *testing.T) {
	// Подготовка
	svc, m := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	reading := &models.SensorReading{
		SensorID:   "smoke-17",
		MetricType: "smoke",
		Latitude:   50.9375,
		Longitude:  6.9603,
		Severity:   8.6, // округляется до 9
	}

	// Ожидания
	m.incidents.EXPECT().
		Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, i *models.Incident) error {
			assert.Equal(t, "smoke", i.Type)
			assert.Equal(t, 9, i.SeverityScore)
			i.ID = incidentID
			return nil
		}).
		Times(1)
	m.departments.EXPECT().
		List(ctx).
		Return([]*models.FireDepartment{}, nil).
		Times(1)
	m.incidents.EXPECT().
		UpdateDispatch(ctx, incidentID, models.StatusOpen, 0).
		Return(nil).
		Times(1)
	m.incidents.EXPECT().
		SetIncidentCache(ctx, gomock.Any()).
		Return(nil).
		Times(1)
	m.publisher.EXPECT().
		Publish(ctx, gomock.Any()).
		Return(nil).
		Times(1)
	m.incidents.EXPECT().
		SaveSensorReading(ctx, reading).
		Return(nil).
		Times(1)

	// Действие
	incident, err := svc.IngestSensorReading(ctx, reading)

	// Проверки
	require.NoError(t, err)
	require.NotNil(t, incident)
	require.NotNil(t, reading.IncidentID)
	assert.Equal(t, incidentID, *reading.IncidentID)
}

func TestGetStats_Success(t *testing.T) {
	// Подготовка
	svc, m := newTestIncidentService(t)
	ctx := context.Background()
	expected := &models.DispatchStats{Open: 2, InProcess: 1, Resolved: 5, DispatchedResponders: 70}

	// Ожидания
	m.incidents.EXPECT().
		GetStats(ctx).
		Return(expected, nil).
		Times(1)

	// Действие
	stats, err := svc.GetStats(ctx)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expected, stats)
}
