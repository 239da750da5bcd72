package sensor

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/service/mocks"
)

func newTestConsumer(t *testing.T) (*Consumer, *mocks.MockIncidentService) {
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockIncidentService(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	consumer := &Consumer{
		service: mockService,
		logger:  logger,
		subject: "sensors.readings",
		queue:   "dispatch",
	}
	return consumer, mockService
}

func TestHandleMessage_ValidReading(t *testing.T) {
	// Подготовка
	consumer, mockService := newTestConsumer(t)
	reading := models.SensorReading{
		SensorID:   "smoke-17",
		MetricType: "smoke",
		Latitude:   50.9375,
		Longitude:  6.9603,
		Severity:   8.6,
	}
	payload, err := json.Marshal(reading)
	require.NoError(t, err)

	// Ожидания
	mockService.EXPECT().
		IngestSensorReading(gomock.Any(), gomock.Any()).
		Return(&models.Incident{ID: uuid.New()}, nil).
		Times(1)

	// Действие
	consumer.handleMessage(&nats.Msg{Subject: "sensors.readings", Data: payload})
}

func TestHandleMessage_MalformedPayloadDropped(t *testing.T) {
	// Подготовка
	consumer, mockService := newTestConsumer(t)

	// Ожидания: сервис не вызывается
	mockService.EXPECT().IngestSensorReading(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	consumer.handleMessage(&nats.Msg{Subject: "sensors.readings", Data: []byte("{not json")})
}

func TestHandleMessage_MissingSensorIDDropped(t *testing.T) {
	// Подготовка
	consumer, mockService := newTestConsumer(t)
	payload, err := json.Marshal(models.SensorReading{MetricType: "smoke"})
	require.NoError(t, err)

	// Ожидания: сервис не вызывается
	mockService.EXPECT().IngestSensorReading(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	consumer.handleMessage(&nats.Msg{Subject: "sensors.readings", Data: payload})
}
