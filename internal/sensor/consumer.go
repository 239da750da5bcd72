package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/config"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/service"
)

// handleTimeout - максимальное время обработки одного показания
const handleTimeout = 30 * time.Second

// Consumer читает показания датчиков из NATS и передает их сервису инцидентов
type Consumer struct {
	conn    *nats.Conn
	service service.IncidentService
	logger  *logrus.Logger
	subject string
	queue   string
	sub     *nats.Subscription
}

func NewConsumer(conn *nats.Conn, svc service.IncidentService, logger *logrus.Logger, cfg *config.Config) *Consumer {
	return &Consumer{
		conn:    conn,
		service: svc,
		logger:  logger,
		subject: cfg.SensorSubject,
		queue:   cfg.SensorQueueGroup,
	}
}

// Start подписывается на тему показаний. Очередь гарантирует, что каждое
// показание обработает только один экземпляр сервиса.
func (c *Consumer) Start() error {
	sub, err := c.conn.QueueSubscribe(c.subject, c.queue, c.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to sensor subject: %w", err)
	}
	c.sub = sub

	c.logger.WithFields(logrus.Fields{
		"subject": c.subject,
		"queue":   c.queue,
	}).Info("Sensor consumer started")
	return nil
}

// Stop отписывается от темы и дожидается доставки буферизованных сообщений
func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	if err := c.sub.Drain(); err != nil {
		return fmt.Errorf("failed to drain sensor subscription: %w", err)
	}
	return nil
}

func (c *Consumer) handleMessage(msg *nats.Msg) {
	log := c.logger.WithFields(logrus.Fields{
		"service": "sensor_consumer",
		"subject": msg.Subject,
	})

	reading := &models.SensorReading{}
	if err := json.Unmarshal(msg.Data, reading); err != nil {
		log.WithError(err).Error("Failed to unmarshal sensor reading, dropping message")
		return
	}
	if reading.SensorID == "" {
		log.Error("Sensor reading without sensor_id, dropping message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	incident, err := c.service.IngestSensorReading(ctx, reading)
	if err != nil {
		log.WithError(err).WithField("sensor_id", reading.SensorID).Error("Failed to ingest sensor reading")
		return
	}

	if incident != nil {
		log.WithFields(logrus.Fields{
			"sensor_id":   reading.SensorID,
			"incident_id": incident.ID,
		}).Info("Sensor reading opened incident")
	}
}
