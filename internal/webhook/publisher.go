package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	dispatchQueueKey = "dispatch_events"
)

// Типы событий диспетчеризации
const (
	EventIncidentReported   = "incident.reported"
	EventIncidentDispatched = "incident.dispatched"
	EventIncidentReclaimed  = "incident.reclaimed"
)

// Event - событие жизненного цикла диспетчеризации для внешних подписчиков
type Event struct {
	Event                string     `json:"event"`
	IncidentID           uuid.UUID  `json:"incident_id"`
	Status               string     `json:"status"`
	DispatchedResponders int        `json:"dispatched_responders"`
	Shortfall            int        `json:"shortfall,omitempty"`
	ReclaimedTo          *uuid.UUID `json:"reclaimed_to,omitempty"`
	ReclaimedAmount      int        `json:"reclaimed_amount,omitempty"`
	Timestamp            time.Time  `json:"timestamp"`
}

// EventPublisher - интерфейс для публикации событий диспетчеризации
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// RedisEventPublisher - реализация EventPublisher, использующая Redis
type RedisEventPublisher struct {
	redisClient *redis.Client
}

func NewRedisEventPublisher(client *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{
		redisClient: client,
	}
}

// Publish публикует событие в очередь Redis
func (p *RedisEventPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch event: %w", err)
	}

	// LPUSH в левую часть списка, воркер извлекает BRPop с правой
	if err := p.redisClient.LPush(ctx, dispatchQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish dispatch event to Redis: %w", err)
	}
	return nil
}
