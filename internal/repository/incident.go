package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/service"
)

// incidentCacheTTL - срок жизни кэша инцидента
const incidentCacheTTL = 5 * time.Minute

type IncidentRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
}

func NewIncidentRepository(db *pgxpool.Pool, redisClient *redis.Client) service.IncidentRepository {
	return &IncidentRepository{
		db:          db,
		redisClient: redisClient,
	}
}

// Create создает новую запись об инциденте в бд
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	query := `
		INSERT INTO incidents (type, description, latitude, longitude, severity_score, status, dispatched_responders)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at;
	`
	err := r.db.QueryRow(ctx, query,
		incident.Type,
		incident.Description,
		incident.Latitude,
		incident.Longitude,
		incident.SeverityScore,
		incident.Status,
		incident.DispatchedResponders,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// GetByID возвращает инцидент по его UUID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	incident := &models.Incident{}
	query := `
		SELECT
			id,
			type,
			description,
			latitude,
			longitude,
			severity_score,
			status,
			dispatched_responders,
			created_at,
			updated_at
		FROM incidents
		WHERE id = $1;
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&incident.ID,
		&incident.Type,
		&incident.Description,
		&incident.Latitude,
		&incident.Longitude,
		&incident.SeverityScore,
		&incident.Status,
		&incident.DispatchedResponders,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: incident with id %s", service.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}
	return incident, nil
}

// List возвращает список инцидентов с фильтром по статусу и пагинацией
func (r *IncidentRepository) List(ctx context.Context, status string, page, pageSize int) ([]*models.Incident, error) {
	offset := (page - 1) * pageSize

	query := `
		SELECT
			id,
			type,
			description,
			latitude,
			longitude,
			severity_score,
			status,
			dispatched_responders,
			created_at,
			updated_at
		FROM incidents
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := r.db.Query(ctx, query, status, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident := &models.Incident{}
		err := rows.Scan(
			&incident.ID,
			&incident.Type,
			&incident.Description,
			&incident.Latitude,
			&incident.Longitude,
			&incident.SeverityScore,
			&incident.Status,
			&incident.DispatchedResponders,
			&incident.CreatedAt,
			&incident.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return incidents, nil
}

// UpdateDispatch обновляет статус и счетчик отправленных спасателей инцидента
func (r *IncidentRepository) UpdateDispatch(ctx context.Context, id uuid.UUID, status string, dispatched int) error {
	query := `
		UPDATE incidents SET
			status = $1,
			dispatched_responders = $2,
			updated_at = NOW()
		WHERE id = $3;
	`
	cmdTag, err := r.db.Exec(ctx, query, status, dispatched, id)
	if err != nil {
		return fmt.Errorf("failed to update incident dispatch state: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: incident with id %s for update", service.ErrNotFound, id)
	}
	return nil
}

// SaveAssignments сохраняет назначения частей для инцидента
func (r *IncidentRepository) SaveAssignments(ctx context.Context, incidentID uuid.UUID, assignments []*models.Assignment) error {
	query := `
		INSERT INTO assignments (incident_id, fire_department_id, responders_dispatched)
		VALUES ($1, $2, $3) RETURNING id, created_at;
	`
	for _, a := range assignments {
		err := r.db.QueryRow(ctx, query,
			incidentID,
			a.FireDepartmentID,
			a.RespondersDispatched,
		).Scan(&a.ID, &a.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save assignment: %w", err)
		}
	}
	return nil
}

// ListAssignments возвращает назначения инцидента вместе с именами частей
func (r *IncidentRepository) ListAssignments(ctx context.Context, incidentID uuid.UUID) ([]*models.Assignment, error) {
	query := `
		SELECT
			a.id,
			a.incident_id,
			a.fire_department_id,
			COALESCE(d.name, ''),
			a.responders_dispatched,
			a.created_at
		FROM assignments a
		LEFT JOIN fire_departments d ON d.id = a.fire_department_id
		WHERE a.incident_id = $1
		ORDER BY a.id;
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]*models.Assignment, 0)
	for rows.Next() {
		a := &models.Assignment{}
		err := rows.Scan(
			&a.ID,
			&a.IncidentID,
			&a.FireDepartmentID,
			&a.FireDepartmentName,
			&a.RespondersDispatched,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment row: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error assignment iteration: %w", err)
	}
	return assignments, nil
}

// DeleteAssignments удаляет назначения инцидента после возврата спасателей
func (r *IncidentRepository) DeleteAssignments(ctx context.Context, incidentID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM assignments WHERE incident_id = $1;`, incidentID); err != nil {
		return fmt.Errorf("failed to delete assignments: %w", err)
	}
	return nil
}

// SaveAttachment сохраняет метаданные приложенного файла
func (r *IncidentRepository) SaveAttachment(ctx context.Context, attachment *models.Attachment) error {
	query := `
		INSERT INTO incident_attachments (incident_id, file_name, mime_type, file_size_bytes)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at;
	`
	err := r.db.QueryRow(ctx, query,
		attachment.IncidentID,
		attachment.FileName,
		attachment.MimeType,
		attachment.FileSizeBytes,
	).Scan(&attachment.ID, &attachment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save attachment: %w", err)
	}
	return nil
}

// SaveSensorReading сохраняет показание датчика
func (r *IncidentRepository) SaveSensorReading(ctx context.Context, reading *models.SensorReading) error {
	query := `
		INSERT INTO sensor_readings (sensor_id, incident_id, metric_type, latitude, longitude, value, unit, severity, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, recorded_at;
	`
	err := r.db.QueryRow(ctx, query,
		reading.SensorID,
		reading.IncidentID,
		reading.MetricType,
		reading.Latitude,
		reading.Longitude,
		reading.Value,
		reading.Unit,
		reading.Severity,
		reading.Description,
	).Scan(&reading.ID, &reading.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to save sensor reading: %w", err)
	}
	return nil
}

// GetStats возвращает сводку по инцидентам и задействованным спасателям
func (r *IncidentRepository) GetStats(ctx context.Context) (*models.DispatchStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'open'),
			COUNT(*) FILTER (WHERE status = 'in_process'),
			COUNT(*) FILTER (WHERE status = 'resolved'),
			COALESCE(SUM(dispatched_responders), 0)
		FROM incidents;
	`
	stats := &models.DispatchStats{}
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.Open,
		&stats.InProcess,
		&stats.Resolved,
		&stats.DispatchedResponders,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch stats: %w", err)
	}
	return stats, nil
}

// GetIncidentFromCache пытается получить инцидент из Redis
func (r *IncidentRepository) GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	key := fmt.Sprintf("incident:%s", id.String())
	val, err := r.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	incident := &models.Incident{}
	if err := json.Unmarshal(val, incident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
	}
	return incident, nil
}

// SetIncidentCache сохраняет инцидент в Redis
func (r *IncidentRepository) SetIncidentCache(ctx context.Context, incident *models.Incident) error {
	key := fmt.Sprintf("incident:%s", incident.ID.String())
	val, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident for cache: %w", err)
	}
	if err := r.redisClient.Set(ctx, key, val, incidentCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return nil
}

// InvalidateIncidentCache удаляет инцидент из Redis кэша
func (r *IncidentRepository) InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error {
	key := fmt.Sprintf("incident:%s", id.String())
	if err := r.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}
