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

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/dispatch"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/service"
)

const (
	// departmentSnapshotKey - ключ кэша списка частей, который координатор
	// использует как снимок перед распределением
	departmentSnapshotKey = "departments:snapshot"
	// departmentSnapshotTTL короткий: счетчики спасателей меняются при каждой
	// отправке, устаревший снимок координатор компенсирует повторным резервом
	departmentSnapshotTTL = 30 * time.Second
)

// DepartmentRepository хранит пожарные части и выступает источником истины
// для счетчиков свободных спасателей
type DepartmentRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
}

func NewDepartmentRepository(db *pgxpool.Pool, redisClient *redis.Client) *DepartmentRepository {
	return &DepartmentRepository{db: db, redisClient: redisClient}
}

// Create создает новую пожарную часть
func (r *DepartmentRepository) Create(ctx context.Context, department *models.FireDepartment) error {
	query := `
		INSERT INTO fire_departments (name, city, latitude, longitude, available_responders)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at;
	`
	err := r.db.QueryRow(ctx, query,
		department.Name,
		department.City,
		department.Latitude,
		department.Longitude,
		department.AvailableResponders,
	).Scan(&department.ID, &department.CreatedAt, &department.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create fire department: %w", err)
	}
	r.invalidateSnapshot(ctx)
	return nil
}

// GetByID возвращает пожарную часть по UUID
func (r *DepartmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FireDepartment, error) {
	department := &models.FireDepartment{}
	query := `
		SELECT id, name, city, latitude, longitude, available_responders, created_at, updated_at
		FROM fire_departments
		WHERE id = $1;
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&department.ID,
		&department.Name,
		&department.City,
		&department.Latitude,
		&department.Longitude,
		&department.AvailableResponders,
		&department.CreatedAt,
		&department.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: fire department with id %s", service.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get fire department by id: %w", err)
	}
	return department, nil
}

// Update обновляет профильные поля пожарной части
func (r *DepartmentRepository) Update(ctx context.Context, department *models.FireDepartment) error {
	query := `
		UPDATE fire_departments SET
			name = $1,
			city = $2,
			latitude = $3,
			longitude = $4,
			updated_at = NOW()
		WHERE id = $5 RETURNING updated_at;
	`
	err := r.db.QueryRow(ctx, query,
		department.Name,
		department.City,
		department.Latitude,
		department.Longitude,
		department.ID,
	).Scan(&department.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: fire department with id %s for update", service.ErrNotFound, department.ID)
		}
		return fmt.Errorf("failed to update fire department: %w", err)
	}
	r.invalidateSnapshot(ctx)
	return nil
}

// List возвращает все пожарные части. Результат кэшируется в Redis как
// снимок для координатора; любая запись в таблицу сбрасывает кэш.
func (r *DepartmentRepository) List(ctx context.Context) ([]*models.FireDepartment, error) {
	if cached, err := r.redisClient.Get(ctx, departmentSnapshotKey).Bytes(); err == nil {
		departments := make([]*models.FireDepartment, 0)
		if err := json.Unmarshal(cached, &departments); err == nil {
			return departments, nil
		}
	}

	query := `
		SELECT id, name, city, latitude, longitude, available_responders, created_at, updated_at
		FROM fire_departments
		ORDER BY name;
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list fire departments: %w", err)
	}
	defer rows.Close()

	departments := make([]*models.FireDepartment, 0)
	for rows.Next() {
		department := &models.FireDepartment{}
		err := rows.Scan(
			&department.ID,
			&department.Name,
			&department.City,
			&department.Latitude,
			&department.Longitude,
			&department.AvailableResponders,
			&department.CreatedAt,
			&department.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fire department row: %w", err)
		}
		departments = append(departments, department)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error fire department iteration: %w", err)
	}

	if val, err := json.Marshal(departments); err == nil {
		r.redisClient.Set(ctx, departmentSnapshotKey, val, departmentSnapshotTTL)
	}
	return departments, nil
}

// invalidateSnapshot сбрасывает кэшированный снимок списка частей.
// Ошибка Redis здесь не фатальна: кэш истечет сам по TTL.
func (r *DepartmentRepository) invalidateSnapshot(ctx context.Context) {
	r.redisClient.Del(ctx, departmentSnapshotKey)
}

// Reserve атомарно списывает amount свободных спасателей части.
// Условный UPDATE гарантирует, что счетчик не уходит в минус даже при
// конкурентных резервированиях.
func (r *DepartmentRepository) Reserve(ctx context.Context, departmentID uuid.UUID, amount int) error {
	if amount < 0 {
		return dispatch.ErrNegativeAmount
	}
	if amount == 0 {
		return nil
	}

	query := `
		UPDATE fire_departments SET
			available_responders = available_responders - $1,
			updated_at = NOW()
		WHERE id = $2 AND available_responders >= $1;
	`
	cmdTag, err := r.db.Exec(ctx, query, amount, departmentID)
	if err != nil {
		return fmt.Errorf("failed to reserve responders: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		// Ноль строк - либо части нет, либо спасателей не хватило
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM fire_departments WHERE id = $1);`, departmentID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check fire department existence: %w", err)
		}
		if !exists {
			return dispatch.ErrUnknownDepartment
		}
		return dispatch.ErrInsufficientCapacity
	}
	r.invalidateSnapshot(ctx)
	return nil
}

// Release атомарно возвращает amount спасателей части
func (r *DepartmentRepository) Release(ctx context.Context, departmentID uuid.UUID, amount int) error {
	if amount < 0 {
		return dispatch.ErrNegativeAmount
	}
	if amount == 0 {
		return nil
	}

	query := `
		UPDATE fire_departments SET
			available_responders = available_responders + $1,
			updated_at = NOW()
		WHERE id = $2;
	`
	cmdTag, err := r.db.Exec(ctx, query, amount, departmentID)
	if err != nil {
		return fmt.Errorf("failed to release responders: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return dispatch.ErrUnknownDepartment
	}
	r.invalidateSnapshot(ctx)
	return nil
}

// Available возвращает текущее число свободных спасателей части
func (r *DepartmentRepository) Available(ctx context.Context, departmentID uuid.UUID) (int, error) {
	var available int
	err := r.db.QueryRow(ctx, `SELECT available_responders FROM fire_departments WHERE id = $1;`, departmentID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, dispatch.ErrUnknownDepartment
		}
		return 0, fmt.Errorf("failed to get available responders: %w", err)
	}
	return available, nil
}
