package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
)

// DepartmentService определяет контракт для справочника пожарных частей
type DepartmentService interface {
	CreateDepartment(ctx context.Context, department *models.FireDepartment) error
	UpdateDepartment(ctx context.Context, department *models.FireDepartment) error
	GetDepartment(ctx context.Context, id uuid.UUID) (*models.FireDepartment, error)
	ListDepartments(ctx context.Context) ([]*models.FireDepartment, error)
}

type departmentService struct {
	repo   DepartmentRepository
	logger *logrus.Logger
}

func NewDepartmentService(repo DepartmentRepository, logger *logrus.Logger) DepartmentService {
	return &departmentService{
		repo:   repo,
		logger: logger,
	}
}

func validateDepartment(department *models.FireDepartment) error {
	if !department.Location().Valid() {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	if department.AvailableResponders < 0 {
		return fmt.Errorf("%w: available_responders must not be negative", ErrInvalidInput)
	}
	return nil
}

// CreateDepartment регистрирует новую пожарную часть
func (s *departmentService) CreateDepartment(ctx context.Context, department *models.FireDepartment) error {
	log := s.logger.WithFields(logrus.Fields{
		"service": "department",
		"method":  "CreateDepartment",
		"name":    department.Name,
	})
	log.Info("Attempting to create a new fire department")

	if err := validateDepartment(department); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, department); err != nil {
		log.WithError(err).Error("Failed to create fire department in repository")
		return fmt.Errorf("service: could not create department: %w", err)
	}

	log.WithField("department_id", department.ID).Info("Fire department created successfully")
	return nil
}

// UpdateDepartment обновляет существующую часть. Счетчик доступных спасателей
// здесь задается административно; оперативные списания идут через CapacityStore.
func (s *departmentService) UpdateDepartment(ctx context.Context, department *models.FireDepartment) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":       "department",
		"method":        "UpdateDepartment",
		"department_id": department.ID,
	})
	log.Info("Attempting to update a fire department")

	if err := validateDepartment(department); err != nil {
		return err
	}

	if _, err := s.repo.GetByID(ctx, department.ID); err != nil {
		log.WithError(err).Warn("Attempted to update a non-existent fire department")
		return fmt.Errorf("service: could not load department %s: %w", department.ID, err)
	}

	if err := s.repo.Update(ctx, department); err != nil {
		log.WithError(err).Error("Failed to update fire department in repository")
		return fmt.Errorf("service: could not update department: %w", err)
	}

	log.Info("Fire department updated successfully")
	return nil
}

// GetDepartment получает часть по ID
func (s *departmentService) GetDepartment(ctx context.Context, id uuid.UUID) (*models.FireDepartment, error) {
	department, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"service":       "department",
			"method":        "GetDepartment",
			"department_id": id,
		}).Warn("Failed to get fire department")
		return nil, fmt.Errorf("service: could not get department: %w", err)
	}
	return department, nil
}

// ListDepartments возвращает все зарегистрированные части
func (s *departmentService) ListDepartments(ctx context.Context) ([]*models.FireDepartment, error) {
	departments, err := s.repo.List(ctx)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"service": "department",
			"method":  "ListDepartments",
		}).Error("Failed to list fire departments")
		return nil, fmt.Errorf("service: could not list departments: %w", err)
	}
	return departments, nil
}
