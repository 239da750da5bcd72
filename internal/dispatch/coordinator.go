package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
)

// ErrInvalidSeverity - оценка серьезности вне диапазона 1..10
var ErrInvalidSeverity = errors.New("severity score out of range")

// ErrInvalidStatus - недопустимый статус инцидента
var ErrInvalidStatus = errors.New("invalid incident status")

// AllocationResult - фактический результат выделения после резервирования
type AllocationResult struct {
	Required    int
	Dispatched  int
	Shortfall   int
	Status      string
	Assignments []PlannedAssignment
}

// StatusChangeResult - результат смены статуса инцидента
type StatusChangeResult struct {
	NewStatus            string
	DispatchedResponders int
	ReclaimedTo          *uuid.UUID
	ReclaimedAmount      int
}

// Coordinator превращает план выделения в атомарные операции над CapacityStore
// и применяет правило возврата спасателей при смене статуса
type Coordinator struct {
	store  CapacityStore
	logger *logrus.Logger
}

func NewCoordinator(store CapacityStore, logger *logrus.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		logger: logger,
	}
}

// Allocate планирует и резервирует спасателей для инцидента.
// План считается по снимку ёмкости; если к моменту резервирования ёмкость
// изменилась, резерв деградирует до фактически доступного, а непокрытый
// остаток добирается по живым остаткам незадействованных частей.
// При отмене контекста все уже зарезервированное возвращается обратно.
func (c *Coordinator) Allocate(ctx context.Context, incidentID uuid.UUID, location models.GeoPoint, severityScore int, candidates []Candidate) (*AllocationResult, error) {
	if severityScore < models.MinSeverityScore || severityScore > models.MaxSeverityScore {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSeverity, severityScore)
	}

	log := c.logger.WithFields(logrus.Fields{
		"component":   "dispatch",
		"method":      "Allocate",
		"incident_id": incidentID,
	})

	plan := PlanAllocation(location, severityScore, candidates)

	result := &AllocationResult{
		Required: plan.Required,
	}

	for _, planned := range plan.Assignments {
		if err := ctx.Err(); err != nil {
			c.rollback(result.Assignments, incidentID)
			return nil, fmt.Errorf("allocation aborted: %w", err)
		}

		reserved, err := c.reserve(ctx, planned)
		if err != nil {
			c.rollback(result.Assignments, incidentID)
			return nil, fmt.Errorf("failed to reserve responders: %w", err)
		}
		if reserved.Amount == 0 {
			continue
		}

		result.Assignments = append(result.Assignments, reserved)
		result.Dispatched += reserved.Amount
	}

	if result.Dispatched < result.Required {
		if err := c.redistribute(ctx, location, candidates, result); err != nil {
			c.rollback(result.Assignments, incidentID)
			return nil, err
		}
	}

	result.Shortfall = result.Required - result.Dispatched
	result.Status = InitialStatus(result.Dispatched)

	if result.Shortfall > 0 {
		log.WithFields(logrus.Fields{
			"required":   result.Required,
			"dispatched": result.Dispatched,
			"shortfall":  result.Shortfall,
		}).Warn("Incident is under-resourced, shortfall reported")
	}
	return result, nil
}

// reserve резервирует запланированное количество. Если ёмкость успела
// измениться, перечитывает фактический остаток и резервирует меньшее.
func (c *Coordinator) reserve(ctx context.Context, planned PlannedAssignment) (PlannedAssignment, error) {
	log := c.logger.WithFields(logrus.Fields{
		"component":     "dispatch",
		"department_id": planned.DepartmentID,
	})

	err := c.store.Reserve(ctx, planned.DepartmentID, planned.Amount)
	if err == nil {
		return planned, nil
	}

	switch {
	case errors.Is(err, ErrUnknownDepartment):
		log.Warn("Planned department disappeared before reservation, skipping")
		planned.Amount = 0
		return planned, nil
	case errors.Is(err, ErrInsufficientCapacity):
		available, availErr := c.store.Available(ctx, planned.DepartmentID)
		if availErr != nil || available <= 0 {
			log.WithField("planned", planned.Amount).Warn("Capacity drained between planning and reservation, skipping department")
			planned.Amount = 0
			return planned, nil
		}
		if reserveErr := c.store.Reserve(ctx, planned.DepartmentID, available); reserveErr != nil {
			// Второй гонщик успел между чтением и резервом, часть пропускается
			log.WithError(reserveErr).Warn("Adjusted reservation lost the race, skipping department")
			planned.Amount = 0
			return planned, nil
		}
		log.WithFields(logrus.Fields{
			"planned":  planned.Amount,
			"adjusted": available,
		}).Info("Capacity changed since planning, reserved adjusted amount")
		planned.Amount = available
		return planned, nil
	default:
		return planned, err
	}
}

// redistribute добирает непокрытый остаток требования по живым остаткам
// частей в порядке близости. Срабатывает, когда запланированная часть исчезла
// или была осушена между планированием и резервированием: план по снимку уже
// не покрывает требование, а незадействованные части еще могут.
func (c *Coordinator) redistribute(ctx context.Context, location models.GeoPoint, candidates []Candidate, result *AllocationResult) error {
	remaining := result.Required - result.Dispatched

	indexByID := make(map[uuid.UUID]int, len(result.Assignments))
	for i, a := range result.Assignments {
		indexByID[a.DepartmentID] = i
	}

	for _, ranked := range rankByDistance(location, candidates) {
		if remaining == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("allocation aborted: %w", err)
		}

		available, err := c.store.Available(ctx, ranked.DepartmentID)
		if errors.Is(err, ErrUnknownDepartment) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read available responders: %w", err)
		}

		amount := available
		if amount > remaining {
			amount = remaining
		}
		if amount <= 0 {
			continue
		}

		err = c.store.Reserve(ctx, ranked.DepartmentID, amount)
		if errors.Is(err, ErrInsufficientCapacity) || errors.Is(err, ErrUnknownDepartment) {
			// Остаток увели между чтением и резервом, пробуем следующую часть
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to reserve responders: %w", err)
		}

		if i, ok := indexByID[ranked.DepartmentID]; ok {
			result.Assignments[i].Amount += amount
		} else {
			ranked.Amount = amount
			result.Assignments = append(result.Assignments, ranked)
			indexByID[ranked.DepartmentID] = len(result.Assignments) - 1
		}
		result.Dispatched += amount
		remaining -= amount

		c.logger.WithFields(logrus.Fields{
			"component":     "dispatch",
			"department_id": ranked.DepartmentID,
			"amount":        amount,
		}).Info("Requirement remainder redistributed to unplanned department")
	}
	return nil
}

// rollback возвращает все зарезервированное при прерванном выделении
func (c *Coordinator) rollback(reserved []PlannedAssignment, incidentID uuid.UUID) {
	for _, a := range reserved {
		// Отдельный контекст не нужен: Release in-memory и SQL-вариант
		// выполняются и при отмененном родительском контексте через Background
		if err := c.store.Release(context.Background(), a.DepartmentID, a.Amount); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"component":     "dispatch",
				"incident_id":   incidentID,
				"department_id": a.DepartmentID,
				"amount":        a.Amount,
			}).Error("Failed to roll back reservation")
		}
	}
}

// ChangeStatus применяет смену статуса: при выходе из in_process весь
// отправленный состав возвращается ближайшей к инциденту части (поведение
// исходной системы: не исходным донорам, а ближайшей на момент возврата)
func (c *Coordinator) ChangeStatus(ctx context.Context, incident *models.Incident, newStatus string, departments []Candidate) (*StatusChangeResult, error) {
	if !models.ValidStatus(newStatus) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	log := c.logger.WithFields(logrus.Fields{
		"component":   "dispatch",
		"method":      "ChangeStatus",
		"incident_id": incident.ID,
		"old_status":  incident.Status,
		"new_status":  newStatus,
	})

	result := &StatusChangeResult{
		NewStatus:            newStatus,
		DispatchedResponders: incident.DispatchedResponders,
	}

	if !ShouldReclaim(incident.Status, newStatus, incident.DispatchedResponders) {
		return result, nil
	}

	nearest, found := NearestCandidate(incident.Location(), departments)
	if !found {
		log.Warn("No departments available to reclaim responders to, dispatched count reset anyway")
		result.DispatchedResponders = 0
		return result, nil
	}

	err := c.store.Release(ctx, nearest.ID, incident.DispatchedResponders)
	switch {
	case errors.Is(err, ErrUnknownDepartment):
		// Часть исчезла между выбором и возвратом: потерянное обновление,
		// жизненный цикл инцидента из-за этого не блокируется
		log.WithField("department_id", nearest.ID).Warn("Reclaim target no longer exists, responders lost")
	case err != nil:
		return nil, fmt.Errorf("failed to release responders: %w", err)
	default:
		reclaimedTo := nearest.ID
		result.ReclaimedTo = &reclaimedTo
		result.ReclaimedAmount = incident.DispatchedResponders
		log.WithFields(logrus.Fields{
			"department_id": nearest.ID,
			"amount":        incident.DispatchedResponders,
		}).Info("Responders reclaimed to nearest department")
	}

	result.DispatchedResponders = 0
	return result, nil
}
