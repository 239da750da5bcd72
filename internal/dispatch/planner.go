package dispatch

import (
	"sort"

	"github.com/google/uuid"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
)

// RespondersPerSeverity - количество требуемых спасателей на единицу серьезности
const RespondersPerSeverity = 10

// Candidate - снимок части-кандидата на момент планирования
type Candidate struct {
	ID        uuid.UUID
	Name      string
	Location  models.GeoPoint
	Available int
}

// PlannedAssignment - предложение выделить Amount спасателей от части
type PlannedAssignment struct {
	DepartmentID   uuid.UUID
	DepartmentName string
	DistanceKm     float64
	Amount         int
}

// Plan - результат планирования. Dispatched + Shortfall == Required.
type Plan struct {
	Required    int
	Dispatched  int
	Shortfall   int
	Assignments []PlannedAssignment
}

// PlanAllocation вычисляет жадное распределение спасателей: части ранжируются
// по возрастанию расстояния до инцидента (при равенстве - по возрастанию id),
// каждая отдает min(осталось, доступно). Части с нулевым вкладом опускаются.
// Нехватка не является ошибкой и возвращается как Shortfall.
func PlanAllocation(incident models.GeoPoint, severityScore int, candidates []Candidate) Plan {
	required := severityScore * RespondersPerSeverity
	plan := Plan{Required: required}

	remaining := required
	for _, a := range rankByDistance(incident, candidates) {
		if remaining == 0 {
			break
		}
		if a.Amount <= 0 {
			continue
		}
		if a.Amount > remaining {
			a.Amount = remaining
		}
		remaining -= a.Amount
		plan.Assignments = append(plan.Assignments, a)
	}

	plan.Dispatched = required - remaining
	plan.Shortfall = remaining
	return plan
}

// rankByDistance ранжирует все части по возрастанию расстояния до инцидента,
// при равенстве - по возрастанию id. Amount несет снимок доступной ёмкости.
func rankByDistance(incident models.GeoPoint, candidates []Candidate) []PlannedAssignment {
	ranked := make([]PlannedAssignment, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, PlannedAssignment{
			DepartmentID:   c.ID,
			DepartmentName: c.Name,
			DistanceKm:     models.DistanceKm(incident, c.Location),
			Amount:         c.Available,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].DistanceKm == ranked[j].DistanceKm {
			return ranked[i].DepartmentID.String() < ranked[j].DepartmentID.String()
		}
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})
	return ranked
}

// NearestCandidate возвращает ближайшую к точке часть, при равных расстояниях -
// с меньшим id. Используется при возврате спасателей в пул.
func NearestCandidate(point models.GeoPoint, candidates []Candidate) (Candidate, bool) {
	var nearest Candidate
	nearestDist := -1.0
	for _, c := range candidates {
		d := models.DistanceKm(point, c.Location)
		if nearestDist < 0 || d < nearestDist ||
			(d == nearestDist && c.ID.String() < nearest.ID.String()) {
			nearest = c
			nearestDist = d
		}
	}
	return nearest, nearestDist >= 0
}
