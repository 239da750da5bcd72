package dispatch

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
)

// Инцидент в центре Кёльна, части на разном удалении к востоку
var testIncidentLocation = models.GeoPoint{Latitude: 50.9375, Longitude: 6.9603}

func candidateAt(name string, lonOffset float64, available int) Candidate {
	return Candidate{
		ID:   uuid.New(),
		Name: name,
		Location: models.GeoPoint{
			Latitude:  testIncidentLocation.Latitude,
			Longitude: testIncidentLocation.Longitude + lonOffset,
		},
		Available: available,
	}
}

func TestPlanAllocation_NearestFirstWithOverflow(t *testing.T) {
	// severity=5 -> требуется 50; ближняя часть дает 30, дальняя добирает 20
	near := candidateAt("near", 0.02, 30)
	far := candidateAt("far", 0.10, 40)

	plan := PlanAllocation(testIncidentLocation, 5, []Candidate{far, near})

	require.Len(t, plan.Assignments, 2)
	assert.Equal(t, near.ID, plan.Assignments[0].DepartmentID)
	assert.Equal(t, 30, plan.Assignments[0].Amount)
	assert.Equal(t, far.ID, plan.Assignments[1].DepartmentID)
	assert.Equal(t, 20, plan.Assignments[1].Amount)
	assert.Equal(t, 50, plan.Required)
	assert.Equal(t, 50, plan.Dispatched)
	assert.Equal(t, 0, plan.Shortfall)
}

func TestPlanAllocation_Shortfall(t *testing.T) {
	// severity=10 -> требуется 100, доступно всего 10
	only := candidateAt("only", 0.05, 10)

	plan := PlanAllocation(testIncidentLocation, 10, []Candidate{only})

	require.Len(t, plan.Assignments, 1)
	assert.Equal(t, 10, plan.Assignments[0].Amount)
	assert.Equal(t, 10, plan.Dispatched)
	assert.Equal(t, 90, plan.Shortfall)
}

func TestPlanAllocation_NoCandidates(t *testing.T) {
	plan := PlanAllocation(testIncidentLocation, 3, nil)

	assert.Empty(t, plan.Assignments)
	assert.Equal(t, 30, plan.Required)
	assert.Equal(t, 0, plan.Dispatched)
	assert.Equal(t, 30, plan.Shortfall)
}

func TestPlanAllocation_ZeroContributionOmitted(t *testing.T) {
	// Части с нулевой ёмкостью и не задействованные части не попадают в план
	near := candidateAt("near", 0.02, 100)
	empty := candidateAt("empty", 0.01, 0)
	unused := candidateAt("unused", 0.50, 40)

	plan := PlanAllocation(testIncidentLocation, 2, []Candidate{unused, empty, near})

	require.Len(t, plan.Assignments, 1)
	assert.Equal(t, near.ID, plan.Assignments[0].DepartmentID)
	assert.Equal(t, 20, plan.Assignments[0].Amount)
}

func TestPlanAllocation_TieBreakByIDDeterministic(t *testing.T) {
	// Две части на одинаковом расстоянии: порядок фиксируется по id
	a := candidateAt("a", 0.03, 20)
	b := candidateAt("b", 0.03, 20)
	farther := candidateAt("farther", 0.06, 20)

	first, second := a, b
	if b.ID.String() < a.ID.String() {
		first, second = b, a
	}

	for i := 0; i < 10; i++ {
		plan := PlanAllocation(testIncidentLocation, 5, []Candidate{farther, b, a})
		require.Len(t, plan.Assignments, 3)
		assert.Equal(t, first.ID, plan.Assignments[0].DepartmentID)
		assert.Equal(t, second.ID, plan.Assignments[1].DepartmentID)
		assert.Equal(t, farther.ID, plan.Assignments[2].DepartmentID)
	}
}

func TestNearestCandidate(t *testing.T) {
	near := candidateAt("near", 0.01, 5)
	far := candidateAt("far", 0.20, 50)

	got, ok := NearestCandidate(testIncidentLocation, []Candidate{far, near})
	require.True(t, ok)
	assert.Equal(t, near.ID, got.ID)

	_, ok = NearestCandidate(testIncidentLocation, nil)
	assert.False(t, ok)
}
