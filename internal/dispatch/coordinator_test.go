package dispatch

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
)

func newTestCoordinator(store CapacityStore) *Coordinator {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return NewCoordinator(store, logger)
}

// registerCandidates заводит кандидатов в хранилище и возвращает их снимок
func registerCandidates(store *MemoryCapacityStore, candidates ...Candidate) []Candidate {
	for _, c := range candidates {
		store.Register(c.ID, c.Available)
	}
	return candidates
}

func TestCoordinator_Allocate_Success(t *testing.T) {
	store := NewMemoryCapacityStore()
	coordinator := newTestCoordinator(store)
	ctx := context.Background()

	near := candidateAt("near", 0.02, 30)
	far := candidateAt("far", 0.10, 40)
	candidates := registerCandidates(store, near, far)

	result, err := coordinator.Allocate(ctx, uuid.New(), testIncidentLocation, 5, candidates)

	require.NoError(t, err)
	assert.Equal(t, 50, result.Required)
	assert.Equal(t, 50, result.Dispatched)
	assert.Equal(t, 0, result.Shortfall)
	assert.Equal(t, models.StatusInProcess, result.Status)
	require.Len(t, result.Assignments, 2)

	// Ёмкость фактически списана
	available, _ := store.Available(ctx, near.ID)
	assert.Equal(t, 0, available)
	available, _ = store.Available(ctx, far.ID)
	assert.Equal(t, 20, available)
}

func TestCoordinator_Allocate_FullShortfallStaysOpen(t *testing.T) {
	store := NewMemoryCapacityStore()
	coordinator := newTestCoordinator(store)

	empty := candidateAt("empty", 0.02, 0)
	candidates := registerCandidates(store, empty)

	result, err := coordinator.Allocate(context.Background(), uuid.New(), testIncidentLocation, 3, candidates)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Dispatched)
	assert.Equal(t, 30, result.Shortfall)
	assert.Equal(t, models.StatusOpen, result.Status)
	assert.Empty(t, result.Assignments)
}

func TestCoordinator_Allocate_StaleSnapshotDegrades(t *testing.T) {
	// Снимок обещает 40, но к моменту резервирования осталось 15:
	// координатор перечитывает остаток и забирает меньшее
	store := NewMemoryCapacityStore()
	coordinator := newTestCoordinator(store)
	ctx := context.Background()

	dept := candidateAt("contested", 0.02, 40)
	store.Register(dept.ID, 40)
	require.NoError(t, store.Reserve(ctx, dept.ID, 25)) // конкурент успел раньше

	result, err := coordinator.Allocate(ctx, uuid.New(), testIncidentLocation, 4, []Candidate{dept})

	require.NoError(t, err)
	assert.Equal(t, 15, result.Dispatched)
	assert.Equal(t, 25, result.Shortfall)
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, 15, result.Assignments[0].Amount)

	available, _ := store.Available(ctx, dept.ID)
	assert.Equal(t, 0, available)
}

func TestCoordinator_Allocate_UnknownDepartmentSkipped(t *testing.T) {
	store := NewMemoryCapacityStore()
	coordinator := newTestCoordinator(store)
	ctx := context.Background()

	ghost := candidateAt("ghost", 0.01, 50) // не зарегистрирована в хранилище
	real := candidateAt("real", 0.05, 20)
	store.Register(real.ID, 20)

	result, err := coordinator.Allocate(ctx, uuid.New(), testIncidentLocation, 3, []Candidate{ghost, real})

	require.NoError(t, err)
	assert.Equal(t, 20, result.Dispatched)
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, real.ID, result.Assignments[0].DepartmentID)
}

func TestCoordinator_Allocate_RedistributesAfterDrain(t *testing.T) {
	// Ближайшая часть обещала 30, но к резервированию осталось 10: остаток
	// требования добирается у дальней части сверх ее запланированной доли
	store := NewMemoryCapacityStore()
	coordinator := newTestCoordinator(store)
	ctx := context.Background()

	near := candidateAt("near", 0.02, 30)
	far := candidateAt("far", 0.10, 40)
	store.Register(near.ID, 30)
	store.Register(far.ID, 40)
	require.NoError(t, store.Reserve(ctx, near.ID, 20)) // конкурент успел раньше

	result, err := coordinator.Allocate(ctx, uuid.New(), testIncidentLocation, 5, []Candidate{near, far})

	require.NoError(t, err)
	assert.Equal(t, 50, result.Required)
	assert.Equal(t, 50, result.Dispatched)
	assert.Equal(t, 0, result.Shortfall)
	require.Len(t, result.Assignments, 2)
	assert.Equal(t, near.ID, result.Assignments[0].DepartmentID)
	assert.Equal(t, 10, result.Assignments[0].Amount)
	assert.Equal(t, far.ID, result.Assignments[1].DepartmentID)
	assert.Equal(t, 40, result.Assignments[1].Amount)

	available, _ := store.Available(ctx, far.ID)
	assert.Equal(t, 0, available)
}

func TestCoordinator_Allocate_InvalidSeverity(t *testing.T) {
	coordinator := newTestCoordinator(NewMemoryCapacityStore())

	for _, severity := range []int{0, -1, 11} {
		_, err := coordinator.Allocate(context.Background(), uuid.New(), testIncidentLocation, severity, nil)
		assert.ErrorIs(t, err, ErrInvalidSeverity)
	}
}

// cancellingStore отменяет контекст после первого успешного резерва,
// имитируя обрыв запроса посреди выделения
type cancellingStore struct {
	*MemoryCapacityStore
	cancel   context.CancelFunc
	reserves int
}

func (s *cancellingStore) Reserve(ctx context.Context, departmentID uuid.UUID, amount int) error {
	err := s.MemoryCapacityStore.Reserve(ctx, departmentID, amount)
	if err == nil {
		s.reserves++
		if s.reserves == 1 {
			s.cancel()
		}
	}
	return err
}

func TestCoordinator_Allocate_CancellationRollsBack(t *testing.T) {
	memory := NewMemoryCapacityStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{MemoryCapacityStore: memory, cancel: cancel}
	coordinator := newTestCoordinator(store)

	near := candidateAt("near", 0.02, 30)
	far := candidateAt("far", 0.10, 40)
	candidates := registerCandidates(memory, near, far)

	_, err := coordinator.Allocate(ctx, uuid.New(), testIncidentLocation, 5, candidates)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// Частичный резерв полностью возвращен
	available, _ := memory.Available(context.Background(), near.ID)
	assert.Equal(t, 30, available)
	available, _ = memory.Available(context.Background(), far.ID)
	assert.Equal(t, 40, available)
}

func TestCoordinator_ChangeStatus_ReclaimsToNearest(t *testing.T) {
	store := NewMemoryCapacityStore()
	coordinator := newTestCoordinator(store)
	ctx := context.Background()

	near := candidateAt("near", 0.02, 5)
	far := candidateAt("far", 0.20, 50)
	candidates := registerCandidates(store, near, far)

	incident := &models.Incident{
		ID:                   uuid.New(),
		Latitude:             testIncidentLocation.Latitude,
		Longitude:            testIncidentLocation.Longitude,
		Status:               models.StatusInProcess,
		DispatchedResponders: 50,
	}

	result, err := coordinator.ChangeStatus(ctx, incident, models.StatusResolved, candidates)

	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, result.NewStatus)
	assert.Equal(t, 0, result.DispatchedResponders)
	require.NotNil(t, result.ReclaimedTo)
	assert.Equal(t, near.ID, *result.ReclaimedTo)
	assert.Equal(t, 50, result.ReclaimedAmount)

	// Весь состав вернулся ближайшей части
	available, _ := store.Available(ctx, near.ID)
	assert.Equal(t, 55, available)
	available, _ = store.Available(ctx, far.ID)
	assert.Equal(t, 50, available)
}

func TestCoordinator_ChangeStatus_ReclaimIdempotent(t *testing.T) {
	store := NewMemoryCapacityStore()
	coordinator := newTestCoordinator(store)
	ctx := context.Background()

	dept := candidateAt("dept", 0.02, 10)
	candidates := registerCandidates(store, dept)

	incident := &models.Incident{
		ID:                   uuid.New(),
		Latitude:             testIncidentLocation.Latitude,
		Longitude:            testIncidentLocation.Longitude,
		Status:               models.StatusInProcess,
		DispatchedResponders: 50,
	}

	first, err := coordinator.ChangeStatus(ctx, incident, models.StatusResolved, candidates)
	require.NoError(t, err)
	assert.Equal(t, 0, first.DispatchedResponders)

	// Применяем результат, как это делает сервис
	incident.Status = first.NewStatus
	incident.DispatchedResponders = first.DispatchedResponders

	second, err := coordinator.ChangeStatus(ctx, incident, models.StatusResolved, candidates)
	require.NoError(t, err)
	assert.Nil(t, second.ReclaimedTo)

	// Повторный переход ничего не возвращает
	available, _ := store.Available(ctx, dept.ID)
	assert.Equal(t, 60, available)
}

func TestCoordinator_ChangeStatus_NoReclaimWhileInProcess(t *testing.T) {
	store := NewMemoryCapacityStore()
	coordinator := newTestCoordinator(store)

	dept := candidateAt("dept", 0.02, 10)
	candidates := registerCandidates(store, dept)

	incident := &models.Incident{
		ID:                   uuid.New(),
		Status:               models.StatusInProcess,
		DispatchedResponders: 30,
	}

	result, err := coordinator.ChangeStatus(context.Background(), incident, models.StatusInProcess, candidates)

	require.NoError(t, err)
	assert.Nil(t, result.ReclaimedTo)
	assert.Equal(t, 30, result.DispatchedResponders)
}

func TestCoordinator_ChangeStatus_InvalidStatus(t *testing.T) {
	coordinator := newTestCoordinator(NewMemoryCapacityStore())

	incident := &models.Incident{ID: uuid.New(), Status: models.StatusOpen}
	_, err := coordinator.ChangeStatus(context.Background(), incident, "closed", nil)

	assert.ErrorIs(t, err, ErrInvalidStatus)
}
