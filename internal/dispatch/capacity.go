package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Ошибки операций с ёмкостью частей
var (
	// ErrInsufficientCapacity - у части меньше доступных спасателей, чем запрошено.
	// Не фатальная ошибка: координатор деградирует до частичного выделения.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrUnknownDepartment - часть с таким id не зарегистрирована в хранилище
	ErrUnknownDepartment = errors.New("unknown fire department")

	// ErrNegativeAmount - отрицательное количество спасателей недопустимо
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// CapacityStore - единственный источник истины о доступных спасателях каждой части.
// Reserve и Release для одной части сериализуются, наблюдаемое значение
// никогда не становится отрицательным.
type CapacityStore interface {
	// Reserve атомарно уменьшает счетчик части на amount, если текущее значение >= amount.
	// amount == 0 всегда успешный no-op.
	Reserve(ctx context.Context, departmentID uuid.UUID, amount int) error
	// Release атомарно возвращает amount спасателей части. Всегда успешен для
	// существующей части: возврат сверху не ограничен.
	Release(ctx context.Context, departmentID uuid.UUID, amount int) error
	// Available возвращает счетчик, согласованный с последней завершенной операцией
	Available(ctx context.Context, departmentID uuid.UUID) (int, error)
}

type departmentSlot struct {
	mu        sync.Mutex
	available int
}

// MemoryCapacityStore - потокобезопасное in-memory хранилище ёмкости.
// Блокировка на каждую часть: операции над разными частями не блокируют друг друга.
type MemoryCapacityStore struct {
	mu    sync.RWMutex
	slots map[uuid.UUID]*departmentSlot
}

func NewMemoryCapacityStore() *MemoryCapacityStore {
	return &MemoryCapacityStore{
		slots: make(map[uuid.UUID]*departmentSlot),
	}
}

// Register добавляет часть с начальным количеством доступных спасателей.
// Повторная регистрация перезаписывает счетчик.
func (s *MemoryCapacityStore) Register(departmentID uuid.UUID, available int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if available < 0 {
		available = 0
	}
	s.slots[departmentID] = &departmentSlot{available: available}
}

func (s *MemoryCapacityStore) slot(departmentID uuid.UUID) (*departmentSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[departmentID]
	return slot, ok
}

func (s *MemoryCapacityStore) Reserve(_ context.Context, departmentID uuid.UUID, amount int) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	if amount == 0 {
		return nil
	}
	slot, ok := s.slot(departmentID)
	if !ok {
		return ErrUnknownDepartment
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.available < amount {
		return ErrInsufficientCapacity
	}
	slot.available -= amount
	return nil
}

func (s *MemoryCapacityStore) Release(_ context.Context, departmentID uuid.UUID, amount int) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	if amount == 0 {
		return nil
	}
	slot, ok := s.slot(departmentID)
	if !ok {
		return ErrUnknownDepartment
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	slot.available += amount
	return nil
}

func (s *MemoryCapacityStore) Available(_ context.Context, departmentID uuid.UUID) (int, error) {
	slot, ok := s.slot(departmentID)
	if !ok {
		return 0, ErrUnknownDepartment
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.available, nil
}
