package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
)

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, models.StatusInProcess, InitialStatus(30))
	assert.Equal(t, models.StatusOpen, InitialStatus(0))
}

func TestShouldReclaim(t *testing.T) {
	tests := []struct {
		name       string
		oldStatus  string
		newStatus  string
		dispatched int
		want       bool
	}{
		{"выход из in_process в resolved", models.StatusInProcess, models.StatusResolved, 50, true},
		{"выход из in_process в open", models.StatusInProcess, models.StatusOpen, 10, true},
		{"остаёмся в in_process", models.StatusInProcess, models.StatusInProcess, 50, false},
		{"никто не отправлен", models.StatusInProcess, models.StatusResolved, 0, false},
		{"open в resolved без отправленных", models.StatusOpen, models.StatusResolved, 0, false},
		{"open в resolved не возвращает", models.StatusOpen, models.StatusResolved, 50, false},
		{"повторный переход после сброса", models.StatusResolved, models.StatusResolved, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldReclaim(tt.oldStatus, tt.newStatus, tt.dispatched))
		})
	}
}
