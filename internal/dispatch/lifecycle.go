package dispatch

import "github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"

// InitialStatus возвращает статус нового инцидента после выделения ресурсов:
// in_process, если кто-то был отправлен, иначе open
func InitialStatus(dispatched int) string {
	if dispatched > 0 {
		return models.StatusInProcess
	}
	return models.StatusOpen
}

// ShouldReclaim решает, нужно ли вернуть отправленных спасателей в пул.
// Возврат происходит только при выходе из in_process с ненулевым числом
// отправленных. Повторный вызов для того же перехода возвращает false,
// так как счетчик уже сброшен в 0.
func ShouldReclaim(oldStatus, newStatus string, dispatched int) bool {
	return oldStatus == models.StatusInProcess &&
		newStatus != models.StatusInProcess &&
		dispatched > 0
}
