package models

import (
	"time"

	"github.com/google/uuid"
)

// FireDepartment представляет пожарную часть с конечным числом доступных спасателей.
// Поле AvailableResponders изменяется только через CapacityStore.
type FireDepartment struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	City                string    `json:"city"`
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
	AvailableResponders int       `json:"available_responders"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Location возвращает координаты части как GeoPoint
func (d *FireDepartment) Location() GeoPoint {
	return GeoPoint{Latitude: d.Latitude, Longitude: d.Longitude}
}

// Assignment фиксирует, сколько спасателей часть выделила инциденту.
// Сумма RespondersDispatched по инциденту равна Incident.DispatchedResponders.
type Assignment struct {
	ID                   int64     `json:"id"`
	IncidentID           uuid.UUID `json:"incident_id"`
	FireDepartmentID     uuid.UUID `json:"fire_department_id"`
	FireDepartmentName   string    `json:"fire_department_name"`
	RespondersDispatched int       `json:"responders_dispatched"`
	CreatedAt            time.Time `json:"created_at"`
}
