package v1

import (
	"time"

	"github.com/google/uuid"
)

// ReportIncidentRequest DTO для приема сообщения об инциденте
// @Description DTO для приема сообщения об инциденте
type ReportIncidentRequest struct {
	Type          string  `json:"type" form:"type" validate:"required,min=2,max=255"`
	Description   string  `json:"description,omitempty" form:"description"`
	Latitude      float64 `json:"latitude" form:"latitude" validate:"latitude"`
	Longitude     float64 `json:"longitude" form:"longitude" validate:"longitude"`
	SeverityScore int     `json:"severity_score" form:"severity_score" validate:"omitempty,gte=1,lte=10"`
}

// UpdateStatusRequest DTO для смены статуса инцидента
// @Description DTO для смены статуса инцидента
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open in_process resolved"`
}

// IncidentResponse DTO для ответа с информацией об инциденте
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID                   uuid.UUID `json:"id"`
	Type                 string    `json:"type"`
	Description          string    `json:"description,omitempty"`
	Latitude             float64   `json:"latitude"`
	Longitude            float64   `json:"longitude"`
	SeverityScore        int       `json:"severity_score"`
	Status               string    `json:"status"`
	DispatchedResponders int       `json:"dispatched_responders"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// AssignmentResponse DTO для ответа с назначением части на инцидент
// @Description DTO для ответа с назначением части на инцидент
type AssignmentResponse struct {
	FireDepartmentID     uuid.UUID `json:"fire_department_id"`
	FireDepartmentName   string    `json:"fire_department_name,omitempty"`
	RespondersDispatched int       `json:"responders_dispatched"`
}

// ReportIncidentResponse DTO для ответа на прием инцидента
// @Description DTO для ответа на прием инцидента
type ReportIncidentResponse struct {
	Incident           IncidentResponse     `json:"incident"`
	Assignments        []AssignmentResponse `json:"assignments"`
	RequiredResponders int                  `json:"required_responders"`
	Shortfall          int                  `json:"shortfall"`
}

// UpdateStatusResponse DTO для ответа на смену статуса
// @Description DTO для ответа на смену статуса
type UpdateStatusResponse struct {
	Incident        IncidentResponse `json:"incident"`
	ReclaimedTo     *uuid.UUID       `json:"reclaimed_to,omitempty"`
	ReclaimedAmount int              `json:"reclaimed_amount,omitempty"`
}

// DepartmentRequest DTO для создания/обновления пожарной части
// @Description DTO для создания/обновления пожарной части
type DepartmentRequest struct {
	Name                string  `json:"name" validate:"required,min=2,max=255"`
	City                string  `json:"city" validate:"required,min=2,max=255"`
	Latitude            float64 `json:"latitude" validate:"latitude"`
	Longitude           float64 `json:"longitude" validate:"longitude"`
	AvailableResponders int     `json:"available_responders" validate:"gte=0"`
}

// DepartmentResponse DTO для ответа с информацией о пожарной части
// @Description DTO для ответа с информацией о пожарной части
type DepartmentResponse struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	City                string    `json:"city"`
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
	AvailableResponders int       `json:"available_responders"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// StatsResponse DTO для ответа со сводкой по инцидентам
// @Description DTO для ответа со сводкой по инцидентам
type StatsResponse struct {
	Open                 int `json:"open"`
	InProcess            int `json:"in_process"`
	Resolved             int `json:"resolved"`
	DispatchedResponders int `json:"dispatched_responders"`
}
