package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы инцидента
const (
	StatusOpen      = "open"
	StatusInProcess = "in_process"
	StatusResolved  = "resolved"
)

// ValidStatus проверяет, что строка является допустимым статусом инцидента
func ValidStatus(s string) bool {
	return s == StatusOpen || s == StatusInProcess || s == StatusResolved
}

// Границы оценки серьезности инцидента
const (
	MinSeverityScore = 1
	MaxSeverityScore = 10
)

type Incident struct {
	ID                   uuid.UUID `json:"id"`
	Type                 string    `json:"type"`
	Description          string    `json:"description"`
	Latitude             float64   `json:"latitude"`
	Longitude            float64   `json:"longitude"`
	SeverityScore        int       `json:"severity_score"`
	Status               string    `json:"status"`
	DispatchedResponders int       `json:"dispatched_responders"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Location возвращает координаты инцидента как GeoPoint
func (i *Incident) Location() GeoPoint {
	return GeoPoint{Latitude: i.Latitude, Longitude: i.Longitude}
}

// Attachment представляет метаданные файла, приложенного к инциденту.
// Само содержимое файла хранится внешним хранилищем и не является частью этого сервиса.
type Attachment struct {
	ID            int64     `json:"id"`
	IncidentID    uuid.UUID `json:"incident_id"`
	FileName      string    `json:"file_name"`
	MimeType      string    `json:"mime_type"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
}

// DispatchStats - сводка по инцидентам и задействованным спасателям
type DispatchStats struct {
	Open                 int `json:"open"`
	InProcess            int `json:"in_process"`
	Resolved             int `json:"resolved"`
	DispatchedResponders int `json:"dispatched_responders"`
}

// SensorReading представляет показание датчика, полученное из очереди сенсоров
type SensorReading struct {
	ID          int64      `json:"id"`
	SensorID    string     `json:"sensor_id"`
	IncidentID  *uuid.UUID `json:"incident_id,omitempty"`
	MetricType  string     `json:"metric_type"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Value       float64    `json:"value"`
	Unit        string     `json:"unit"`
	Severity    float64    `json:"severity"`
	Description string     `json:"description"`
	RecordedAt  time.Time  `json:"recorded_at"`
}
