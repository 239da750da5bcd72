package v1

import (
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/models"
	"github.com/elton-saraci/pmrexpo-incident-management-platform/internal/service"
)

// DTOToIncidentModel преобразует DTO приема инцидента в доменную модель
func DTOToIncidentModel(dto ReportIncidentRequest) *models.Incident {
	return &models.Incident{
		Type:          dto.Type,
		Description:   dto.Description,
		Latitude:      dto.Latitude,
		Longitude:     dto.Longitude,
		SeverityScore: dto.SeverityScore,
	}
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) IncidentResponse {
	return IncidentResponse{
		ID:                   model.ID,
		Type:                 model.Type,
		Description:          model.Description,
		Latitude:             model.Latitude,
		Longitude:            model.Longitude,
		SeverityScore:        model.SeverityScore,
		Status:               model.Status,
		DispatchedResponders: model.DispatchedResponders,
		CreatedAt:            model.CreatedAt,
		UpdatedAt:            model.UpdatedAt,
	}
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(incidents []*models.Incident) []IncidentResponse {
	responses := make([]IncidentResponse, len(incidents))
	for i, incident := range incidents {
		responses[i] = ModelToIncidentResponse(incident)
	}
	return responses
}

// ModelsToAssignmentResponses преобразует назначения в DTO для ответа
func ModelsToAssignmentResponses(assignments []*models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, len(assignments))
	for i, a := range assignments {
		responses[i] = AssignmentResponse{
			FireDepartmentID:     a.FireDepartmentID,
			FireDepartmentName:   a.FireDepartmentName,
			RespondersDispatched: a.RespondersDispatched,
		}
	}
	return responses
}

// ReportResultToResponse преобразует итог приема инцидента в DTO для ответа
func ReportResultToResponse(result *service.ReportResult) ReportIncidentResponse {
	return ReportIncidentResponse{
		Incident:           ModelToIncidentResponse(result.Incident),
		Assignments:        ModelsToAssignmentResponses(result.Assignments),
		RequiredResponders: result.Required,
		Shortfall:          result.Shortfall,
	}
}

// StatusResultToResponse преобразует итог смены статуса в DTO для ответа
func StatusResultToResponse(result *service.StatusUpdateResult) UpdateStatusResponse {
	return UpdateStatusResponse{
		Incident:        ModelToIncidentResponse(result.Incident),
		ReclaimedTo:     result.ReclaimedTo,
		ReclaimedAmount: result.ReclaimedAmount,
	}
}

// DTOToDepartmentModel преобразует DTO пожарной части в доменную модель
func DTOToDepartmentModel(dto DepartmentRequest) *models.FireDepartment {
	return &models.FireDepartment{
		Name:                dto.Name,
		City:                dto.City,
		Latitude:            dto.Latitude,
		Longitude:           dto.Longitude,
		AvailableResponders: dto.AvailableResponders,
	}
}

// ModelToDepartmentResponse преобразует доменную модель в DTO для ответа
func ModelToDepartmentResponse(model *models.FireDepartment) DepartmentResponse {
	return DepartmentResponse{
		ID:                  model.ID,
		Name:                model.Name,
		City:                model.City,
		Latitude:            model.Latitude,
		Longitude:           model.Longitude,
		AvailableResponders: model.AvailableResponders,
		CreatedAt:           model.CreatedAt,
		UpdatedAt:           model.UpdatedAt,
	}
}

// ModelsToDepartmentResponses преобразует слайс моделей в слайс DTO
func ModelsToDepartmentResponses(departments []*models.FireDepartment) []DepartmentResponse {
	responses := make([]DepartmentResponse, len(departments))
	for i, department := range departments {
		responses[i] = ModelToDepartmentResponse(department)
	}
	return responses
}

// StatsToResponse преобразует сводку в DTO для ответа
func StatsToResponse(stats *models.DispatchStats) StatsResponse {
	return StatsResponse{
		Open:                 stats.Open,
		InProcess:            stats.InProcess,
		Resolved:             stats.Resolved,
		DispatchedResponders: stats.DispatchedResponders,
	}
}
