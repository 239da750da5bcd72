package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1.
// Все маршруты, кроме health-check, защищены API-ключом.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	auth := APIKeyAuthMiddleware(h.cfg, h.logger)

	// Маршруты для управления инцидентами
	incidents := api.Group("/incidents", auth)
	{
		incidents.POST("", h.reportIncident)
		incidents.GET("", h.listIncidents)
		incidents.GET("/stats", h.getStats)
		incidents.GET("/:id", h.getIncident)
		incidents.GET("/:id/assignments", h.listAssignments)
		incidents.PUT("/:id/status", h.updateStatus)
	}

	// Маршруты справочника пожарных частей
	departments := api.Group("/departments", auth)
	{
		departments.POST("", h.createDepartment)
		departments.GET("", h.listDepartments)
		departments.GET("/:id", h.getDepartment)
		departments.PUT("/:id", h.updateDepartment)
	}

	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)
}
