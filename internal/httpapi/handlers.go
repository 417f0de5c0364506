package httpapi

import (
	"time"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/presence"
	"callcenter-platform/internal/rbac"
	"callcenter-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

// Handlers delegates HTTP requests to the internal modules. Keep this layer
// thin: request decoding, identity checks and error mapping only.
type Handlers struct {
	Engine  *calls.Engine
	Store   calls.Store
	Tracker *presence.Tracker
	Reports *presence.Reconstructor
	CDR     *reporting.Service

	// Now is the time source for report-window defaults. Override in tests.
	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Register wires the protected /v1 surface. The group must already carry
// the access-token middleware; RBAC is applied per route here.
func (h Handlers) Register(v1 gin.IRouter) {
	agentUp := rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor)
	supervisorUp := rbac.RequireAnyRole(rbac.RoleSupervisor)

	callGroup := v1.Group("/calls")
	callGroup.Use(agentUp)
	{
		callGroup.POST("/initiate", h.initiateCall)
		callGroup.POST("/start", h.startCall)
		callGroup.GET("/:call_id", h.getCall)
		callGroup.POST("/:call_id/hangup", h.hangupCall)
		callGroup.POST("/:call_id/transfer", h.transferCall)
	}

	presenceGroup := v1.Group("/presence")
	presenceGroup.Use(agentUp)
	{
		presenceGroup.GET("/:agent_id", h.getPresence)
		presenceGroup.PUT("/:agent_id", h.setPresence)
	}

	reportGroup := v1.Group("/reports")
	reportGroup.Use(supervisorUp)
	{
		reportGroup.GET("/presence", h.presenceReport)
		reportGroup.GET("/cdr", h.listCDR)
		reportGroup.GET("/summary", h.summary)
	}
}
