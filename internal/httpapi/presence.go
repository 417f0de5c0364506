package httpapi

import (
	"net/http"

	"callcenter-platform/internal/auth"
	"callcenter-platform/internal/presence"
	"callcenter-platform/internal/rbac"
	"callcenter-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

func (h Handlers) getPresence(c *gin.Context) {
	snap, err := h.Tracker.Get(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// setPresence records a manual transition. Agents may only set their own
// state; supervisors and admins may set anyone's.
func (h Handlers) setPresence(c *gin.Context) {
	agentID := c.Param("agent_id")

	role, _ := auth.Role(c.Request.Context())
	if role == rbac.RoleAgent {
		uid, err := auth.UserID(c.Request.Context())
		if err != nil || uid != agentID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "agents may only set their own presence"})
			return
		}
	}

	var req struct {
		Status presence.Status `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	snap, err := h.Tracker.Set(c.Request.Context(), agentID, req.Status, "manual")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// presenceReport takes the same optional window inputs as the CDR surface:
// from/to, or range_days against now, defaulting to the last seven days.
func (h Handlers) presenceReport(c *gin.Context) {
	from, err := timeQuery(c, "from")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
		return
	}
	to, err := timeQuery(c, "to")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
		return
	}

	from, to, err = reporting.ResolveWindow(h.now().UTC(), from, to, intQuery(c, "range_days"))
	if err != nil {
		fail(c, err)
		return
	}

	reports, err := h.Reports.Report(c.Request.Context(), from, to, c.QueryArray("agent_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "agents": reports})
}
