package httpapi

import (
	"net/http"
	"strconv"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

func (h Handlers) listCDR(c *gin.Context) {
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

	// `limit` is the contract name for the page size; `page_size` is kept
	// as the explicit alias.
	pageSize := intQuery(c, "page_size")
	if pageSize == 0 {
		pageSize = intQuery(c, "limit")
	}

	f := reporting.CDRFilter{
		From:        from,
		To:          to,
		RangeDays:   intQuery(c, "range_days"),
		AgentUserID: c.Query("agent_user_id"),
		Direction:   calls.Direction(c.Query("direction")),
		Status:      calls.CallStatus(c.Query("status")),
		Queue:       c.Query("queue"),
		Trunk:       c.Query("trunk"),
		Disposition: c.Query("disposition"),
		Page:        intQuery(c, "page"),
		PageSize:    pageSize,
	}

	page, err := h.CDR.ListCDR(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h Handlers) summary(c *gin.Context) {
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

	sum, err := h.CDR.Summarize(c.Request.Context(), from, to, intQuery(c, "range_days"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func intQuery(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
