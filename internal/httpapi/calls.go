package httpapi

import (
	"net/http"

	"callcenter-platform/internal/auth"
	"callcenter-platform/internal/calls"

	"github.com/gin-gonic/gin"
)

func (h Handlers) initiateCall(c *gin.Context) {
	var req calls.InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	// The caller dials on their own behalf unless they say otherwise.
	if req.AgentUserID == "" {
		if uid, err := auth.UserID(c.Request.Context()); err == nil {
			req.AgentUserID = uid
		}
	}

	res, err := h.Engine.InitiateCall(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h Handlers) startCall(c *gin.Context) {
	var req calls.ContractStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	res, err := h.Engine.StartCallContractCompatible(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h Handlers) getCall(c *gin.Context) {
	id := c.Param("call_id")
	rec, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// hangupCall addresses the call by the provider's id: hangup is a
// provider-facing operation and the external id is what both sides share.
func (h Handlers) hangupCall(c *gin.Context) {
	res, err := h.Engine.Hangup(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) transferCall(c *gin.Context) {
	var req struct {
		Extension string `json:"extension"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	mode, err := h.Engine.Transfer(c.Request.Context(), c.Param("call_id"), req.Extension)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": mode})
}
