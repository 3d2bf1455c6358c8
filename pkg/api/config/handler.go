package config

import (
	"net/http"

	"statement_report/pkg/core/agent"

	"github.com/gin-gonic/gin"
)

type Response struct {
	ActiveProvider string   `json:"active_provider"`
	Available      []string `json:"available"`
}

type SwitchRequest struct {
	Provider string `json:"provider" binding:"required"`
}

// Handler holds dependencies for config endpoints
type Handler struct {
	AgentMgr *agent.Manager
}

// NewHandler creates a new config handler
func NewHandler(agentMgr *agent.Manager) *Handler {
	return &Handler{
		AgentMgr: agentMgr,
	}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/config", h.HandleConfig)
	r.POST("/config/switch", h.HandleSwitch)
}

func (h *Handler) HandleConfig(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, Response{
		ActiveProvider: h.AgentMgr.GetActiveProvider(),
		Available:      h.AgentMgr.Available(),
	})
}

func (h *Handler) HandleSwitch(ctx *gin.Context) {
	var req SwitchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.AgentMgr.SetGlobalProvider(req.Provider); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, Response{
		ActiveProvider: h.AgentMgr.GetActiveProvider(),
		Available:      h.AgentMgr.Available(),
	})
}
