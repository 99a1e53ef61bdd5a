package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/courierhq/courier/pkg/protocol"
	"github.com/courierhq/courier/pkg/server"
)

// HealthResponse reports the node's liveness checks
type HealthResponse struct {
	Status string `json:"status"` // "healthy" or "degraded"
	Checks struct {
		Listening        bool `json:"listening"`
		StorageReachable bool `json:"storageReachable"`
	} `json:"checks"`
	CheckedAt time.Time `json:"checkedAt"`
}

// StatusResponse reports server activity and mailbox totals
type StatusResponse struct {
	Success         bool         `json:"success"`
	Server          server.Stats `json:"server"`
	Clients         int          `json:"clients"`
	PendingMessages int          `json:"pendingMessages"`
}

// ClientInfo is one directory entry in the clients listing
type ClientInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	LastSeen time.Time `json:"lastSeen"`
}

// ClientsResponse lists every registered client
type ClientsResponse struct {
	Success bool         `json:"success"`
	Count   int          `json:"count"`
	Clients []ClientInfo `json:"clients"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{CheckedAt: time.Now()}

	resp.Checks.Listening = s.core.Addr() != nil
	resp.Checks.StorageReachable = s.store.Ping() == nil

	resp.Status = "healthy"
	code := http.StatusOK
	if !resp.Checks.Listening || !resp.Checks.StorageReachable {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, resp)
}

// handleStatus handles GET /api/v1/status
func (s *Server) handleStatus(c *gin.Context) {
	clients, err := s.store.CountClients()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to count clients",
			Message: err.Error(),
		})
		return
	}

	pending, err := s.store.CountPending()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to count pending messages",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		Success:         true,
		Server:          s.core.Stats(),
		Clients:         clients,
		PendingMessages: pending,
	})
}

// handleClients handles GET /api/v1/clients
func (s *Server) handleClients(c *gin.Context) {
	// the zero ID never collides with a minted one, so nothing is
	// excluded here
	clients, err := s.store.ListClients(protocol.ClientID{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list clients",
			Message: err.Error(),
		})
		return
	}

	infos := make([]ClientInfo, len(clients))
	for i, cl := range clients {
		infos[i] = ClientInfo{
			ID:       cl.ID.String(),
			Name:     cl.Name,
			LastSeen: cl.LastSeen,
		}
	}

	c.JSON(http.StatusOK, ClientsResponse{
		Success: true,
		Count:   len(infos),
		Clients: infos,
	})
}
