package restic

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheckEndpoint reports liveness: 200 once the gateway holds a
// credential and has attempted its persistence warm-load (if any is
// configured), 503 while still starting up.
func (h *Handlers) HealthCheckEndpoint(c *gin.Context) {
	if !h.ready.Load() {
		c.Data(http.StatusServiceUnavailable, gin.MIMEJSON, nil)
		return
	}
	c.Data(http.StatusOK, gin.MIMEJSON, nil)
}
