package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check is one dependency probed by the readiness endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type FaceCounter interface {
	Counts(ctx context.Context) (total, labeled int, err error)
}

type SystemHandler struct {
	checks []Check
	faces  FaceCounter
}

func NewSystemHandler(faces FaceCounter, checks ...Check) *SystemHandler {
	return &SystemHandler{checks: checks, faces: faces}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	for _, chk := range h.checks {
		if err := chk.Ping(ctx); err != nil {
			checks[chk.Name] = err.Error()
			healthy = false
		} else {
			checks[chk.Name] = "ok"
		}
	}

	resp := gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	}
	if healthy && h.faces != nil {
		if total, labeled, err := h.faces.Counts(ctx); err == nil {
			resp["faces"] = gin.H{"total": total, "labeled": labeled, "unlabeled": total - labeled}
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
