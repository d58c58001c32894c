package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sigtrade/internal/intake"
	"sigtrade/internal/types"
)

type handlers struct {
	cfg ServerConfig
}

const maxSignalBody = 16 << 10

func (h *handlers) postSignal(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSignalBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading body failed"})
		return
	}
	sig, plans, err := h.cfg.Intake.Accept(c.Request.Context(), raw)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, intake.ErrInvalidPayload),
			errors.Is(err, intake.ErrPriceBand),
			errors.Is(err, intake.ErrNoPrice):
			status = http.StatusBadRequest
		case errors.Is(err, intake.ErrDuplicate):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"signal_id": sig.ID, "plan_groups": plans})
}

func (h *handlers) postTick(c *gin.Context) {
	if err := h.cfg.Engine.RunTick(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) getPositions(c *gin.Context) {
	rows, err := h.cfg.Store.OpenPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": rows})
}

func (h *handlers) getPositionOrders(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid position id"})
		return
	}
	rows, err := h.cfg.Store.OrdersByPosition(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": rows})
}

func (h *handlers) getOrders(c *gin.Context) {
	status := types.StatusOpen
	if raw := c.Query("status"); raw != "" {
		parsed, err := types.ParseOrderStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status = parsed
	}
	rows, err := h.cfg.Store.OrdersByStatus(c.Request.Context(), status, 200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": rows})
}
