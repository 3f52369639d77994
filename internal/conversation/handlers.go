package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voicecampaign/internal/telephony"
	"voicecampaign/pkg/logger"
	"voicecampaign/pkg/utils"
)

// RegisterRoutes mounts the provider webhook endpoints. The provider retries
// on 5xx and plays an ugly default message on invalid TwiML, so voice
// endpoints answer 200 with a spoken fallback no matter what went wrong.
func RegisterRoutes(r gin.IRouter, e *Engine) {
	h := &hookHandlers{engine: e}

	hook := r.Group("/hook")
	hook.POST("/answer/:run_id", h.answer)
	hook.POST("/gather/:run_id", h.gather)
	hook.POST("/status/:run_id", h.status)
	hook.POST("/recording/:run_id", h.recording)
}

type hookHandlers struct {
	engine *Engine
}

func (h *hookHandlers) answer(c *gin.Context) {
	utils.WebhookTurnsTotal.WithLabelValues("answer").Inc()
	runID := c.Param("run_id")

	twiml, err := h.engine.Answer(c.Request.Context(), runID)
	if err != nil {
		logger.FromGin(c).Error("answer hook failed", "run_id", runID, "error", err)
		h.writeFallback(c)
		return
	}
	h.writeTwiML(c, twiml)
}

func (h *hookHandlers) gather(c *gin.Context) {
	utils.WebhookTurnsTotal.WithLabelValues("gather").Inc()
	runID := c.Param("run_id")

	form, err := telephony.ParseGatherForm(c.Request)
	if err != nil {
		logger.FromGin(c).Error("gather form unreadable", "run_id", runID, "error", err)
		h.writeFallback(c)
		return
	}

	twiml, err := h.engine.Gather(c.Request.Context(), runID, form)
	if err != nil {
		logger.FromGin(c).Error("gather hook failed", "run_id", runID, "error", err)
		h.writeFallback(c)
		return
	}
	h.writeTwiML(c, twiml)
}

func (h *hookHandlers) status(c *gin.Context) {
	utils.WebhookTurnsTotal.WithLabelValues("status").Inc()
	runID := c.Param("run_id")

	form, err := telephony.ParseStatusForm(c.Request)
	if err != nil {
		logger.FromGin(c).Error("status form unreadable", "run_id", runID, "error", err)
		c.Status(http.StatusOK)
		return
	}
	if err := h.engine.Status(c.Request.Context(), runID, form); err != nil {
		logger.FromGin(c).Error("status hook failed", "run_id", runID, "error", err)
	}
	c.Status(http.StatusOK)
}

func (h *hookHandlers) recording(c *gin.Context) {
	utils.WebhookTurnsTotal.WithLabelValues("recording").Inc()
	runID := c.Param("run_id")

	form, err := telephony.ParseRecordingForm(c.Request)
	if err != nil {
		logger.FromGin(c).Error("recording form unreadable", "run_id", runID, "error", err)
		c.Status(http.StatusOK)
		return
	}
	if err := h.engine.Recording(c.Request.Context(), runID, form); err != nil {
		logger.FromGin(c).Error("recording hook failed", "run_id", runID, "error", err)
	}
	c.Status(http.StatusOK)
}

func (h *hookHandlers) writeTwiML(c *gin.Context, twiml string) {
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(twiml))
}

func (h *hookHandlers) writeFallback(c *gin.Context) {
	twiml, err := telephony.NewResponse().
		Say("", "We're sorry, something went wrong on our end. Goodbye.").
		Hangup().
		Render()
	if err != nil {
		c.Status(http.StatusOK)
		return
	}
	h.writeTwiML(c, twiml)
}
