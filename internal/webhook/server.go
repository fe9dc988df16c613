// Package webhook serves the out-of-band decision endpoint employees' phones
// and apps call while a consultation is pending, and lets them mark a taken
// message as read.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/consultation"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/message"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	probeTimeout    = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Decider interface {
	Decide(id string, decision consultation.Decision, message string) error
}

type MessageReader interface {
	MarkRead(ctx context.Context, messageID string) error
}

// Probe reports whether one dependency is reachable.
type Probe func(ctx context.Context) error

type decisionRequest struct {
	Decision string `json:"decision" binding:"required,oneof=accept reject message"`
	Message  string `json:"message"  binding:"max=2000"`
}

type Handler struct {
	Decider Decider
	// Messages is optional; without it the read route is not served.
	Messages MessageReader
	Probes   map[string]Probe
}

func NewRouter(decider Decider, messages MessageReader, probes map[string]Probe) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	handler := &Handler{Decider: decider, Messages: messages, Probes: probes}

	router := gin.New()
	router.Use(gin.Recovery(), ResponseLogger(logging.ResponseLogger()))

	router.POST("/v1/consultations/:id/decision", handler.Decide)
	router.GET("/healthz", handler.Health)

	if messages != nil {
		router.POST("/v1/messages/:id/read", handler.MarkRead)
	}

	return router
}

func (handler *Handler) Decide(c *gin.Context) {
	consultationID := c.Param("id")

	var req decisionRequest

	err := c.ShouldBindJSON(&req)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid decision"})
		return
	}

	decision, err := consultation.ParseDecisionName(req.Decision)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid decision"})
		return
	}

	err = handler.Decider.Decide(consultationID, decision, req.Message)

	switch {
	case err == nil:
		logging.Logger.Info("[Decide] decision received",
			zap.String("consultation_id", consultationID),
			zap.String("decision", decision.String()),
		)
		c.JSON(http.StatusAccepted, gin.H{"consultation_id": consultationID, "decision": decision.String()})
	case errors.Is(err, consultation.ErrConsultationNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "consultation not found"})
	case errors.Is(err, consultation.ErrAlreadyDecided):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "consultation already decided"})
	case errors.Is(err, consultation.ErrInvalidDecision):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid decision"})
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "decision failed"})
	}
}

func (handler *Handler) MarkRead(c *gin.Context) {
	messageID := c.Param("id")

	err := handler.Messages.MarkRead(c.Request.Context(), messageID)

	switch {
	case err == nil:
		logging.Logger.Info("[MarkRead] message marked read", zap.String("message_id", messageID))
		c.JSON(http.StatusOK, gin.H{"message_id": messageID, "status": message.StatusRead})
	case errors.Is(err, message.ErrMessageNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "message not found"})
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "marking message read failed"})
	}
}

func (handler *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	checks := make(map[string]string, len(handler.Probes))

	for name, probe := range handler.Probes {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		err := probe(ctx)

		cancel()

		if err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()

			continue
		}

		checks[name] = "ok"
	}

	c.JSON(status, gin.H{"checks": checks})
}

func NewServer(port string, timeout time.Duration, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       timeout,
	}
}

// Run serves until ctx is canceled, then shuts the server down gracefully.
func Run(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)

	go func() {
		logging.Logger.Info("[Run] start webhook server", zap.String("addr", server.Addr))

		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
