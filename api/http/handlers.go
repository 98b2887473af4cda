package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/sales-trainer/internal/salesflow"
	"github.com/chadiek/sales-trainer/internal/trainer"
	wstransport "github.com/chadiek/sales-trainer/internal/ws"
)

// Handlers is the REST mirror of the websocket protocol for integrators that
// drive the engine without a live socket (the conversation-understanding and
// persona-response layers call these synchronously).
type Handlers struct {
	Sessions *trainer.Manager
	WS       *wstransport.Handler
}

func NewHandlers(sessions *trainer.Manager, wsHandler *wstransport.Handler) Handlers {
	return Handlers{Sessions: sessions, WS: wsHandler}
}

func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/ws/session", echo.WrapHandler(http.HandlerFunc(h.WS.Serve)))
	e.POST("/sessions", h.createSession)
	e.GET("/sessions/:id/state", h.state)
	e.POST("/sessions/:id/transcript", h.transcript)
	e.POST("/sessions/:id/pillars/:name", h.updatePillar)
	e.POST("/sessions/:id/underwriting-complete", h.completeUnderwriting)
	e.GET("/sessions/:id/offer-gate", h.offerGate)
	e.POST("/sessions/:id/offer-revealed", h.revealOffer)
	e.POST("/sessions/:id/price-agreed", h.agreeToPrice)
	e.POST("/sessions/:id/closing-complete", h.completeClosing)
	e.DELETE("/sessions/:id", h.endSession)
}

type createSessionRequest struct {
	Mode string `json:"mode"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// reasonFor maps engine refusals to stable machine-readable reasons so
// callers can branch on why a transition was refused.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, salesflow.ErrUnderwritingNotDue):
		return "underwriting_not_ready"
	case errors.Is(err, salesflow.ErrOfferNotPermitted):
		return "offer_gate_closed"
	case errors.Is(err, salesflow.ErrOfferNotRevealed):
		return "offer_not_revealed"
	case errors.Is(err, salesflow.ErrUnknownPillar):
		return "unknown_pillar"
	case errors.Is(err, trainer.ErrUnknownMode):
		return "unknown_mode"
	}
	return ""
}

func (h Handlers) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	sess, err := h.Sessions.Create(req.Mode, trainer.Hooks{})
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Reason: reasonFor(err)})
	}
	return c.JSON(http.StatusCreated, sess.State())
}

func (h Handlers) lookup(c echo.Context) (*trainer.Session, error) {
	sess, err := h.Sessions.Get(c.Param("id"))
	if err != nil {
		return nil, c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	}
	return sess, nil
}

func (h Handlers) state(c echo.Context) error {
	sess, err := h.lookup(c)
	if sess == nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.State())
}

func (h Handlers) transcript(c echo.Context) error {
	sess, err := h.lookup(c)
	if sess == nil {
		return err
	}
	var ev trainer.TranscriptEvent
	if err := c.Bind(&ev); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	sess.OnTranscript(ev)
	return c.NoContent(http.StatusAccepted)
}

type pillarRequest struct {
	Satisfied *bool `json:"satisfied"`
}

func (h Handlers) updatePillar(c echo.Context) error {
	sess, err := h.lookup(c)
	if sess == nil {
		return err
	}
	var req pillarRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	satisfied := true
	if req.Satisfied != nil {
		satisfied = *req.Satisfied
	}
	if err := sess.Flow().UpdatePillar(salesflow.Pillar(c.Param("name")), satisfied); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Reason: reasonFor(err)})
	}
	sess.PushState()
	return c.JSON(http.StatusOK, sess.Flow().Snapshot())
}

func (h Handlers) completeUnderwriting(c echo.Context) error {
	sess, err := h.lookup(c)
	if sess == nil {
		return err
	}
	if err := sess.Flow().CompleteUnderwriting(); err != nil {
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Reason: reasonFor(err)})
	}
	sess.PushState()
	return c.JSON(http.StatusOK, sess.Flow().Snapshot())
}

type offerGateResponse struct {
	CanReveal     bool   `json:"canReveal"`
	MissingPillar string `json:"missingPillar,omitempty"`
}

// offerGate is the synchronous check the persona-response layer makes before
// any price-disclosing utterance.
func (h Handlers) offerGate(c echo.Context) error {
	sess, err := h.lookup(c)
	if sess == nil {
		return err
	}
	flow := sess.Flow()
	return c.JSON(http.StatusOK, offerGateResponse{
		CanReveal:     flow.CanRevealOffer(),
		MissingPillar: string(flow.MissingPillar()),
	})
}

func (h Handlers) revealOffer(c echo.Context) error {
	sess, err := h.lookup(c)
	if sess == nil {
		return err
	}
	if err := sess.Flow().RevealOffer(); err != nil {
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Reason: reasonFor(err)})
	}
	sess.PushState()
	return c.JSON(http.StatusOK, sess.Flow().Snapshot())
}

func (h Handlers) agreeToPrice(c echo.Context) error {
	sess, err := h.lookup(c)
	if sess == nil {
		return err
	}
	if err := sess.Flow().AgreeToPrice(); err != nil {
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Reason: reasonFor(err)})
	}
	sess.PushState()
	return c.JSON(http.StatusOK, sess.Flow().Snapshot())
}

func (h Handlers) completeClosing(c echo.Context) error {
	sess, err := h.lookup(c)
	if sess == nil {
		return err
	}
	sess.Flow().CompleteClosing()
	sess.PushState()
	return c.JSON(http.StatusOK, sess.Flow().Snapshot())
}

func (h Handlers) endSession(c echo.Context) error {
	if err := h.Sessions.End(c.Param("id")); err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	}
	return c.NoContent(http.StatusNoContent)
}
