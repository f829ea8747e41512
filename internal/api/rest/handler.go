package rest

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"eventsim/internal/domain/event"
	"eventsim/internal/domain/position"
	"eventsim/internal/metrics"
	"eventsim/internal/services/confirmation"
	"eventsim/internal/services/pipeline"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
	"eventsim/pkg/ratelimit"
)

const maxPayloadBytes = 1 << 20

// Submitter accepts raw detection payloads. Implemented by *pipeline.Engine.
type Submitter interface {
	Submit(ctx context.Context, raw []byte) (*pipeline.Result, error)
}

// EventReader reads live events. Implemented by *lifecycle.Manager.
type EventReader interface {
	Get(id uuid.UUID) (*event.Event, bool)
}

// PositionReader reads live positions. Implemented by *simulator.Simulator.
type PositionReader interface {
	Get(eventID uuid.UUID) (*position.Position, bool)
}

// Resolver applies operator answers. Implemented by *confirmation.Registry.
type Resolver interface {
	Confirm(eventID uuid.UUID) error
	Ignore(eventID uuid.UUID) error
}

// PriceSetter accepts manually pushed prices. Implemented by *pricefeed.Cache.
type PriceSetter interface {
	SetPrice(symbol string, p decimal.Decimal)
}

// Deps bundles the handler's collaborators. The stores and Prices are optional.
type Deps struct {
	Engine        Submitter
	Events        EventReader
	EventStore    event.Repository
	Positions     PositionReader
	PositionStore position.Repository
	Modes         *confirmation.ModeSource
	Confirmations Resolver
	Prices        PriceSetter
}

// Handler serves the engine's REST API
type Handler struct {
	Deps
	limiter *ratelimit.KeyedLimiter
	log     *logger.Logger
}

// NewHandler creates the handler. Ingest is rate limited per client address.
func NewHandler(deps Deps, ingestRate float64, ingestBurst int, log *logger.Logger) *Handler {
	return &Handler{
		Deps:    deps,
		limiter: ratelimit.NewKeyedLimiter("ingest", ingestRate, ingestBurst, 0),
		log:     log.With("component", "rest"),
	}
}

// Register mounts all routes on mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/events", h.submitEvent)
	mux.HandleFunc("GET /v1/events/{id}", h.getEvent)
	mux.HandleFunc("GET /v1/positions/{event_id}", h.getPosition)
	mux.HandleFunc("GET /v1/confirmation/mode", h.getMode)
	mux.HandleFunc("PUT /v1/confirmation/mode", h.setMode)
	mux.HandleFunc("POST /v1/confirmations/{event_id}", h.confirm)
	if h.Prices != nil {
		mux.HandleFunc("POST /v1/prices", h.pushPrice)
	}
}

func (h *Handler) submitEvent(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(clientAddr(r)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "slow down")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error())
		return
	}

	res, err := h.Engine.Submit(r.Context(), raw)
	metrics.RecordReceived("http", err)

	var se *errors.SchemaError
	switch {
	case errors.As(err, &se):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "schema_error", Field: se.Field, Reason: se.Reason})
	case err != nil && res != nil:
		// the event was registered and rejected; the caller may resubmit later
		h.log.Warnw("Submission rejected by infrastructure failure", "event_id", res.EventID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, res)
	case err != nil:
		h.log.Errorw("Submission failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "submission failed")
	case res.Pending:
		writeJSON(w, http.StatusAccepted, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// EventView is an event with its reduced projection
type EventView struct {
	*event.Event
	Projection event.Projection `json:"projection"`
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ev, found := h.Events.Get(id)
	if !found && h.EventStore != nil {
		stored, err := h.EventStore.GetByID(r.Context(), id)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			h.log.Errorw("Event lookup failed", "event_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "event lookup failed")
			return
		}
		ev, found = stored, err == nil
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "unknown event")
		return
	}
	writeJSON(w, http.StatusOK, EventView{Event: ev, Projection: ev.Project()})
}

// PositionView is a position with its evaluation record once closed
type PositionView struct {
	*position.Position
	Metrics *position.Metrics `json:"metrics,omitempty"`
}

func (h *Handler) getPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "event_id")
	if !ok {
		return
	}

	pos, found := h.Positions.Get(id)
	if !found && h.PositionStore != nil {
		stored, err := h.PositionStore.GetByEventID(r.Context(), id)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			h.log.Errorw("Position lookup failed", "event_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "position lookup failed")
			return
		}
		pos, found = stored, err == nil
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "no position for event")
		return
	}

	view := PositionView{Position: pos}
	if m, err := pos.Metrics(); err == nil {
		view.Metrics = &m
	}
	writeJSON(w, http.StatusOK, view)
}

// ModeBody is the body of the confirmation mode endpoints
type ModeBody struct {
	Mode string `json:"mode"`
}

func (h *Handler) getMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ModeBody{Mode: h.Modes.Get().String()})
}

func (h *Handler) setMode(w http.ResponseWriter, r *http.Request) {
	var body ModeBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "expected {\"mode\": \"AUTO\"|\"MANUAL\"}")
		return
	}
	mode, err := confirmation.ParseMode(body.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	prev := h.Modes.Get()
	h.Modes.Set(mode)
	h.log.Infow("Confirmation mode changed", "from", prev, "to", mode, "remote", clientAddr(r))
	writeJSON(w, http.StatusOK, ModeBody{Mode: mode.String()})
}

// ConfirmBody is the optional body of the confirmation endpoint
type ConfirmBody struct {
	Action string `json:"action"` // confirm (default) or ignore
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "event_id")
	if !ok {
		return
	}

	var body ConfirmBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&body); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
			return
		}
	}

	var err error
	switch body.Action {
	case "", "confirm":
		err = h.Confirmations.Confirm(id)
	case "ignore":
		err = h.Confirmations.Ignore(id)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "action must be confirm or ignore")
		return
	}

	if errors.Is(err, errors.ErrNoPendingConfirmation) {
		writeError(w, http.StatusNotFound, "not_pending", "no confirmation pending for event")
		return
	}
	if err != nil {
		h.log.Errorw("Confirmation failed", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "confirmation failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PriceBody is the body of the manual price endpoint
type PriceBody struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

func (h *Handler) pushPrice(w http.ResponseWriter, r *http.Request) {
	var body PriceBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "expected {\"symbol\": \"BTCUSDT\", \"price\": \"42000.5\"}")
		return
	}
	if body.Symbol == "" || !body.Price.IsPositive() {
		writeError(w, http.StatusBadRequest, "bad_request", "symbol and a positive price are required")
		return
	}
	h.Prices.SetPrice(body.Symbol, body.Price)
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

