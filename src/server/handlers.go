package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"botmanager/src/controller"
	"botmanager/src/executors"
	"botmanager/src/model"
	"botmanager/src/repository"
)

// Scheduler is what the operator endpoints need from the orchestrator.
type Scheduler interface {
	Start(ctx context.Context)
	Stop()
	IsRunning() bool
	CycleNames() []string
	RunOnce(ctx context.Context, name string) (*executors.CycleReport, error)
}

// SignalDecider approves or rejects pending signals.
type SignalDecider interface {
	ApproveSignal(ctx context.Context, signalID uint) (*model.Signal, error)
	RejectSignal(ctx context.Context, signalID uint) (*model.Signal, error)
}

// Handler wires the operator API onto the scheduler and the stores.
type Handler struct {
	scheduler Scheduler
	decider   SignalDecider
	positions *repository.PositionRepository
	orders    *repository.OrderRepository
	signals   *repository.SignalRepository
}

func NewHandler(
	scheduler Scheduler,
	decider SignalDecider,
	positions *repository.PositionRepository,
	orders *repository.OrderRepository,
	signals *repository.SignalRepository,
) *Handler {
	return &Handler{
		scheduler: scheduler,
		decider:   decider,
		positions: positions,
		orders:    orders,
		signals:   signals,
	}
}

// Routes mounts every operator endpoint on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/scheduler/start", h.startScheduler)
	r.Post("/scheduler/stop", h.stopScheduler)
	r.Get("/scheduler/status", h.schedulerStatus)
	r.Post("/scheduler/run/{cycle}", h.runCycle)

	r.Get("/stats", h.stats)

	r.Post("/signals/{id}/approve", h.approveSignal)
	r.Post("/signals/{id}/reject", h.rejectSignal)
}

func (h *Handler) startScheduler(w http.ResponseWriter, r *http.Request) {
	if h.scheduler.IsRunning() {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"running": true,
			"message": "scheduler already running",
		})
		return
	}

	// The scheduler outlives this request.
	h.scheduler.Start(context.Background())

	writeJSON(w, http.StatusOK, map[string]interface{}{"running": true})
}

func (h *Handler) stopScheduler(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	writeJSON(w, http.StatusOK, map[string]interface{}{"running": false})
}

func (h *Handler) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.scheduler.IsRunning(),
		"cycles":  h.scheduler.CycleNames(),
	})
}

func (h *Handler) runCycle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "cycle")

	report, err := h.scheduler.RunOnce(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	ok, skipped, failed := report.Counts()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cycle":   report.Cycle,
		"ok":      ok,
		"skipped": skipped,
		"failed":  failed,
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	openPositions, err := h.positions.CountAllOpen(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	activeOrders, err := h.orders.CountByStatus(ctx,
		model.OrderStatusPlaced, model.OrderStatusPartial)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	pendingSignals, err := h.signals.CountPending(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scheduler_running": h.scheduler.IsRunning(),
		"open_positions":    openPositions,
		"active_orders":     activeOrders,
		"pending_signals":   pendingSignals,
	})
}

func (h *Handler) approveSignal(w http.ResponseWriter, r *http.Request) {
	h.decideSignal(w, r, h.decider.ApproveSignal)
}

func (h *Handler) rejectSignal(w http.ResponseWriter, r *http.Request) {
	h.decideSignal(w, r, h.decider.RejectSignal)
}

func (h *Handler) decideSignal(
	w http.ResponseWriter,
	r *http.Request,
	decide func(ctx context.Context, signalID uint) (*model.Signal, error),
) {

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid signal id"))
		return
	}

	signal, err := decide(r.Context(), uint(id))
	if err != nil {
		switch {
		case errors.Is(err, controller.ErrSignalNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, controller.ErrInvalidState):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, signal)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
