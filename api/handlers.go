/*
handlers.go - HTTP API handlers for the payout engine

PURPOSE:
  Exposes reconciliation runs and the payout ledger over REST. Handles
  HTTP request/response and JSON serialization, and delegates everything
  else to the engine. The engine itself stays transport-free.

ENDPOINTS:
  Runs:
    POST   /api/runs          Reconcile one explicit date
    GET    /api/runs          Run history, newest first
    GET    /api/runs/{id}     One run

  Ledger:
    GET    /api/ledger        Payout records in sequence order

REQUEST FLOW (POST /api/runs):
  1. Parse and validate the date
  2. Load the rate directory fresh (fatal errors -> 422, nothing paid)
  3. Fetch the day's timesheets from the provider
  4. Drive the reconciliation run
  5. Persist run history and return the report

ERROR HANDLING:
  - 400: Malformed request
  - 404: Unknown run
  - 422: Malformed rate source (the run was aborted before any payment)
  - 502: Provider fetch failure
  - 500: Everything else

SEE ALSO:
  - server.go: Router setup and middleware
  - engine/reconcile.go: The driver this package fronts
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/payout-engine/engine"
	"github.com/warp/payout-engine/rates"
	"github.com/warp/payout-engine/store/sqlite"
	"github.com/warp/payout-engine/timesheet"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Timesheets  timesheet.Client
	Executor    engine.Executor
	RatesPath   string
	Eligibility engine.EligibilityPolicy
	Location    *time.Location
}

// NewHandler creates a handler with the given collaborators.
func NewHandler(store *sqlite.Store, ts timesheet.Client, exec engine.Executor, ratesPath string, eligibility engine.EligibilityPolicy) *Handler {
	return &Handler{
		Store:       store,
		Timesheets:  ts,
		Executor:    exec,
		RatesPath:   ratesPath,
		Eligibility: eligibility,
		Location:    time.Local,
	}
}

// =============================================================================
// RUNS
// =============================================================================

type triggerRunRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
}

type triggerRunResponse struct {
	RunID  string         `json:"run_id"`
	Date   string         `json:"date"`
	Report *engine.Report `json:"report"`
}

// TriggerRun reconciles one explicit calendar day.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req triggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	day, err := time.ParseInLocation("2006-01-02", req.Date, h.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	ctx := r.Context()

	// Rates are load-bearing: a malformed source aborts before any
	// payment is attempted.
	directory, err := rates.LoadFile(h.RatesPath)
	if err != nil {
		if errors.Is(err, engine.ErrMalformedRateSource) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	start, end := timesheet.DayWindow(day, h.Location)
	entries, err := h.Timesheets.ListTimesheets(ctx, start, end)
	if err != nil {
		writeError(w, http.StatusBadGateway, "timesheet fetch: "+err.Error())
		return
	}

	runID := uuid.NewString()
	if err := h.Store.BeginRun(ctx, runID, req.Date); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reconciler := engine.NewReconciler(h.Executor, h.Store, h.Eligibility)
	report, runErr := reconciler.Run(ctx, directory, entries)

	if err := h.Store.FinishRun(ctx, runID, report, runErr); err != nil {
		log.Printf("[api] WARNING: failed to persist run %s: %v", runID, err)
	}

	writeJSON(w, http.StatusOK, triggerRunResponse{
		RunID:  runID,
		Date:   req.Date,
		Report: report,
	})
}

// ListRuns returns run history, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []sqlite.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one run by ID.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// =============================================================================
// LEDGER
// =============================================================================

type ledgerRecordDTO struct {
	Sequence   int64  `json:"sequence_id"`
	ReceiverID string `json:"receiver_id"`
	Hours      string `json:"hours"`
	Amount     string `json:"amount"`
	WorkerID   string `json:"worker_id,omitempty"`
	PaidAt     string `json:"paid_at"`
}

// ListLedger returns payout records in sequence order.
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListPayouts(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dtos := make([]ledgerRecordDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, ledgerRecordDTO{
			Sequence:   rec.Sequence,
			ReceiverID: string(rec.ReceiverID),
			Hours:      rec.Hours.String(),
			Amount:     rec.Amount.String(),
			WorkerID:   string(rec.WorkerID),
			PaidAt:     rec.PaidAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
