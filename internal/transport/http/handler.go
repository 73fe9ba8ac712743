package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"job-escrow-service/internal/entity"
	"job-escrow-service/internal/escrow"
	"job-escrow-service/internal/service"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
	maxEventsWait      = 30 * time.Second
)

type Handler struct {
	ledger   *service.Ledger
	validate *validator.Validate
}

func NewHandler(ledger *service.Ledger) *Handler {
	return &Handler{
		ledger:   ledger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type postJobDTO struct {
	Client      string `json:"client" validate:"required,max=256"`
	Description string `json:"description" validate:"max=10000"`
	Budget      uint64 `json:"budget"` // smallest currency unit
}

type postJobResp struct {
	ID entity.JobID `json:"id"`
}

type acceptJobDTO struct {
	Freelancer string `json:"freelancer" validate:"required,max=256"`
}

type releaseJobDTO struct {
	Caller string `json:"caller" validate:"required,max=256"`
}

type depositDTO struct {
	Amount uint64 `json:"amount" validate:"gt=0"`
}

type balanceResp struct {
	Actor   entity.Actor `json:"actor"`
	Balance uint64       `json:"balance"`
}

type escrowResp struct {
	JobID    entity.JobID     `json:"job_id"`
	Status   entity.JobStatus `json:"status"`
	Escrowed uint64           `json:"escrowed"`
}

type listJobsResp struct {
	Jobs  []entity.Job `json:"jobs"`
	Count int          `json:"count"`
}

type eventsResp struct {
	Events []entity.Event `json:"events"`
	Last   uint64         `json:"last"`
}

type auditResp struct {
	OK     bool          `json:"ok"`
	Stats  service.Stats `json:"stats"`
	Totals escrow.Totals `json:"totals"`
	Error  string        `json:"error,omitempty"`
}

// PostJob godoc
// @Summary Post a new job
// @Description Creates an open job and moves its budget from the client's free balance into escrow.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body postJobDTO true "job payload (budget in smallest currency unit)"
// @Success 201 {object} postJobResp
// @Failure 400 {object} apiError
// @Failure 402 {object} apiError
// @Router /jobs [post]
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) {
	var dto postJobDTO
	if !h.decode(w, r, &dto) {
		return
	}

	id, err := h.ledger.Post(r.Context(), entity.Actor(dto.Client), dto.Description, dto.Budget)
	if err != nil {
		writeLedgerErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, postJobResp{ID: id})
}

// AcceptJob godoc
// @Summary Accept an open job
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path int true "job id"
// @Param request body acceptJobDTO true "freelancer"
// @Success 200 {object} entity.Job
// @Failure 400 {object} apiError
// @Failure 403 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs/{id}/accept [post]
func (h *Handler) AcceptJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	var dto acceptJobDTO
	if !h.decode(w, r, &dto) {
		return
	}

	if err := h.ledger.Accept(r.Context(), id, entity.Actor(dto.Freelancer)); err != nil {
		writeLedgerErr(w, err)
		return
	}
	h.writeJob(w, id)
}

// ReleaseJob godoc
// @Summary Release escrowed payment to the freelancer
// @Description Only the job's client may release. Completes the job.
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path int true "job id"
// @Param request body releaseJobDTO true "caller"
// @Success 200 {object} entity.Job
// @Failure 403 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs/{id}/release [post]
func (h *Handler) ReleaseJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	var dto releaseJobDTO
	if !h.decode(w, r, &dto) {
		return
	}

	if err := h.ledger.Release(r.Context(), id, entity.Actor(dto.Caller)); err != nil {
		writeLedgerErr(w, err)
		return
	}
	h.writeJob(w, id)
}

// GetJob godoc
// @Summary Get job by id
// @Tags jobs
// @Produce json
// @Param id path int true "job id"
// @Success 200 {object} entity.Job
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	h.writeJob(w, id)
}

// ListJobs godoc
// @Summary List all jobs ordered by id
// @Tags jobs
// @Produce json
// @Success 200 {object} listJobsResp
// @Router /jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.ledger.List()
	writeJSON(w, http.StatusOK, listJobsResp{Jobs: jobs, Count: len(jobs)})
}

// JobStats godoc
// @Summary Job counts by status
// @Tags jobs
// @Produce json
// @Success 200 {object} service.Stats
// @Router /jobs/stats [get]
func (h *Handler) JobStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.Stats())
}

// GetEscrow godoc
// @Summary Amount currently held in escrow for a job
// @Tags jobs
// @Produce json
// @Param id path int true "job id"
// @Success 200 {object} escrowResp
// @Failure 404 {object} apiError
// @Router /jobs/{id}/escrow [get]
func (h *Handler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	job, amount, err := h.ledger.JobEscrow(id)
	if err != nil {
		writeLedgerErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, escrowResp{JobID: id, Status: job.Status, Escrowed: amount})
}

// Deposit godoc
// @Summary Fund an actor's free balance
// @Tags accounts
// @Accept json
// @Produce json
// @Param actor path string true "actor address"
// @Param request body depositDTO true "amount in smallest currency unit"
// @Success 200 {object} balanceResp
// @Failure 400 {object} apiError
// @Router /accounts/{actor}/deposits [post]
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor := entity.Actor(chi.URLParam(r, "actor"))
	var dto depositDTO
	if !h.decode(w, r, &dto) {
		return
	}

	if err := h.ledger.Deposit(r.Context(), actor, dto.Amount); err != nil {
		writeLedgerErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResp{Actor: actor, Balance: h.ledger.BalanceOf(actor)})
}

// GetBalance godoc
// @Summary Free balance of an actor
// @Tags accounts
// @Produce json
// @Param actor path string true "actor address"
// @Success 200 {object} balanceResp
// @Router /accounts/{actor}/balance [get]
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor := entity.Actor(chi.URLParam(r, "actor"))
	writeJSON(w, http.StatusOK, balanceResp{Actor: actor, Balance: h.ledger.BalanceOf(actor)})
}

// Audit godoc
// @Summary Verify that value is conserved and every escrow matches its job
// @Tags ledger
// @Produce json
// @Success 200 {object} auditResp
// @Failure 500 {object} auditResp
// @Router /audit [get]
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Audit()
	resp := auditResp{OK: err == nil, Stats: report.Stats, Totals: report.Totals}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Events godoc
// @Summary Ledger event feed
// @Description Returns events with seq greater than after. With wait, blocks until an event arrives or the wait elapses.
// @Tags ledger
// @Produce json
// @Param after query int false "last seen seq"
// @Param limit query int false "max events (default 100, max 1000)"
// @Param wait query string false "long-poll duration, e.g. 10s (max 30s)"
// @Success 200 {object} eventsResp
// @Failure 400 {object} apiError
// @Router /events [get]
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid after")
			return
		}
		after = n
	}

	limit := defaultEventsLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxEventsLimit)
	}

	var wait time.Duration
	if v := q.Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeErr(w, http.StatusBadRequest, "invalid wait")
			return
		}
		wait = min(d, maxEventsWait)
	}

	feed := h.ledger.Feed()
	events := feed.Since(after, limit)
	if len(events) == 0 && wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()

		var err error
		events, err = feed.Wait(ctx, after, limit)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			// client went away
			return
		}
	}
	if events == nil {
		events = []entity.Event{}
	}

	last := after
	if n := len(events); n > 0 {
		last = events[n-1].Seq
	}
	writeJSON(w, http.StatusOK, eventsResp{Events: events, Last: last})
}

func (h *Handler) writeJob(w http.ResponseWriter, id entity.JobID) {
	job, err := h.ledger.Get(id)
	if err != nil {
		writeLedgerErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (entity.JobID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return entity.JobID(id), true
}
