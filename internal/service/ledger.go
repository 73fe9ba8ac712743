package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"job-escrow-service/internal/entity"
	"job-escrow-service/internal/escrow"
	"job-escrow-service/internal/metrics"
)

// LedgerStore persists the combined ledger+escrow effect of one mutating
// operation atomically (implementation: postgresql.LedgerRepository).
type LedgerStore interface {
	SaveDeposit(ctx context.Context, actor entity.Actor, amount uint64) error
	SavePosted(ctx context.Context, job entity.Job, evt entity.Event) error
	SaveTaken(ctx context.Context, job entity.Job, evt entity.Event) error
	SaveCompleted(ctx context.Context, job entity.Job, evt entity.Event) error
}

// EventSink receives every event after it is appended to the feed
// (implementation: RedisEventQueue).
type EventSink interface {
	Publish(ctx context.Context, evt entity.Event) error
}

type LedgerOption func(*Ledger)

func WithStore(store LedgerStore) LedgerOption {
	return func(l *Ledger) { l.store = store }
}

func WithRelay(sink EventSink) LedgerOption {
	return func(l *Ledger) { l.relay = sink }
}

// WithMinBudget sets the smallest budget a job may be posted with. Values
// below 1 are raised to 1 so zero-value jobs are always rejected.
func WithMinBudget(minimum uint64) LedgerOption {
	return func(l *Ledger) {
		if minimum < 1 {
			minimum = 1
		}
		l.minBudget = minimum
	}
}

// WithIDBase sets the identifier of the first job.
func WithIDBase(base entity.JobID) LedgerOption {
	return func(l *Ledger) { l.idBase = base }
}

func WithLogger(logger *zap.Logger) LedgerOption {
	return func(l *Ledger) { l.log = logger }
}

func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

type jobRecord struct {
	// mu serializes mutating operations on one job.
	mu  sync.Mutex
	job entity.Job
}

// Ledger is the source of truth for jobs. Every mutation is checked,
// persisted, then applied to the job record and the custodian together.
//
// Lock order: allocMu, jobRecord.mu, view, then jobsMu or the custodian.
// Effects are applied under view.RLock so that reads spanning several jobs
// or actors (BalanceOf, Audit) take view.Lock and never see a half-applied
// operation.
type Ledger struct {
	custodian *escrow.Custodian
	store     LedgerStore
	relay     EventSink
	feed      *Feed
	log       *zap.Logger
	now       func() time.Time
	minBudget uint64
	idBase    entity.JobID

	allocMu sync.Mutex
	view    sync.RWMutex

	jobsMu sync.RWMutex
	jobs   []*jobRecord
}

func NewLedger(custodian *escrow.Custodian, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		custodian: custodian,
		feed:      NewFeed(),
		log:       zap.L(),
		now:       func() time.Time { return time.Now().UTC() },
		minBudget: 1,
	}
	for _, o := range opts {
		o(l)
	}
	l.log = l.log.Named("ledger")
	return l
}

func (l *Ledger) Feed() *Feed {
	return l.feed
}

func (l *Ledger) MinBudget() uint64 {
	return l.minBudget
}

// Restore loads a persisted snapshot into an empty ledger and audits it.
func (l *Ledger) Restore(snap entity.Snapshot) error {
	jobs := make([]entity.Job, len(snap.Jobs))
	copy(jobs, snap.Jobs)
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })

	records := make([]*jobRecord, 0, len(jobs))
	for i, j := range jobs {
		if j.ID != l.idBase+entity.JobID(i) {
			return errors.Errorf("restore: job ids are not dense: expected %d, got %d", l.idBase+entity.JobID(i), j.ID)
		}
		records = append(records, &jobRecord{job: j})
	}

	l.allocMu.Lock()
	defer l.allocMu.Unlock()
	l.view.Lock()

	l.jobsMu.Lock()
	if len(l.jobs) > 0 {
		l.jobsMu.Unlock()
		l.view.Unlock()
		return errors.New("restore: ledger is not empty")
	}
	l.jobs = records
	l.jobsMu.Unlock()

	err := l.custodian.Restore(snap.Balances, snap.Escrow)
	l.view.Unlock()
	if err != nil {
		return errors.Wrap(err, "restore custodian")
	}
	l.feed.Restore(snap.Events)

	report, err := l.Audit()
	if err != nil {
		return errors.Wrap(err, "restore audit")
	}
	for status, n := range map[entity.JobStatus]int{
		entity.StatusOpen:       report.Stats.Open,
		entity.StatusInProgress: report.Stats.InProgress,
		entity.StatusCompleted:  report.Stats.Completed,
	} {
		metrics.SetJobs(status.String(), n)
	}
	metrics.SetEscrowed(report.Totals.Escrowed)

	l.log.Info("ledger restored",
		zap.Int("jobs", report.Stats.Total),
		zap.Uint64("escrowed", report.Totals.Escrowed),
		zap.Uint64("supply", report.Totals.Supply),
	)
	return nil
}

// Deposit credits actor's free balance with externally supplied funds.
func (l *Ledger) Deposit(ctx context.Context, actor entity.Actor, amount uint64) (err error) {
	defer func() { observe("deposit", err) }()

	// Holds only happen under allocMu, so a passed check stays valid.
	l.allocMu.Lock()
	defer l.allocMu.Unlock()

	if err := l.custodian.CheckDeposit(actor, amount); err != nil {
		return err
	}
	if l.store != nil {
		if err := l.store.SaveDeposit(ctx, actor, amount); err != nil {
			return errors.Wrap(err, "deposit: persist")
		}
	}

	l.view.RLock()
	defer l.view.RUnlock()
	if err := l.custodian.Deposit(actor, amount); err != nil {
		return l.diverged("deposit", 0, err)
	}
	return nil
}

// Post creates an Open job and moves budget from the client's free balance
// into escrow for it.
func (l *Ledger) Post(ctx context.Context, client entity.Actor, description string, budget uint64) (id entity.JobID, err error) {
	defer func() { observe("post", err) }()

	if client.IsNone() {
		return 0, errors.Wrap(entity.ErrInvalidInput, "client is required")
	}
	if strings.TrimSpace(description) == "" {
		return 0, errors.Wrap(entity.ErrInvalidInput, "description is required")
	}
	if budget < l.minBudget {
		return 0, errors.Wrapf(entity.ErrInvalidInput, "budget %d is below minimum %d", budget, l.minBudget)
	}

	l.allocMu.Lock()
	defer l.allocMu.Unlock()

	id = l.nextID()
	if err := l.custodian.CheckHold(client, id, budget); err != nil {
		if errors.Is(err, entity.ErrEscrowMismatch) {
			return 0, l.escrowMismatch("post", id, err)
		}
		return 0, err
	}

	now := l.now()
	job := entity.Job{
		ID:          id,
		Client:      client,
		Freelancer:  entity.NoActor,
		Description: description,
		Budget:      budget,
		Status:      entity.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	evt := entity.NewJobPosted(job)

	if l.store != nil {
		if err := l.store.SavePosted(ctx, job, evt); err != nil {
			return 0, errors.Wrap(err, "post: persist")
		}
	}

	// The record is locked before it becomes visible so JobPosted is emitted
	// ahead of any event for a concurrent accept on the same job.
	rec := &jobRecord{job: job}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	l.view.RLock()
	if err := l.custodian.Hold(client, id, budget); err != nil {
		l.view.RUnlock()
		return 0, l.diverged("post", id, err)
	}
	l.jobsMu.Lock()
	l.jobs = append(l.jobs, rec)
	l.jobsMu.Unlock()
	l.view.RUnlock()

	metrics.MoveJob("", entity.StatusOpen.String())
	metrics.AddEscrowed(budget)
	l.emit(ctx, evt)

	l.log.Debug("job posted",
		zap.Uint64("job_id", uint64(id)),
		zap.String("client", string(client)),
		zap.Uint64("budget", budget),
	)
	return id, nil
}

// Accept binds freelancer to an Open job and moves it to InProgress.
// A client may not accept its own job.
func (l *Ledger) Accept(ctx context.Context, id entity.JobID, freelancer entity.Actor) (err error) {
	defer func() { observe("accept", err) }()

	rec, err := l.record(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	job := rec.job
	if job.Status != entity.StatusOpen {
		return errors.Wrapf(entity.ErrInvalidTransition, "job %d is %s, not %s", id, job.Status, entity.StatusOpen)
	}
	if freelancer.IsNone() {
		return errors.Wrap(entity.ErrInvalidInput, "freelancer is required")
	}
	if freelancer == job.Client {
		return errors.Wrapf(entity.ErrUnauthorized, "client %s cannot accept own job %d", freelancer, id)
	}

	next := job
	next.Freelancer = freelancer
	next.Status = entity.StatusInProgress
	next.UpdatedAt = l.now()
	evt := entity.NewJobTaken(next)

	if l.store != nil {
		if err := l.store.SaveTaken(ctx, next, evt); err != nil {
			return errors.Wrap(err, "accept: persist")
		}
	}

	l.view.RLock()
	rec.job = next
	l.view.RUnlock()

	metrics.MoveJob(entity.StatusOpen.String(), entity.StatusInProgress.String())
	l.emit(ctx, evt)

	l.log.Debug("job taken",
		zap.Uint64("job_id", uint64(id)),
		zap.String("freelancer", string(freelancer)),
	)
	return nil
}

// Release pays the escrowed budget to the freelancer and completes the job.
// Only the job's client may release.
func (l *Ledger) Release(ctx context.Context, id entity.JobID, caller entity.Actor) (err error) {
	defer func() { observe("release", err) }()

	rec, err := l.record(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	job := rec.job
	if job.Status != entity.StatusInProgress {
		return errors.Wrapf(entity.ErrInvalidTransition, "job %d is %s, not %s", id, job.Status, entity.StatusInProgress)
	}
	if caller != job.Client {
		return errors.Wrapf(entity.ErrUnauthorized, "only client %s may release job %d", job.Client, id)
	}
	if err := l.custodian.CheckRelease(id, job.Freelancer, job.Budget); err != nil {
		return l.escrowMismatch("release", id, err)
	}

	next := job
	next.Status = entity.StatusCompleted
	next.UpdatedAt = l.now()
	evt := entity.NewJobCompleted(next)

	if l.store != nil {
		if err := l.store.SaveCompleted(ctx, next, evt); err != nil {
			return errors.Wrap(err, "release: persist")
		}
	}

	l.view.RLock()
	if err := l.custodian.Release(id, job.Freelancer, job.Budget); err != nil {
		l.view.RUnlock()
		return l.diverged("release", id, err)
	}
	rec.job = next
	l.view.RUnlock()

	metrics.MoveJob(entity.StatusInProgress.String(), entity.StatusCompleted.String())
	metrics.SubEscrowed(job.Budget)
	l.emit(ctx, evt)

	l.log.Debug("job completed",
		zap.Uint64("job_id", uint64(id)),
		zap.String("freelancer", string(job.Freelancer)),
		zap.Uint64("paid", job.Budget),
	)
	return nil
}

// Get, List, EscrowedFor and JobEscrow read under view.Lock rather than the
// per-job locks, which mutating operations hold across their store write.
func (l *Ledger) Get(id entity.JobID) (entity.Job, error) {
	l.view.Lock()
	defer l.view.Unlock()

	rec, err := l.record(id)
	if err != nil {
		return entity.Job{}, err
	}
	return rec.job, nil
}

// List returns a copy of every job ordered by ascending id.
func (l *Ledger) List() []entity.Job {
	l.view.Lock()
	defer l.view.Unlock()

	l.jobsMu.RLock()
	defer l.jobsMu.RUnlock()

	out := make([]entity.Job, len(l.jobs))
	for i, rec := range l.jobs {
		out[i] = rec.job
	}
	return out
}

// Count is the number of jobs ever posted.
func (l *Ledger) Count() int {
	l.jobsMu.RLock()
	defer l.jobsMu.RUnlock()
	return len(l.jobs)
}

func (l *Ledger) BalanceOf(actor entity.Actor) uint64 {
	l.view.Lock()
	defer l.view.Unlock()
	return l.custodian.BalanceOf(actor)
}

// EscrowedFor returns the amount held for a job, zero once it is completed.
func (l *Ledger) EscrowedFor(id entity.JobID) (uint64, error) {
	_, amount, err := l.JobEscrow(id)
	return amount, err
}

// JobEscrow returns a job together with the amount held for it, read as one
// consistent view.
func (l *Ledger) JobEscrow(id entity.JobID) (entity.Job, uint64, error) {
	l.view.Lock()
	defer l.view.Unlock()

	rec, err := l.record(id)
	if err != nil {
		return entity.Job{}, 0, err
	}
	return rec.job, l.custodian.EscrowedFor(id), nil
}

type Stats struct {
	Total      int `json:"total"`
	Open       int `json:"open"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

func (l *Ledger) Stats() Stats {
	return statsOf(l.List())
}

func statsOf(jobs []entity.Job) Stats {
	s := Stats{Total: len(jobs)}
	for _, j := range jobs {
		switch j.Status {
		case entity.StatusOpen:
			s.Open++
		case entity.StatusInProgress:
			s.InProgress++
		case entity.StatusCompleted:
			s.Completed++
		}
	}
	return s
}

type AuditReport struct {
	Stats  Stats         `json:"stats"`
	Totals escrow.Totals `json:"totals"`
}

// Audit checks, on a consistent view, that value is conserved and that each
// job's escrow matches its status: budget while open or in progress, nothing
// once completed.
func (l *Ledger) Audit() (AuditReport, error) {
	l.view.Lock()
	defer l.view.Unlock()

	// Job records only change under view.RLock, so they can be read here
	// without their own locks.
	l.jobsMu.RLock()
	jobs := make([]entity.Job, len(l.jobs))
	for i, rec := range l.jobs {
		jobs[i] = rec.job
	}
	l.jobsMu.RUnlock()

	held := l.custodian.Held()
	report := AuditReport{Stats: statsOf(jobs), Totals: l.custodian.Totals()}

	fail := func(id entity.JobID, err error) (AuditReport, error) {
		return report, l.escrowMismatch("audit", id, err)
	}

	if err := l.custodian.Audit(); err != nil {
		return fail(0, err)
	}
	for _, j := range jobs {
		if err := j.CheckConsistency(); err != nil {
			return fail(j.ID, errors.Wrap(entity.ErrEscrowMismatch, err.Error()))
		}
		amount, ok := held[j.ID]
		switch {
		case j.Status == entity.StatusCompleted && ok:
			return fail(j.ID, errors.Wrapf(entity.ErrEscrowMismatch, "completed job %d still holds %d", j.ID, amount))
		case j.Status != entity.StatusCompleted && (!ok || amount != j.Budget):
			return fail(j.ID, errors.Wrapf(entity.ErrEscrowMismatch, "job %d holds %d, budget is %d", j.ID, amount, j.Budget))
		}
		delete(held, j.ID)
	}
	if len(held) > 0 {
		orphans := make([]entity.JobID, 0, len(held))
		for id := range held {
			orphans = append(orphans, id)
		}
		sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })
		return fail(orphans[0], errors.Wrapf(entity.ErrEscrowMismatch, "escrow held for unknown jobs %v", orphans))
	}
	return report, nil
}

func (l *Ledger) nextID() entity.JobID {
	l.jobsMu.RLock()
	defer l.jobsMu.RUnlock()
	return l.idBase + entity.JobID(len(l.jobs))
}

func (l *Ledger) record(id entity.JobID) (*jobRecord, error) {
	l.jobsMu.RLock()
	defer l.jobsMu.RUnlock()

	if id < l.idBase || uint64(id-l.idBase) >= uint64(len(l.jobs)) {
		return nil, errors.Wrapf(entity.ErrJobNotFound, "job %d", id)
	}
	return l.jobs[id-l.idBase], nil
}

func (l *Ledger) emit(ctx context.Context, evt entity.Event) {
	evt = l.feed.Append(evt)
	if l.relay == nil {
		return
	}
	// The transition already happened; a cancelled caller must not stop delivery.
	if err := l.relay.Publish(context.WithoutCancel(ctx), evt); err != nil {
		l.log.Warn("relay publish failed",
			zap.String("event_id", evt.ID.String()),
			zap.String("kind", string(evt.Kind)),
			zap.Uint64("job_id", uint64(evt.JobID)),
			zap.Error(err),
		)
	}
}

func (l *Ledger) escrowMismatch(op string, id entity.JobID, err error) error {
	l.log.Error("escrow mismatch, operation refused",
		zap.String("op", op),
		zap.Uint64("job_id", uint64(id)),
		zap.Error(err),
	)
	return err
}

// diverged reports a failure to apply an effect that was already persisted.
func (l *Ledger) diverged(op string, id entity.JobID, err error) error {
	l.log.Error("in-memory state diverged from persisted state",
		zap.String("op", op),
		zap.Uint64("job_id", uint64(id)),
		zap.Error(err),
	)
	return errors.Wrapf(entity.ErrEscrowMismatch, "%s: %v", op, err)
}

func observe(op string, err error) {
	metrics.ObserveOperation(op, ErrorClass(err))
}

// ErrorClass names the taxonomy member err belongs to, "ok" for nil.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, entity.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, entity.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, entity.ErrJobNotFound):
		return "job_not_found"
	case errors.Is(err, entity.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, entity.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, entity.ErrEscrowMismatch):
		return "escrow_mismatch"
	default:
		return "internal"
	}
}
