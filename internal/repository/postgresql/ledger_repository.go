package postgresql

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"job-escrow-service/internal/entity"
)

// LedgerRepository writes each ledger mutation in a single transaction so the
// job row, balances, escrow and event log never disagree after a crash.
// Amounts are passed as decimal text: NUMERIC(20,0) holds the full uint64 range.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func (r *LedgerRepository) SaveDeposit(ctx context.Context, actor entity.Actor, amount uint64) error {
	const q = `
INSERT INTO balances (actor, free)
VALUES ($1, $2::numeric)
ON CONFLICT (actor) DO UPDATE SET free = balances.free + EXCLUDED.free;
`
	_, err := r.pool.Exec(ctx, q, string(actor), amountText(amount))
	return errors.Wrap(err, "save deposit")
}

func (r *LedgerRepository) SavePosted(ctx context.Context, job entity.Job, evt entity.Event) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const insertJob = `
INSERT INTO jobs (id, client, freelancer, description, budget, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8);
`
		if _, err := tx.Exec(ctx, insertJob,
			int64(job.ID), string(job.Client), string(job.Freelancer), job.Description,
			amountText(job.Budget), int16(job.Status), job.CreatedAt, job.UpdatedAt,
		); err != nil {
			return errors.Wrap(err, "insert job")
		}

		const debit = `UPDATE balances SET free = free - $2::numeric WHERE actor = $1 AND free >= $2::numeric;`
		tag, err := tx.Exec(ctx, debit, string(job.Client), amountText(job.Budget))
		if err != nil {
			return errors.Wrap(err, "debit client")
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(entity.ErrInsufficientFunds, "stored balance of %s", job.Client)
		}

		const hold = `INSERT INTO escrow (job_id, amount) VALUES ($1, $2::numeric);`
		if _, err := tx.Exec(ctx, hold, int64(job.ID), amountText(job.Budget)); err != nil {
			return errors.Wrap(err, "insert escrow")
		}

		return insertEvent(ctx, tx, evt)
	})
}

func (r *LedgerRepository) SaveTaken(ctx context.Context, job entity.Job, evt entity.Event) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `
UPDATE jobs SET freelancer = $2, status = $3, updated_at = $4
WHERE id = $1 AND status = $5;
`
		tag, err := tx.Exec(ctx, q, int64(job.ID), string(job.Freelancer), int16(entity.StatusInProgress),
			job.UpdatedAt, int16(entity.StatusOpen))
		if err != nil {
			return errors.Wrap(err, "update job")
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(entity.ErrInvalidTransition, "stored job %d is not open", job.ID)
		}
		return insertEvent(ctx, tx, evt)
	})
}

func (r *LedgerRepository) SaveCompleted(ctx context.Context, job entity.Job, evt entity.Event) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const complete = `
UPDATE jobs SET status = $2, updated_at = $3
WHERE id = $1 AND status = $4;
`
		tag, err := tx.Exec(ctx, complete, int64(job.ID), int16(entity.StatusCompleted),
			job.UpdatedAt, int16(entity.StatusInProgress))
		if err != nil {
			return errors.Wrap(err, "update job")
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(entity.ErrInvalidTransition, "stored job %d is not in progress", job.ID)
		}

		const unhold = `DELETE FROM escrow WHERE job_id = $1 AND amount = $2::numeric;`
		tag, err = tx.Exec(ctx, unhold, int64(job.ID), amountText(job.Budget))
		if err != nil {
			return errors.Wrap(err, "delete escrow")
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(entity.ErrEscrowMismatch, "stored escrow for job %d", job.ID)
		}

		const credit = `
INSERT INTO balances (actor, free)
VALUES ($1, $2::numeric)
ON CONFLICT (actor) DO UPDATE SET free = balances.free + EXCLUDED.free;
`
		if _, err := tx.Exec(ctx, credit, string(job.Freelancer), amountText(job.Budget)); err != nil {
			return errors.Wrap(err, "credit freelancer")
		}

		return insertEvent(ctx, tx, evt)
	})
}

// Load reads the whole persisted state for Ledger.Restore.
func (r *LedgerRepository) Load(ctx context.Context) (entity.Snapshot, error) {
	snap := entity.Snapshot{
		Balances: map[entity.Actor]uint64{},
		Escrow:   map[entity.JobID]uint64{},
	}

	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		var err error
		if snap.Jobs, err = loadJobs(ctx, tx); err != nil {
			return err
		}
		if err := loadBalances(ctx, tx, snap.Balances); err != nil {
			return err
		}
		if err := loadEscrow(ctx, tx, snap.Escrow); err != nil {
			return err
		}
		snap.Events, err = loadEvents(ctx, tx)
		return err
	})
	if err != nil {
		return entity.Snapshot{}, err
	}
	return snap, nil
}

func loadJobs(ctx context.Context, tx pgx.Tx) ([]entity.Job, error) {
	const q = `
SELECT id, client, freelancer, description, budget::text, status, created_at, updated_at
FROM jobs
ORDER BY id;
`
	rows, err := tx.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "query jobs")
	}
	defer rows.Close()

	var jobs []entity.Job
	for rows.Next() {
		var (
			job        entity.Job
			id         int64
			client     string
			freelancer string
			budget     string
			status     int16
			createdAt  time.Time
			updatedAt  time.Time
		)
		if err := rows.Scan(&id, &client, &freelancer, &job.Description, &budget, &status, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		if job.Budget, err = parseAmount(budget); err != nil {
			return nil, errors.Wrapf(err, "job %d budget", id)
		}
		job.ID = entity.JobID(id)
		job.Client = entity.Actor(client)
		job.Freelancer = entity.Actor(freelancer)
		job.Status = entity.JobStatus(status)
		job.CreatedAt = createdAt.UTC()
		job.UpdatedAt = updatedAt.UTC()
		jobs = append(jobs, job)
	}
	return jobs, errors.Wrap(rows.Err(), "read jobs")
}

func loadBalances(ctx context.Context, tx pgx.Tx, dst map[entity.Actor]uint64) error {
	rows, err := tx.Query(ctx, `SELECT actor, free::text FROM balances;`)
	if err != nil {
		return errors.Wrap(err, "query balances")
	}
	defer rows.Close()

	for rows.Next() {
		var actor, free string
		if err := rows.Scan(&actor, &free); err != nil {
			return errors.Wrap(err, "scan balance")
		}
		v, err := parseAmount(free)
		if err != nil {
			return errors.Wrapf(err, "balance of %s", actor)
		}
		dst[entity.Actor(actor)] = v
	}
	return errors.Wrap(rows.Err(), "read balances")
}

func loadEscrow(ctx context.Context, tx pgx.Tx, dst map[entity.JobID]uint64) error {
	rows, err := tx.Query(ctx, `SELECT job_id, amount::text FROM escrow;`)
	if err != nil {
		return errors.Wrap(err, "query escrow")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			jobID  int64
			amount string
		)
		if err := rows.Scan(&jobID, &amount); err != nil {
			return errors.Wrap(err, "scan escrow")
		}
		v, err := parseAmount(amount)
		if err != nil {
			return errors.Wrapf(err, "escrow of job %d", jobID)
		}
		dst[entity.JobID(jobID)] = v
	}
	return errors.Wrap(rows.Err(), "read escrow")
}

func loadEvents(ctx context.Context, tx pgx.Tx) ([]entity.Event, error) {
	rows, err := tx.Query(ctx, `SELECT payload FROM job_events ORDER BY seq;`)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()

	var events []entity.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		var evt entity.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, errors.Wrap(err, "decode event")
		}
		events = append(events, evt)
	}
	return events, errors.Wrap(rows.Err(), "read events")
}

func insertEvent(ctx context.Context, tx pgx.Tx, evt entity.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	const q = `
INSERT INTO job_events (id, kind, job_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5);
`
	_, err = tx.Exec(ctx, q, evt.ID, string(evt.Kind), int64(evt.JobID), payload, evt.OccurredAt)
	return errors.Wrap(err, "insert event")
}

func amountText(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
