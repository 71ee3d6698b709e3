package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/chainaudit/chainaudit/pkg/retry"
	"github.com/google/uuid"
)

type State string

const (
	StateLogged   State = "logged"
	StateFailed   State = "failed"
	StateNotFound State = "not found"
)

// txHash placeholders surfaced on pull request records
const (
	TxNotApplicable = "N/A"
	TxFailed        = "Failed"
	TxNotFound      = "Not Found"
)

const (
	DefaultAttempts = 3
	DefaultPause    = time.Second
)

type Outcome struct {
	State  State
	TxHash string
}

// Reconciler mirrors pull requests to the ledger at most once per run.
// Create one per listing or ingestion pass.
type Reconciler struct {
	ledger   Ledger
	policy   *retry.Policy
	verifyTx bool
	runID    string
	seen     map[int64]*Outcome
	mutex    sync.Mutex
	log      logg.Logg
}

func NewReconciler(ledger Ledger, policy *retry.Policy, verifyTx bool, log logg.Logg) *Reconciler {
	if policy == nil {
		policy = retry.NewPolicy(DefaultAttempts, retry.Constant(DefaultPause))
	}
	runID := uuid.New().String()
	return &Reconciler{
		ledger:   ledger,
		policy:   policy,
		verifyTx: verifyTx,
		runID:    runID,
		seen:     map[int64]*Outcome{},
		log:      log.WithField("run", runID),
	}
}

func (r *Reconciler) RunID() string {
	return r.runID
}

// Returns an errors.InsufficientFunds error when the ledger account cannot pay, the caller
// must stop the batch. Every other failure ends in a Failed or NotFound outcome.
func (r *Reconciler) Reconcile(ctx context.Context, entry *PullRequestEntry) (result *Outcome, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if seen, ok := r.seen[entry.ID]; ok {
		return seen, nil
	}

	log := r.log.WithField("pr", entry.ID).WithField("project", entry.ProjectName)

	if result, err = r.reconcile(ctx, entry, log); err != nil {
		return
	}
	r.seen[entry.ID] = result
	log.WithField("state", result.State).WithField("tx", result.TxHash).Debug("reconciled")

	return
}

func (r *Reconciler) reconcile(ctx context.Context, entry *PullRequestEntry, log logg.Logg) (result *Outcome, err error) {
	logged, err := r.ledger.IsPullRequestLogged(ctx, entry.ID)
	if err != nil {
		errors.ErrLog(log, err).Warn("unable to query ledger, not submitting")
		return failed(), nil
	}

	if logged {
		return r.lookup(ctx, entry, log), nil
	}

	return r.submit(ctx, entry, log)
}

func (r *Reconciler) lookup(ctx context.Context, entry *PullRequestEntry, log logg.Logg) *Outcome {
	txHash, found, err := r.ledger.FindPullRequestLog(ctx, entry.ID)
	if err != nil {
		errors.ErrLog(log, err).Warn("unable to look up ledger event")
		return failed()
	}
	if !found {
		log.Warn("logged on ledger but no event found")
		return notFound()
	}

	if r.verifyTx {
		exists, err := r.ledger.TransactionExists(ctx, txHash)
		if err != nil {
			errors.ErrLog(log, err).Warn("unable to verify ledger transaction")
			return notFound()
		}
		if !exists {
			log.WithField("tx", txHash).Warn("ledger transaction no longer retrievable")
			return notFound()
		}
	}

	return &Outcome{State: StateLogged, TxHash: txHash}
}

func (r *Reconciler) submit(ctx context.Context, entry *PullRequestEntry, log logg.Logg) (result *Outcome, err error) {
	var txHash string
	err = r.policy.Do(ctx, func(attempt int) (err error) {
		if txHash, err = r.ledger.LogPullRequest(ctx, entry); err != nil {
			if errors.Is(err, errors.InsufficientFunds) {
				return retry.Stop(err)
			}
			log.WithError(err).WithField("attempt", attempt).Warn("ledger submission failed")
		}
		return
	})

	if err != nil {
		if errors.Is(err, errors.InsufficientFunds) {
			return nil, err
		}
		errors.ErrLog(log, err).Error("giving up on ledger submission")
		return failed(), nil
	}

	log.WithField("tx", txHash).Info("pull request logged on ledger")

	return &Outcome{State: StateLogged, TxHash: txHash}, nil
}

func failed() *Outcome {
	return &Outcome{State: StateFailed, TxHash: TxFailed}
}

func notFound() *Outcome {
	return &Outcome{State: StateNotFound, TxHash: TxNotFound}
}
