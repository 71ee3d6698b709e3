package ledger

import (
	"context"
)

// Values written to the ledger for one pull request
type PullRequestEntry struct {
	ID          int64
	ProjectName string
	Developer   string
	Timestamp   string
	Status      string
}

type CommitEntry struct {
	Hash        string
	ProjectName string
	Author      string
	Timestamp   string
}

// Append-only provenance log. LogPullRequest and LogCommit block until the transaction
// is mined and fail with an errors.InsufficientFunds error when the account cannot pay.
type Ledger interface {
	IsPullRequestLogged(ctx context.Context, id int64) (bool, error)
	FindPullRequestLog(ctx context.Context, id int64) (txHash string, found bool, err error)
	TransactionExists(ctx context.Context, txHash string) (bool, error)
	LogPullRequest(ctx context.Context, entry *PullRequestEntry) (txHash string, err error)
	LogCommit(ctx context.Context, entry *CommitEntry) (txHash string, err error)
}
