package intake

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/chainaudit/chainaudit/pkg/database"
	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/ledger"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/chainaudit/chainaudit/pkg/manip"
)

const (
	MessagePing    = "Webhook ping received"
	MessageNothing = "Nothing to process"
)

type (
	// Push event delivery. A ping delivery only carries zen.
	PushPayload struct {
		Zen        string        `json:"zen,omitempty"`
		Repository *Repository   `json:"repository,omitempty"`
		Commits    []*PushCommit `json:"commits,omitempty"`
	}
	Repository struct {
		Name     string `json:"name"`
		FullName string `json:"full_name,omitempty"`
	}
	PushCommit struct {
		ID        string      `json:"id"`
		Message   string      `json:"message"`
		Author    *PushAuthor `json:"author,omitempty"`
		Timestamp string      `json:"timestamp"`
		URL       string      `json:"url"`
	}
	PushAuthor struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	// Outcome of one delivery. Processed is false for pings and empty deliveries.
	Receipt struct {
		Processed bool     `json:"-"`
		Stored    []string `json:"stored"`
		Skipped   int      `json:"skipped"`
		Message   string   `json:"message"`
	}

	CommitFilter struct {
		Projects []string
		Author   string
		Email    string
	}
)

// Commit intake from push deliveries, plus explicit ledger mirroring of stored commits
type Intake struct {
	db     *database.Database
	ledger ledger.Ledger
	now    func() time.Time
	log    logg.Logg
}

// chain may be nil when ledger mirroring is disabled
func New(db *database.Database, chain ledger.Ledger, log logg.Logg) *Intake {
	return &Intake{db: db, ledger: chain, now: time.Now, log: log}
}

// Store every commit of a push delivery that is not already known.
// Known ids are reported as stored, the first stored document is kept.
func (i *Intake) Ingest(payload *PushPayload) (result *Receipt, err error) {
	if payload.Zen != "" {
		result = &Receipt{Message: MessagePing}
		return
	}
	if payload.Repository == nil || strings.TrimSpace(payload.Repository.Name) == "" || len(payload.Commits) == 0 {
		result = &Receipt{Message: MessageNothing}
		return
	}

	projectName := payload.Repository.Name
	log := i.log.WithField("project", projectName)
	result = &Receipt{Processed: true, Stored: []string{}}

	for _, pushed := range payload.Commits {
		if pushed == nil || !database.ValidKey(pushed.ID) {
			result.Skipped++
			continue
		}

		now := i.now()
		commit := &database.Commit{
			ID:          pushed.ID,
			ProjectName: projectName,
			Message:     pushed.Message,
			Timestamp:   pushed.Timestamp,
			URL:         pushed.URL,
			CreatedAt:   &now,
		}
		if pushed.Author != nil {
			commit.Author = pushed.Author.Name
			commit.AuthorEmail = pushed.Author.Email
		}

		var created bool
		if created, err = i.db.InsertCommitIfAbsent(commit); err != nil {
			result = nil
			err = errors.WithMessagev(err, "unable to store commit", pushed.ID)
			return
		}
		if !created {
			log.WithField("commit", pushed.ID).Debug("commit already stored")
		}
		result.Stored = append(result.Stored, pushed.ID)
	}

	result.Message = fmt.Sprintf("%d stored, %d skipped", len(result.Stored), result.Skipped)
	log.Info(result.Message)

	return
}

// Log a stored commit on the ledger. A commit already on chain is returned unchanged.
func (i *Intake) Mirror(ctx context.Context, commitID string) (result *database.Commit, err error) {
	if result, err = i.getCommit(commitID); err != nil {
		return
	}
	if result.IsOnBlockchain {
		return
	}
	if i.ledger == nil {
		err = errors.Kindf(errors.BadRequest, "ledger mirroring is not enabled")
		return
	}

	entry := &ledger.CommitEntry{
		Hash:        result.ID,
		ProjectName: result.ProjectName,
		Author:      result.Author,
		Timestamp:   result.Timestamp,
	}

	var txHash string
	if txHash, err = i.ledger.LogCommit(ctx, entry); err != nil {
		err = errors.WithMessagev(err, "unable to log commit on ledger", commitID)
		return
	}
	i.log.WithField("commit", commitID).WithField("tx", txHash).Info("commit logged on ledger")

	return i.markOnChain(commitID, txHash)
}

// Flag a commit with a transaction hash produced outside this service
func (i *Intake) MarkOnChain(commitID, txHash string) (result *database.Commit, err error) {
	if strings.TrimSpace(txHash) == "" {
		err = errors.Kindf(errors.BadRequest, "txHash is required")
		return
	}
	if _, err = i.getCommit(commitID); err != nil {
		return
	}
	return i.markOnChain(commitID, txHash)
}

// Newest first
func (i *Intake) List(filter *CommitFilter) (result []*database.Commit, err error) {
	var emailRegex *regexp.Regexp
	if filter.Email != "" {
		if emailRegex, err = regexp.Compile("(?i)" + regexp.QuoteMeta(filter.Email)); err != nil {
			err = errors.Tag(errors.BadRequest, errors.WithMessage(err, "invalid email filter"))
			return
		}
	}

	projects := manip.NewStringSet(filter.Projects)

	var commits []*database.Commit
	if commits, err = i.db.GetCommits(); err != nil {
		return
	}

	result = []*database.Commit{}
	for _, commit := range commits {
		switch {
		case !projects.IsEmpty() && !projects.Contains(commit.ProjectName):
			continue
		case filter.Author != "" && commit.Author != filter.Author:
			continue
		case emailRegex != nil && !emailRegex.MatchString(commit.AuthorEmail):
			continue
		}
		result = append(result, commit)
	}

	sort.SliceStable(result, func(a, b int) bool {
		return result[a].Timestamp > result[b].Timestamp
	})

	return
}

func (i *Intake) getCommit(commitID string) (result *database.Commit, err error) {
	if result, err = i.db.GetCommit(commitID); err != nil {
		return
	}
	if result == nil {
		err = errors.Kindf(errors.NotFound, "Commit not found")
	}
	return
}

func (i *Intake) markOnChain(commitID, txHash string) (result *database.Commit, err error) {
	if _, err = i.db.MarkCommitOnChain(commitID, txHash, i.now()); err != nil {
		err = errors.WithMessagev(err, "unable to flag commit", commitID)
		return
	}
	return i.db.GetCommit(commitID)
}
