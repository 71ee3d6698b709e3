package pulls

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chainaudit/chainaudit/pkg/database"
	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/ledger"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/chainaudit/chainaudit/pkg/retry"
	"github.com/chainaudit/chainaudit/pkg/scan"
	"github.com/chainaudit/chainaudit/pkg/source"
)

const (
	securityScoreSafe = "Safe"
	approvalBody      = "Approved by auditor"

	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

type (
	FileScanner interface {
		ScanFile(ctx context.Context, name, content string) *scan.Result
	}

	// Ledger mirroring settings, Ledger is nil when mirroring is off
	LedgerSettings struct {
		Ledger   ledger.Ledger
		Policy   *retry.Policy
		VerifyTx bool
	}

	Listing struct {
		PullRequests []*database.PullRequest `json:"pullRequests"`
		Points       *int                    `json:"points,omitempty"`
	}

	Decision struct {
		PullRequestID int    `json:"pullRequestId"`
		Decision      string `json:"decision"`
		ProjectName   string `json:"projectName"`
	}

	// Pull request webhook delivery, reduced to what ingestion needs
	Event struct {
		Action    string
		Number    int
		RepoOwner string
		RepoName  string
	}
)

// Pull request ingestion: fetch changed files, classify, scan, reconcile with the ledger
type Service struct {
	db      *database.Database
	fetcher *source.Fetcher
	scanner FileScanner
	ledger  LedgerSettings
	now     func() time.Time
	log     logg.Logg
}

func NewService(db *database.Database, fetcher *source.Fetcher, scanner FileScanner, ledgerSettings LedgerSettings, log logg.Logg) *Service {
	return &Service{
		db:      db,
		fetcher: fetcher,
		scanner: scanner,
		ledger:  ledgerSettings,
		now:     time.Now,
		log:     log,
	}
}

// Dashboard listing of every pull request in the project's repository.
// Recomputes developer points from the listed history.
func (s *Service) List(ctx context.Context, callerEmail, projectName, statusFilter string) (result *Listing, err error) {
	if err = validateListing(callerEmail, projectName, statusFilter); err != nil {
		return
	}

	var caller *database.User
	var repo *source.Repo
	if caller, repo, err = s.authorize(callerEmail, projectName, false); err != nil {
		return
	}
	log := s.log.WithField("project", projectName).WithField("caller", caller.Email)

	if err = s.fetcher.Verify(ctx, repo); err != nil {
		return
	}

	var prs []*source.PullRequest
	if prs, err = s.fetcher.PullRequests(ctx, repo); err != nil {
		return
	}
	log.Infof("processing %d pull requests", len(prs))

	reconciler := s.newReconciler()
	tally := NewTally()
	result = &Listing{PullRequests: []*database.PullRequest{}}

	for _, pr := range prs {
		var record *database.PullRequest
		if record, err = s.process(ctx, projectName, repo, pr, reconciler); err != nil {
			result = nil
			return
		}
		tally.Add(pr.Developer, Status(record.Status))
		if statusFilter == "" || record.Status == statusFilter {
			result.PullRequests = append(result.PullRequests, record)
		}
	}

	if err = s.recomputePoints(projectName, tally); err != nil {
		result = nil
		return
	}

	if caller.Role == database.RoleDeveloper {
		points := tally.Score(caller.GithubUsername)
		if _, err = s.db.SetPoints(caller.Email, projectName, points); err != nil {
			result = nil
			err = errors.WithMessage(err, "unable to store points")
			return
		}
		result.Points = &points
	}

	return
}

// Snapshots stored by earlier passes, newest pull request first. The code host is not called.
func (s *Service) History(callerEmail, projectName, statusFilter string) (result []*database.PullRequest, err error) {
	if err = validateListing(callerEmail, projectName, statusFilter); err != nil {
		return
	}
	if _, _, err = s.authorize(callerEmail, projectName, false); err != nil {
		return
	}

	var stored []*database.PullRequest
	if stored, err = s.db.GetPullRequests(projectName); err != nil {
		return
	}

	result = []*database.PullRequest{}
	for _, pr := range stored {
		if statusFilter == "" || pr.Status == statusFilter {
			result = append(result, pr)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PullRequestID > result[j].PullRequestID
	})

	return
}

// Auditor (or project admin) approval or rejection on the code host
func (s *Service) Decide(ctx context.Context, callerEmail string, decision *Decision) (message string, err error) {
	switch {
	case strings.TrimSpace(callerEmail) == "":
		err = errors.Kindf(errors.BadRequest, "X-User-Email header is required")
	case decision.PullRequestID <= 0:
		err = errors.Kindf(errors.BadRequest, "pullRequestId is required")
	case strings.TrimSpace(decision.ProjectName) == "":
		err = errors.Kindf(errors.BadRequest, "projectName is required")
	case decision.Decision != DecisionApprove && decision.Decision != DecisionReject:
		err = errors.Kindf(errors.BadRequest, "decision must be %q or %q", DecisionApprove, DecisionReject)
	}
	if err != nil {
		return
	}

	var repo *source.Repo
	if _, repo, err = s.authorize(callerEmail, decision.ProjectName, true); err != nil {
		return
	}

	host := s.fetcher.Host()
	number := decision.PullRequestID
	status := Rejected

	if decision.Decision == DecisionApprove {
		if err = host.Approve(ctx, repo, number, approvalBody); err != nil {
			return
		}
		if err = host.Merge(ctx, repo, number); err != nil {
			return
		}
		status = Approved
		message = fmt.Sprintf("Pull request #%d approved and merged", number)
	} else {
		if err = host.Close(ctx, repo, number); err != nil {
			return
		}
		message = fmt.Sprintf("Pull request #%d rejected and closed", number)
	}

	if _, updateErr := s.db.SetPullRequestStatus(decision.ProjectName, number, string(status)); updateErr != nil {
		errors.ErrLog(s.log, updateErr).Warn("unable to update stored pull request status")
	}
	s.log.WithField("project", decision.ProjectName).WithField("pr", number).WithField("caller", callerEmail).Info(message)

	return
}

// Ingest one pull request announced by webhook. Returns nil for actions that change nothing.
func (s *Service) IngestEvent(ctx context.Context, event *Event) (result *database.PullRequest, err error) {
	switch event.Action {
	case "opened", "synchronize", "reopened", "closed", "edited":
	default:
		return
	}

	var repo *source.Repo
	if _, repo, err = s.resolveRepo(event.RepoName); err != nil {
		return
	}

	var changeSet *source.ChangeSet
	if changeSet, err = s.fetcher.Fetch(ctx, repo, event.Number); err != nil {
		return
	}

	return s.processFiles(ctx, event.RepoName, changeSet.PullRequest, changeSet.Files, s.newReconciler())
}

func (s *Service) newReconciler() *ledger.Reconciler {
	if s.ledger.Ledger == nil {
		return nil
	}
	return ledger.NewReconciler(s.ledger.Ledger, s.ledger.Policy, s.ledger.VerifyTx, s.log.AddPrefixPath("ledger"))
}

func (s *Service) process(ctx context.Context, projectName string, repo *source.Repo, pr *source.PullRequest, reconciler *ledger.Reconciler) (result *database.PullRequest, err error) {
	var files []*source.ChangedFile
	if files, err = s.fetcher.Files(ctx, repo, pr); err != nil {
		return
	}
	return s.processFiles(ctx, projectName, pr, files, reconciler)
}

func (s *Service) processFiles(ctx context.Context, projectName string, pr *source.PullRequest, files []*source.ChangedFile, reconciler *ledger.Reconciler) (result *database.PullRequest, err error) {
	now := s.now()
	result = &database.PullRequest{
		PullRequestID: pr.Number,
		ProjectName:   projectName,
		Title:         pr.Title,
		Developer:     pr.Developer,
		Timestamp:     pr.CreatedAt.UTC().Format(time.RFC3339),
		Version:       pr.Version(),
		ChangedFiles:  make([]*database.ChangedFile, 0, len(files)),
		Status:        string(Classify(pr)),
		TxHash:        ledger.TxNotApplicable,
		UpdatedAt:     &now,
	}

	vulnerable := false
	for _, file := range files {
		scanned := s.scanner.ScanFile(ctx, file.Filename, file.Content)
		changed := &database.ChangedFile{
			Filename:        file.Filename,
			Content:         file.Content,
			Vulnerabilities: make([]*database.Vulnerability, 0, len(scanned.Findings)),
			IsVulnerable:    scanned.IsVulnerable,
			ScanNote:        scanned.Note,
		}
		for _, finding := range scanned.Findings {
			changed.Vulnerabilities = append(changed.Vulnerabilities, &database.Vulnerability{
				Type:    finding.Type,
				Line:    finding.Line,
				Snippet: finding.Snippet,
			})
		}
		vulnerable = vulnerable || scanned.IsVulnerable
		result.ChangedFiles = append(result.ChangedFiles, changed)
	}
	if !vulnerable {
		score := securityScoreSafe
		result.SecurityScore = &score
	}

	if reconciler != nil {
		var outcome *ledger.Outcome
		entry := &ledger.PullRequestEntry{
			ID:          int64(pr.Number),
			ProjectName: projectName,
			Developer:   pr.Developer,
			Timestamp:   result.Timestamp,
			Status:      result.Status,
		}
		if outcome, err = reconciler.Reconcile(ctx, entry); err != nil {
			result = nil
			return
		}
		result.TxHash = outcome.TxHash
	}

	if writeErr := s.db.WritePullRequest(result); writeErr != nil {
		errors.ErrLog(s.log, writeErr).Warn("unable to store pull request snapshot")
	}

	return
}

// Overwrite the project score of every registered developer seen in this pass
func (s *Service) recomputePoints(projectName string, tally *Tally) (err error) {
	for _, login := range tally.Developers() {
		var user *database.User
		if user, err = s.db.FindUserByGithubUsername(login); err != nil {
			return errors.WithMessagev(err, "unable to look up developer", login)
		}
		if user == nil || user.Role != database.RoleDeveloper {
			continue
		}
		if _, err = s.db.SetPoints(user.Email, projectName, tally.Score(login)); err != nil {
			return errors.WithMessagev(err, "unable to store points", login)
		}
	}
	return
}

// Caller must be the project's admin or assigned to it. auditorOnly further restricts
// assigned callers to auditors.
func (s *Service) authorize(callerEmail, projectName string, auditorOnly bool) (caller *database.User, repo *source.Repo, err error) {
	if caller, err = s.db.GetUser(callerEmail); err != nil {
		return
	}
	if caller == nil {
		err = errors.Kindf(errors.Forbidden, "user %s is not registered", callerEmail)
		return
	}

	var admin *database.User
	if admin, repo, err = s.resolveRepo(projectName); err != nil {
		return
	}

	if strings.EqualFold(admin.Email, caller.Email) {
		return
	}

	assignment := caller.Assignment(projectName)
	switch {
	case assignment == nil:
		err = errors.Kindf(errors.Forbidden, "user %s is not assigned to project %s", callerEmail, projectName)
	case auditorOnly && assignment.Role != database.RoleAuditor:
		err = errors.Kindf(errors.Forbidden, "only auditors of project %s can decide on pull requests", projectName)
	}

	return
}

// Repository and credentials come from the admin who created the project
func (s *Service) resolveRepo(projectName string) (admin *database.User, repo *source.Repo, err error) {
	if admin, err = s.db.GetProjectAdmin(projectName); err != nil {
		return
	}
	if admin == nil {
		err = errors.Kindf(errors.NotFound, "project %s not found", projectName)
		return
	}

	repo = &source.Repo{Owner: admin.GithubUsername, Name: projectName, Token: admin.GithubToken}

	var project *database.Project
	if project, err = s.db.GetProject(admin.Email, projectName); err != nil {
		return
	}
	if project != nil && project.RepoOwner != "" && project.RepoName != "" {
		repo.Owner, repo.Name = project.RepoOwner, project.RepoName
	}

	if repo.Owner == "" {
		err = errors.Kindf(errors.NotFound, "no repository owner known for project %s", projectName)
	}

	return
}

func validateListing(callerEmail, projectName, statusFilter string) error {
	switch {
	case strings.TrimSpace(callerEmail) == "":
		return errors.Kindf(errors.BadRequest, "X-User-Email header is required")
	case strings.TrimSpace(projectName) == "":
		return errors.Kindf(errors.BadRequest, "project is required")
	case statusFilter != "" && !ValidStatus(statusFilter):
		return errors.Kindf(errors.BadRequest, "invalid status filter: %s", statusFilter)
	}
	return nil
}
