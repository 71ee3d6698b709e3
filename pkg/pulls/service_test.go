package pulls_test

import (
	"context"
	"io/ioutil"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/chainaudit/chainaudit/pkg/database"
	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/ledger"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/chainaudit/chainaudit/pkg/pulls"
	"github.com/chainaudit/chainaudit/pkg/retry"
	"github.com/chainaudit/chainaudit/pkg/scan"
	"github.com/chainaudit/chainaudit/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail   = "admin@example.com"
	devEmail     = "dev@example.com"
	auditorEmail = "auditor@example.com"
	strayEmail   = "stray@example.com"
	projectName  = "proj1"
)

type fakeHost struct {
	source.CodeHost
	prs      []*source.PullRequest
	files    map[int][]*source.FileEntry
	repos    []*source.Repo
	approved []int
	merged   []int
	closed   []int
}

func (f *fakeHost) CheckRepository(_ context.Context, repo *source.Repo) error {
	f.repos = append(f.repos, repo)
	return nil
}

func (f *fakeHost) ListPullRequests(context.Context, *source.Repo) ([]*source.PullRequest, error) {
	return f.prs, nil
}

func (f *fakeHost) GetPullRequest(_ context.Context, _ *source.Repo, number int) (*source.PullRequest, error) {
	for _, pr := range f.prs {
		if pr.Number == number {
			return pr, nil
		}
	}
	return nil, errors.Kindf(errors.NotFound, "pull request not found")
}

func (f *fakeHost) ListFiles(_ context.Context, _ *source.Repo, number int) ([]*source.FileEntry, error) {
	return f.files[number], nil
}

func (f *fakeHost) GetBlob(context.Context, *source.Repo, string, string) (*source.Blob, error) {
	return nil, errors.Kindf(errors.NotFound, "file not found")
}

func (f *fakeHost) Approve(_ context.Context, _ *source.Repo, number int, _ string) error {
	f.approved = append(f.approved, number)
	return nil
}

func (f *fakeHost) Merge(_ context.Context, _ *source.Repo, number int) error {
	f.merged = append(f.merged, number)
	return nil
}

func (f *fakeHost) Close(_ context.Context, _ *source.Repo, number int) error {
	f.closed = append(f.closed, number)
	return nil
}

// Files whose patch contains "eval(" are vulnerable
type fakeScanner struct{}

func (fakeScanner) ScanFile(_ context.Context, _, content string) *scan.Result {
	if strings.Contains(content, "eval(") {
		return &scan.Result{IsVulnerable: true, Findings: []*scan.Finding{{Type: "B307", Line: 1, Snippet: content}}, Note: scan.NoteFindingsFound}
	}
	return &scan.Result{Note: scan.NoteClean}
}

type fakeLedger struct {
	ledger.Ledger
	submitErr error
	submitted []int64
}

func (f *fakeLedger) IsPullRequestLogged(context.Context, int64) (bool, error) {
	return false, nil
}

func (f *fakeLedger) LogPullRequest(_ context.Context, entry *ledger.PullRequestEntry) (string, error) {
	f.submitted = append(f.submitted, entry.ID)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "0xabc", nil
}

func newTestDB(t *testing.T) *database.Database {
	dir, err := ioutil.TempDir("", "chainaudit-pulls")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := database.New(dir, logg.NewNopLogg())
	require.NoError(t, err)

	seed := []*database.User{
		{Email: adminEmail, Username: "admin", Role: database.RoleAdmin, GithubUsername: "acme", GithubToken: "token", CreatedProjects: []string{projectName}},
		{Email: devEmail, Username: "dev", Role: database.RoleDeveloper, GithubUsername: "DevOne", AssignedProjects: []*database.Assignment{{ProjectName: projectName, Role: database.RoleDeveloper, IsActive: true}}},
		{Email: auditorEmail, Username: "auditor", Role: database.RoleAuditor, AssignedProjects: []*database.Assignment{{ProjectName: projectName, Role: database.RoleAuditor, IsActive: true}}},
		{Email: strayEmail, Username: "stray", Role: database.RoleDeveloper},
	}
	for _, user := range seed {
		_, err = db.InsertUserIfUnique(user)
		require.NoError(t, err)
	}

	return db
}

func merged() *time.Time {
	at := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	return &at
}

func newHost() *fakeHost {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &fakeHost{
		prs: []*source.PullRequest{
			{Number: 1, Title: "one", State: "closed", Developer: "devone", HeadSHA: "1111111aaaa", CreatedAt: created, MergedAt: merged()},
			{Number: 2, Title: "two", State: "closed", Developer: "DevOne", HeadSHA: "2222222bbbb", CreatedAt: created, MergedAt: merged()},
			{Number: 3, Title: "three", State: "closed", Developer: "devone", HeadSHA: "3333333cccc", CreatedAt: created, MergedAt: merged()},
			{Number: 4, Title: "four", State: "closed", Developer: "devone", HeadSHA: "4444444dddd", CreatedAt: created},
			{Number: 5, Title: "five", State: "open", Developer: "outsider", HeadSHA: "5555555eeee", CreatedAt: created},
		},
		files: map[int][]*source.FileEntry{
			1: {{Filename: "app.py", Patch: "print('ok')"}},
			5: {{Filename: "app.py", Patch: "eval(input())"}, {Filename: "util.py", Patch: "x = 1"}},
		},
	}
}

func newService(db *database.Database, host *fakeHost, settings pulls.LedgerSettings) *pulls.Service {
	return pulls.NewService(db, source.NewFetcher(host, logg.NewNopLogg()), fakeScanner{}, settings, logg.NewNopLogg())
}

func TestService_List_RecomputesPoints(t *testing.T) {
	db := newTestDB(t)
	_, err := db.SetPoints(devEmail, projectName, 40)
	require.NoError(t, err)
	host := newHost()
	service := newService(db, host, pulls.LedgerSettings{})

	// Fire
	listing, err := service.List(context.Background(), devEmail, projectName, "")

	require.NoError(t, err)
	require.Len(t, listing.PullRequests, 5)
	require.NotNil(t, listing.Points)
	assert.Equal(t, 2, *listing.Points)
	dev, err := db.GetUser(devEmail)
	require.NoError(t, err)
	assert.Equal(t, 2, dev.Points[projectName])
	assert.Equal(t, "acme", host.repos[0].Owner)
	assert.Equal(t, projectName, host.repos[0].Name)
	assert.Equal(t, "token", host.repos[0].Token)
}

func TestService_List_SecurityScore(t *testing.T) {
	db := newTestDB(t)
	service := newService(db, newHost(), pulls.LedgerSettings{})

	// Fire
	listing, err := service.List(context.Background(), adminEmail, projectName, "")

	require.NoError(t, err)
	assert.Nil(t, listing.Points)
	byNumber := map[int]*database.PullRequest{}
	for _, pr := range listing.PullRequests {
		byNumber[pr.PullRequestID] = pr
	}
	require.NotNil(t, byNumber[1].SecurityScore)
	assert.Equal(t, "Safe", *byNumber[1].SecurityScore)
	assert.Nil(t, byNumber[5].SecurityScore)
	assert.True(t, byNumber[5].ChangedFiles[0].IsVulnerable)
	assert.False(t, byNumber[5].ChangedFiles[1].IsVulnerable)
	assert.Equal(t, "pending", byNumber[5].Status)
	assert.Equal(t, "rejected", byNumber[4].Status)
	assert.Equal(t, "1111111", byNumber[1].Version)
	assert.Equal(t, ledger.TxNotApplicable, byNumber[1].TxHash)
	stored, err := db.GetPullRequest(projectName, 5)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Nil(t, stored.SecurityScore)
}

func TestService_List_StatusFilterKeepsPoints(t *testing.T) {
	db := newTestDB(t)
	service := newService(db, newHost(), pulls.LedgerSettings{})

	// Fire
	listing, err := service.List(context.Background(), devEmail, projectName, "rejected")

	require.NoError(t, err)
	require.Len(t, listing.PullRequests, 1)
	assert.Equal(t, 4, listing.PullRequests[0].PullRequestID)
	assert.Equal(t, 2, *listing.Points)
}

func TestService_List_LedgerMirroring(t *testing.T) {
	db := newTestDB(t)
	chain := &fakeLedger{}
	service := newService(db, newHost(), pulls.LedgerSettings{Ledger: chain})

	// Fire
	listing, err := service.List(context.Background(), adminEmail, projectName, "")

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, chain.submitted)
	for _, pr := range listing.PullRequests {
		assert.Equal(t, "0xabc", pr.TxHash)
	}
}

func TestService_List_InsufficientFundsAborts(t *testing.T) {
	db := newTestDB(t)
	chain := &fakeLedger{submitErr: errors.Kindf(errors.InsufficientFunds, "insufficient balance")}
	noSleep := &retry.Policy{MaxAttempts: 3, Backoff: retry.Constant(0), Sleep: func(context.Context, time.Duration) error { return nil }}
	service := newService(db, newHost(), pulls.LedgerSettings{Ledger: chain, Policy: noSleep})

	// Fire
	listing, err := service.List(context.Background(), adminEmail, projectName, "")

	require.Error(t, err)
	assert.Nil(t, listing)
	assert.True(t, errors.Is(err, errors.InsufficientFunds))
	assert.Equal(t, []int64{1}, chain.submitted)
}

func TestService_List_Validation(t *testing.T) {
	tests := []struct {
		name      string
		caller    string
		project   string
		status    string
		errorKind errors.Kind
	}{
		{name: "missing caller", caller: "", project: projectName, errorKind: errors.BadRequest},
		{name: "missing project", caller: adminEmail, project: "", errorKind: errors.BadRequest},
		{name: "bad status", caller: adminEmail, project: projectName, status: "merged", errorKind: errors.BadRequest},
		{name: "unknown caller", caller: "nobody@example.com", project: projectName, errorKind: errors.Forbidden},
		{name: "unassigned caller", caller: strayEmail, project: projectName, errorKind: errors.Forbidden},
		{name: "unknown project", caller: adminEmail, project: "nope", errorKind: errors.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runListValidationTest(t, tt.caller, tt.project, tt.status, tt.errorKind)
		})
	}
}

func runListValidationTest(t *testing.T, caller, project, status string, errorKind errors.Kind) {
	db := newTestDB(t)
	service := newService(db, newHost(), pulls.LedgerSettings{})

	// Fire
	_, err := service.List(context.Background(), caller, project, status)

	require.Error(t, err)
	assert.Equal(t, errorKind, errors.KindOf(err))
}

func TestService_History(t *testing.T) {
	db := newTestDB(t)
	host := newHost()
	service := newService(db, host, pulls.LedgerSettings{})
	_, err := service.List(context.Background(), adminEmail, projectName, "")
	require.NoError(t, err)
	host.prs = nil

	// Fire
	all, allErr := service.History(devEmail, projectName, "")
	rejected, rejectedErr := service.History(adminEmail, projectName, "rejected")
	_, strayErr := service.History(strayEmail, projectName, "")

	require.NoError(t, allErr)
	require.Len(t, all, 5)
	for i, number := range []int{5, 4, 3, 2, 1} {
		assert.Equal(t, number, all[i].PullRequestID)
	}
	require.NoError(t, rejectedErr)
	require.Len(t, rejected, 1)
	assert.Equal(t, 4, rejected[0].PullRequestID)
	assert.Equal(t, errors.Forbidden, errors.KindOf(strayErr))
}

func TestService_History_Empty(t *testing.T) {
	db := newTestDB(t)
	service := newService(db, newHost(), pulls.LedgerSettings{})

	// Fire
	history, err := service.History(auditorEmail, projectName, "pending")

	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestService_Decide(t *testing.T) {
	db := newTestDB(t)
	host := newHost()
	service := newService(db, host, pulls.LedgerSettings{})
	_, err := service.List(context.Background(), adminEmail, projectName, "")
	require.NoError(t, err)

	// Fire
	approveMsg, approveErr := service.Decide(context.Background(), auditorEmail, &pulls.Decision{PullRequestID: 5, Decision: "approve", ProjectName: projectName})
	rejectMsg, rejectErr := service.Decide(context.Background(), adminEmail, &pulls.Decision{PullRequestID: 4, Decision: "reject", ProjectName: projectName})
	_, devErr := service.Decide(context.Background(), devEmail, &pulls.Decision{PullRequestID: 5, Decision: "approve", ProjectName: projectName})
	_, badErr := service.Decide(context.Background(), auditorEmail, &pulls.Decision{PullRequestID: 5, Decision: "maybe", ProjectName: projectName})

	require.NoError(t, approveErr)
	require.NoError(t, rejectErr)
	assert.Equal(t, "Pull request #5 approved and merged", approveMsg)
	assert.Equal(t, "Pull request #4 rejected and closed", rejectMsg)
	assert.Equal(t, []int{5}, host.approved)
	assert.Equal(t, []int{5}, host.merged)
	assert.Equal(t, []int{4}, host.closed)
	assert.Equal(t, errors.Forbidden, errors.KindOf(devErr))
	assert.Equal(t, errors.BadRequest, errors.KindOf(badErr))
	stored, err := db.GetPullRequest(projectName, 5)
	require.NoError(t, err)
	assert.Equal(t, "approved", stored.Status)
}

func TestService_IngestEvent(t *testing.T) {
	db := newTestDB(t)
	service := newService(db, newHost(), pulls.LedgerSettings{})

	// Fire
	result, err := service.IngestEvent(context.Background(), &pulls.Event{Action: "opened", Number: 5, RepoOwner: "acme", RepoName: projectName})
	ignored, ignoredErr := service.IngestEvent(context.Background(), &pulls.Event{Action: "labeled", Number: 5, RepoOwner: "acme", RepoName: projectName})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 5, result.PullRequestID)
	assert.Len(t, result.ChangedFiles, 2)
	require.NoError(t, ignoredErr)
	assert.Nil(t, ignored)
	stored, err := db.GetPullRequest(projectName, 5)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}
