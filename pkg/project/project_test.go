package project_test

import (
	"context"
	"io/ioutil"
	"os"
	"testing"

	"github.com/chainaudit/chainaudit/pkg/database"
	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/chainaudit/chainaudit/pkg/project"
	"github.com/chainaudit/chainaudit/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail = "admin@example.com"
	devEmail   = "dev@example.com"
	dev2Email  = "dev2@example.com"
	audEmail   = "aud@example.com"
)

type fakeHost struct {
	source.CodeHost
	hooks []string
	repos []*source.Repo
}

func (f *fakeHost) CreateHook(_ context.Context, repo *source.Repo, url, _ string, events []string) (int64, error) {
	f.repos = append(f.repos, repo)
	f.hooks = append(f.hooks, url)
	return 77, nil
}

func newService(t *testing.T, host source.CodeHost, hook project.HookConfig) (*project.Service, *database.Database) {
	dir, err := ioutil.TempDir("", "chainaudit-project")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := database.New(dir, logg.NewNopLogg())
	require.NoError(t, err)

	seed := []*database.User{
		{Email: adminEmail, Username: "admin", Role: database.RoleAdmin, GithubUsername: "acme", GithubToken: "token"},
		{Email: devEmail, Username: "zed", Role: database.RoleDeveloper, GithubUsername: "zed"},
		{Email: dev2Email, Username: "amy", Role: database.RoleDeveloper, GithubUsername: "amy"},
		{Email: audEmail, Username: "aud", Role: database.RoleAuditor},
	}
	for _, user := range seed {
		_, err = db.InsertUserIfUnique(user)
		require.NoError(t, err)
	}

	return project.NewService(db, host, hook, logg.NewNopLogg()), db
}

func TestService_Create(t *testing.T) {
	service, db := newService(t, nil, project.HookConfig{})

	// Fire
	created, err := service.Create(adminEmail, &project.NewProject{Name: " proj1 ", Description: "first"})
	_, dupErr := service.Create(adminEmail, &project.NewProject{Name: "proj1", Description: "again"})
	_, devErr := service.Create(devEmail, &project.NewProject{Name: "proj2", Description: "nope"})
	_, badErr := service.Create(adminEmail, &project.NewProject{Name: "proj3"})

	require.NoError(t, err)
	assert.Equal(t, "proj1", created.Name)
	assert.Equal(t, "acme", created.AdminGithubUsername)
	assert.Equal(t, errors.Conflict, errors.KindOf(dupErr))
	assert.Equal(t, errors.Forbidden, errors.KindOf(devErr))
	assert.Equal(t, errors.BadRequest, errors.KindOf(badErr))
	admin, err := db.GetUser(adminEmail)
	require.NoError(t, err)
	assert.Equal(t, []string{"proj1"}, admin.CreatedProjects)
	assert.Equal(t, "first", admin.ProjectMetadata["proj1"].Description)
}

func TestService_LinkRepository(t *testing.T) {
	host := &fakeHost{}
	service, db := newService(t, host, project.HookConfig{PublicURL: "https://hooks.example.com/api/webhook", Secret: "s3cret"})
	_, err := service.Create(adminEmail, &project.NewProject{Name: "proj1", Description: "first"})
	require.NoError(t, err)

	// Fire
	linked, err := service.LinkRepository(context.Background(), adminEmail, "proj1", &project.RepoLink{RepoURL: "https://github.com/acme/core.git"})
	_, missingErr := service.LinkRepository(context.Background(), adminEmail, "nope", &project.RepoLink{Owner: "acme", Name: "x"})
	_, emptyErr := service.LinkRepository(context.Background(), adminEmail, "proj1", &project.RepoLink{})

	require.NoError(t, err)
	assert.Equal(t, "acme", linked.RepoOwner)
	assert.Equal(t, "core", linked.RepoName)
	assert.Equal(t, int64(77), linked.WebhookID)
	assert.Equal(t, []string{"https://hooks.example.com/api/webhook"}, host.hooks)
	assert.Equal(t, "token", host.repos[0].Token)
	assert.Equal(t, errors.NotFound, errors.KindOf(missingErr))
	assert.Equal(t, errors.BadRequest, errors.KindOf(emptyErr))
	admin, err := db.GetUser(adminEmail)
	require.NoError(t, err)
	assert.Equal(t, int64(77), admin.ProjectMetadata["proj1"].WebhookID)
	urls, err := service.RepoURLs([]string{"proj1", "unknown", ""})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"proj1": "https://github.com/acme/core.git"}, urls)
}

func TestService_Membership(t *testing.T) {
	service, db := newService(t, nil, project.HookConfig{})
	_, err := service.Create(adminEmail, &project.NewProject{Name: "proj1", Description: "first"})
	require.NoError(t, err)

	// Fire
	added1, err1 := service.Assign(adminEmail, "proj1", &project.NewAssignment{Email: devEmail, Role: "developer"})
	added2, err2 := service.Assign(adminEmail, "proj1", &project.NewAssignment{Email: devEmail, Role: "developer"})
	_, mismatchErr := service.Assign(adminEmail, "proj1", &project.NewAssignment{Email: audEmail, Role: "developer"})
	_, roleErr := service.Assign(adminEmail, "proj1", &project.NewAssignment{Email: audEmail, Role: "admin"})
	_, ghostErr := service.Assign(adminEmail, "proj1", &project.NewAssignment{Email: "ghost@example.com", Role: "auditor"})
	toggled, toggleErr := service.ToggleActive(devEmail, "proj1")
	_, toggleMissingErr := service.ToggleActive(devEmail, "proj9")
	removed1, err3 := service.Unassign(adminEmail, "proj1", devEmail)
	removed2, err4 := service.Unassign(adminEmail, "proj1", devEmail)

	require.NoError(t, err1)
	require.NoError(t, err2)
	require.NoError(t, toggleErr)
	require.NoError(t, err3)
	require.NoError(t, err4)
	assert.True(t, added1)
	assert.False(t, added2)
	assert.False(t, toggled.IsActive)
	assert.True(t, removed1)
	assert.False(t, removed2)
	assert.Equal(t, errors.BadRequest, errors.KindOf(mismatchErr))
	assert.Equal(t, errors.BadRequest, errors.KindOf(roleErr))
	assert.Equal(t, errors.NotFound, errors.KindOf(ghostErr))
	assert.Equal(t, errors.NotFound, errors.KindOf(toggleMissingErr))
	assigned, err := service.AssignedProjects(devEmail)
	require.NoError(t, err)
	assert.Empty(t, assigned)
	dev, err := db.GetUser(devEmail)
	require.NoError(t, err)
	assert.Nil(t, dev.Assignment("proj1"))
}

func TestService_Leaderboard(t *testing.T) {
	service, db := newService(t, nil, project.HookConfig{})
	_, err := service.Create(adminEmail, &project.NewProject{Name: "proj1", Description: "first"})
	require.NoError(t, err)
	for _, email := range []string{devEmail, dev2Email} {
		_, err = service.Assign(adminEmail, "proj1", &project.NewAssignment{Email: email, Role: "developer"})
		require.NoError(t, err)
		_, err = db.SetPoints(email, "proj1", 3)
		require.NoError(t, err)
	}
	_, err = service.Assign(adminEmail, "proj1", &project.NewAssignment{Email: audEmail, Role: "auditor"})
	require.NoError(t, err)

	// Fire
	board, err := service.Leaderboard("proj1")

	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "amy", board[0].Username)
	assert.Equal(t, "zed", board[1].Username)
	assert.Equal(t, 3, board[0].Points)
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name    string
		repoURL string
		owner   string
		repo    string
		wantErr bool
	}{
		{name: "plain", repoURL: "https://github.com/acme/core", owner: "acme", repo: "core"},
		{name: "git suffix", repoURL: "https://github.com/acme/core.git", owner: "acme", repo: "core"},
		{name: "trailing slash", repoURL: "https://github.com/acme/core/", owner: "acme", repo: "core"},
		{name: "no name", repoURL: "https://github.com/acme", wantErr: true},
		{name: "not a URL", repoURL: "acme/core", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {

			// Fire
			owner, repo, err := project.ParseRepoURL(tt.repoURL)

			if tt.wantErr {
				assert.Equal(t, errors.BadRequest, errors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}
