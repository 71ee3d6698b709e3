package project

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/chainaudit/chainaudit/pkg/database"
	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/chainaudit/chainaudit/pkg/source"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const defaultRepoURLFormat = "https://github.com/%s/%s"

var hookEvents = []string{"push", "pull_request"}

type (
	NewProject struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		RepoURL     string `json:"repoUrl,omitempty"`
	}

	// Either a full repository URL or owner and name
	RepoLink struct {
		RepoURL string `json:"repoUrl"`
		Owner   string `json:"owner"`
		Name    string `json:"name"`
	}

	NewAssignment struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}

	LeaderboardEntry struct {
		Username       string `json:"username"`
		Email          string `json:"email"`
		GithubUsername string `json:"githubUsername"`
		Points         int    `json:"points"`
	}

	// Push hook registration, skipped when PublicURL is empty
	HookConfig struct {
		PublicURL string
		Secret    string
	}
)

func (p NewProject) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.Description, validation.Required),
	)
}

func (a NewAssignment) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Email, validation.Required),
		validation.Field(&a.Role, validation.Required, validation.In(database.RoleDeveloper, database.RoleAuditor)),
	)
}

// Project administration: creation, repository linking, membership, leaderboards
type Service struct {
	db   *database.Database
	host source.CodeHost
	hook HookConfig
	now  func() time.Time
	log  logg.Logg
}

// host may be nil, repositories are then linked without registering a hook
func NewService(db *database.Database, host source.CodeHost, hook HookConfig, log logg.Logg) *Service {
	return &Service{db: db, host: host, hook: hook, now: time.Now, log: log}
}

func (s *Service) Create(callerEmail string, input *NewProject) (result *database.Project, err error) {
	input.Name = strings.TrimSpace(input.Name)
	if err = input.Validate(); err != nil {
		err = errors.Tag(errors.BadRequest, err)
		return
	}

	var admin *database.User
	if admin, err = s.requireAdmin(callerEmail); err != nil {
		return
	}

	now := s.now()
	result = &database.Project{
		Name:                input.Name,
		Description:         input.Description,
		AdminEmail:          admin.Email,
		AdminGithubUsername: admin.GithubUsername,
		CreatedAt:           &now,
	}
	if input.RepoURL != "" {
		if result.RepoOwner, result.RepoName, err = ParseRepoURL(input.RepoURL); err != nil {
			result = nil
			return
		}
		result.RepoURL = input.RepoURL
	}

	var created bool
	if created, err = s.db.InsertProjectIfAbsent(result); err != nil {
		result = nil
		return
	}
	if !created {
		result = nil
		err = errors.Kindf(errors.Conflict, "project %s already exists", input.Name)
		return
	}

	meta := &database.ProjectMeta{Description: input.Description, RepoURL: result.RepoURL}
	if _, err = s.db.AddCreatedProject(admin.Email, result.Name, meta); err != nil {
		result = nil
		err = errors.WithMessagev(err, "unable to record created project", input.Name)
		return
	}
	s.log.WithField("admin", admin.Email).WithField("project", result.Name).Info("project created")

	return
}

// Point a project at a repository and, when a public webhook URL is configured, register the hook
func (s *Service) LinkRepository(ctx context.Context, callerEmail, projectName string, link *RepoLink) (result *database.Project, err error) {
	owner, name := strings.TrimSpace(link.Owner), strings.TrimSpace(link.Name)
	repoURL := strings.TrimSpace(link.RepoURL)
	switch {
	case repoURL != "":
		if owner, name, err = ParseRepoURL(repoURL); err != nil {
			return
		}
	case owner != "" && name != "":
		repoURL = fmt.Sprintf(defaultRepoURLFormat, owner, name)
	default:
		err = errors.Kindf(errors.BadRequest, "repoUrl or owner and name are required")
		return
	}

	var admin *database.User
	if admin, err = s.requireAdmin(callerEmail); err != nil {
		return
	}
	if _, err = s.ownedProject(admin, projectName); err != nil {
		return
	}

	var hookID int64
	if s.host != nil && s.hook.PublicURL != "" {
		repo := &source.Repo{Owner: owner, Name: name, Token: admin.GithubToken}
		if hookID, err = s.host.CreateHook(ctx, repo, s.hook.PublicURL, s.hook.Secret, hookEvents); err != nil {
			err = errors.WithMessagef(err, "unable to register webhook on %s/%s", owner, name)
			return
		}
		s.log.WithField("project", projectName).WithField("hook", hookID).Info("webhook registered")
	}

	if _, err = s.db.UpdateProject(admin.Email, projectName, func(project *database.Project) error {
		project.RepoURL, project.RepoOwner, project.RepoName = repoURL, owner, name
		if hookID != 0 {
			project.WebhookID = hookID
		}
		return nil
	}); err != nil {
		return
	}

	if _, err = s.db.UpdateUser(admin.Email, func(user *database.User) error {
		if user.ProjectMetadata == nil {
			user.ProjectMetadata = map[string]*database.ProjectMeta{}
		}
		meta := user.ProjectMetadata[projectName]
		if meta == nil {
			meta = &database.ProjectMeta{}
			user.ProjectMetadata[projectName] = meta
		}
		meta.RepoURL = repoURL
		if hookID != 0 {
			meta.WebhookID = hookID
		}
		return nil
	}); err != nil {
		return
	}

	return s.db.GetProject(admin.Email, projectName)
}

// Idempotent, added is false when the user was already assigned
func (s *Service) Assign(callerEmail, projectName string, input *NewAssignment) (added bool, err error) {
	input.Role = strings.ToLower(strings.TrimSpace(input.Role))
	if err = input.Validate(); err != nil {
		err = errors.Tag(errors.BadRequest, err)
		return
	}

	var admin *database.User
	if admin, err = s.requireAdmin(callerEmail); err != nil {
		return
	}
	if _, err = s.ownedProject(admin, projectName); err != nil {
		return
	}

	var user *database.User
	if user, err = s.db.GetUser(input.Email); err != nil {
		return
	}
	if user == nil {
		err = errors.Kindf(errors.NotFound, "User not found")
		return
	}
	if user.Role != input.Role {
		err = errors.Kindf(errors.BadRequest, "user %s is a %s, not a %s", user.Email, user.Role, input.Role)
		return
	}

	now := s.now()
	assignment := &database.Assignment{ProjectName: projectName, Role: input.Role, AssignedAt: &now, IsActive: true}
	if _, added, err = s.db.AddAssignment(user.Email, assignment); err != nil {
		return
	}
	s.log.WithField("project", projectName).WithField("user", user.Email).WithField("added", added).Info("user assigned")

	return
}

// Idempotent, removed is false when there was no assignment
func (s *Service) Unassign(callerEmail, projectName, email string) (removed bool, err error) {
	var admin *database.User
	if admin, err = s.requireAdmin(callerEmail); err != nil {
		return
	}
	if _, err = s.ownedProject(admin, projectName); err != nil {
		return
	}

	var found bool
	if found, removed, err = s.db.RemoveAssignment(email, projectName); err != nil {
		return
	}
	if !found {
		err = errors.Kindf(errors.NotFound, "User not found")
		return
	}
	s.log.WithField("project", projectName).WithField("user", email).WithField("removed", removed).Info("user unassigned")

	return
}

func (s *Service) AdminProjects(callerEmail string) (result []*database.Project, err error) {
	var admin *database.User
	if admin, err = s.requireAdmin(callerEmail); err != nil {
		return
	}
	if result, err = s.db.GetProjectsByAdmin(admin.Email); err != nil {
		return
	}
	if result == nil {
		result = []*database.Project{}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return
}

func (s *Service) AssignedProjects(email string) (result []*database.Assignment, err error) {
	var user *database.User
	if user, err = s.lookupUser(email); err != nil {
		return
	}
	result = user.AssignedProjects
	if result == nil {
		result = []*database.Assignment{}
	}
	return
}

// Flip isActive on one of the user's assignments
func (s *Service) ToggleActive(email, projectName string) (result *database.Assignment, err error) {
	var found bool
	found, err = s.db.UpdateUser(email, func(user *database.User) error {
		assignment := user.Assignment(projectName)
		if assignment == nil {
			return errors.Kindf(errors.NotFound, "Project not found")
		}
		assignment.IsActive = !assignment.IsActive
		result = assignment
		return nil
	})
	if err != nil {
		result = nil
		return
	}
	if !found {
		err = errors.Kindf(errors.NotFound, "User not found")
	}
	return
}

// Repository URL per project name, unknown names are left out
func (s *Service) RepoURLs(names []string) (result map[string]string, err error) {
	result = map[string]string{}
	for _, name := range names {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}

		var admin *database.User
		if admin, err = s.db.GetProjectAdmin(name); err != nil {
			return
		}
		if admin == nil {
			continue
		}

		var project *database.Project
		if project, err = s.db.GetProject(admin.Email, name); err != nil {
			return
		}

		switch {
		case project != nil && project.RepoURL != "":
			result[name] = project.RepoURL
		case admin.ProjectMetadata[name] != nil && admin.ProjectMetadata[name].RepoURL != "":
			result[name] = admin.ProjectMetadata[name].RepoURL
		default:
			result[name] = fmt.Sprintf(defaultRepoURLFormat, admin.GithubUsername, name)
		}
	}
	return
}

// Developers assigned to the project ordered by points, then username
func (s *Service) Leaderboard(projectName string) (result []*LeaderboardEntry, err error) {
	var users []*database.User
	if users, err = s.db.GetUsers(); err != nil {
		return
	}

	result = []*LeaderboardEntry{}
	for _, user := range users {
		if user.Role != database.RoleDeveloper || user.Assignment(projectName) == nil {
			continue
		}
		result = append(result, &LeaderboardEntry{
			Username:       user.Username,
			Email:          user.Email,
			GithubUsername: user.GithubUsername,
			Points:         user.Points[projectName],
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Points != result[j].Points {
			return result[i].Points > result[j].Points
		}
		return result[i].Username < result[j].Username
	})

	return
}

// Owner and name from https://github.com/owner/name, with or without a .git suffix
func ParseRepoURL(repoURL string) (owner, name string, err error) {
	parsed, parseErr := url.Parse(strings.TrimSpace(repoURL))
	if parseErr != nil || parsed.Host == "" {
		err = errors.Kindf(errors.BadRequest, "invalid repository URL: %s", repoURL)
		return
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		err = errors.Kindf(errors.BadRequest, "repository URL must point at owner/name: %s", repoURL)
		return
	}

	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

func (s *Service) requireAdmin(email string) (result *database.User, err error) {
	if strings.TrimSpace(email) == "" {
		err = errors.Kindf(errors.BadRequest, "X-User-Email header is required")
		return
	}
	if result, err = s.lookupUser(email); err != nil {
		return
	}
	if result.Role != database.RoleAdmin {
		result = nil
		err = errors.Kindf(errors.Forbidden, "only admins can manage projects")
	}
	return
}

func (s *Service) ownedProject(admin *database.User, projectName string) (result *database.Project, err error) {
	if result, err = s.db.GetProject(admin.Email, projectName); err != nil {
		return
	}
	if result == nil {
		err = errors.Kindf(errors.NotFound, "Project not found")
	}
	return
}

func (s *Service) lookupUser(email string) (result *database.User, err error) {
	if result, err = s.db.GetUser(email); err != nil {
		return
	}
	if result == nil {
		err = errors.Kindf(errors.NotFound, "User not found")
	}
	return
}
