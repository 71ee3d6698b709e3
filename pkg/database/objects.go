package database

import (
	"time"

	"github.com/chainaudit/chainaudit/pkg/manip"
)

const (
	UserTable        = "users"
	CommitTable      = "commits"
	ProjectTable     = "projects"
	PullRequestTable = "pulls"
	VersionTable     = "versions"
)

const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleAuditor   = "auditor"
)

// Every field is optional on read, documents are written with omitempty throughout
type (
	User struct {
		ID               string                  `json:"id,omitempty"`
		Username         string                  `json:"username,omitempty"`
		Email            string                  `json:"email,omitempty"`
		PasswordHash     string                  `json:"passwordHash,omitempty"`
		Role             string                  `json:"role,omitempty"`
		GithubUsername   string                  `json:"githubUsername,omitempty"`
		GithubToken      string                  `json:"githubToken,omitempty"`
		CreatedProjects  []string                `json:"createdProjects,omitempty"`
		ProjectMetadata  map[string]*ProjectMeta `json:"projectMetadata,omitempty"`
		AssignedProjects []*Assignment           `json:"assignedProjects,omitempty"`
		Points           map[string]int          `json:"points,omitempty"`
		CreatedAt        *time.Time              `json:"createdAt,omitempty"`
	}
	ProjectMeta struct {
		Description string `json:"description,omitempty"`
		RepoURL     string `json:"repoUrl,omitempty"`
		WebhookID   int64  `json:"webhookId,omitempty"`
	}
	Assignment struct {
		ProjectName string     `json:"projectName,omitempty"`
		Role        string     `json:"role,omitempty"`
		AssignedAt  *time.Time `json:"assignedAt,omitempty"`
		IsActive    bool       `json:"isActive"`
	}
	Project struct {
		Name                string     `json:"name,omitempty"`
		Description         string     `json:"description,omitempty"`
		AdminEmail          string     `json:"adminEmail,omitempty"`
		AdminGithubUsername string     `json:"adminGithubUsername,omitempty"`
		RepoURL             string     `json:"repoUrl,omitempty"`
		RepoOwner           string     `json:"repoOwner,omitempty"`
		RepoName            string     `json:"repoName,omitempty"`
		WebhookID           int64      `json:"webhookId,omitempty"`
		CreatedAt           *time.Time `json:"createdAt,omitempty"`
	}
	Commit struct {
		ID               string     `json:"id,omitempty"`
		ProjectName      string     `json:"projectName,omitempty"`
		Message          string     `json:"message,omitempty"`
		Author           string     `json:"author,omitempty"`
		AuthorEmail      string     `json:"authorEmail,omitempty"`
		Timestamp        string     `json:"timestamp,omitempty"`
		URL              string     `json:"url,omitempty"`
		IsOnBlockchain   bool       `json:"isOnBlockchain"`
		BlockchainTxHash string     `json:"blockchainTxHash,omitempty"`
		OnChainAt        *time.Time `json:"onChainAt,omitempty"`
		CreatedAt        *time.Time `json:"createdAt,omitempty"`
	}
	PullRequest struct {
		PullRequestID int            `json:"pullRequestId"`
		ProjectName   string         `json:"projectName,omitempty"`
		Title         string         `json:"title,omitempty"`
		Developer     string         `json:"developer,omitempty"`
		Timestamp     string         `json:"timestamp,omitempty"`
		Version       string         `json:"version,omitempty"`
		ChangedFiles  []*ChangedFile `json:"changedFiles"`
		Status        string         `json:"status,omitempty"`
		SecurityScore *string        `json:"securityScore"`
		TxHash        string         `json:"txHash,omitempty"`
		UpdatedAt     *time.Time     `json:"updatedAt,omitempty"`
	}
	ChangedFile struct {
		Filename        string           `json:"filename"`
		Content         string           `json:"content"`
		Vulnerabilities []*Vulnerability `json:"vulnerabilities"`
		IsVulnerable    bool             `json:"isVulnerable"`
		ScanNote        string           `json:"scanNote,omitempty"`
	}
	Vulnerability struct {
		Type    string `json:"type"`
		Line    int    `json:"line"`
		Snippet string `json:"snippet"`
	}
	Version struct {
		ID             string `json:"id,omitempty"`
		Username       string `json:"username,omitempty"`
		ComponentID    string `json:"componentId,omitempty"`
		Version        string `json:"version,omitempty"`
		CommitHash     string `json:"commitHash,omitempty"`
		BlockchainHash string `json:"blockchainHash,omitempty"`
		Timestamp      string `json:"timestamp,omitempty"`
	}
)

// Assignment for a project name, nil if the user is not assigned
func (u *User) Assignment(projectName string) *Assignment {
	for _, a := range u.AssignedProjects {
		if a != nil && a.ProjectName == projectName {
			return a
		}
	}
	return nil
}

func (u *User) CreatedProject(projectName string) bool {
	return manip.SliceContains(u.CreatedProjects, projectName)
}
