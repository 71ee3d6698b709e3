package database

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/chainaudit/chainaudit/pkg/errors"
)

func (d *Database) decodeAll(collection string, decode func(line []byte) error) (err error) {
	var lines []string
	if lines, err = d.readAll(collection); err != nil {
		return
	}
	for _, line := range lines {
		if err = decode([]byte(line)); err != nil {
			return errors.Wrapv(err, "unable to decode document", collection)
		}
	}
	return
}

//
// User

// Insert a user unless the username or email is already taken
func (d *Database) InsertUserIfUnique(user *User) (conflict bool, err error) {
	mutex := d.getOrCreateMutex(UserTable)
	mutex.Lock()
	defer mutex.Unlock()

	var users []*User
	if users, err = d.getUsers(); err != nil {
		return
	}

	email := normalizeEmail(user.Email)
	for _, existing := range users {
		if strings.EqualFold(existing.Username, user.Username) || normalizeEmail(existing.Email) == email {
			conflict = true
			return
		}
	}

	err = d.write(UserTable, email, user)

	return
}

func (d *Database) GetUser(email string) (result *User, err error) {
	var user User
	var found bool
	if found, err = d.read(UserTable, normalizeEmail(email), &user); err != nil || !found {
		return
	}
	result = &user
	return
}

// Find by username or email
func (d *Database) FindUserByLogin(login string) (result *User, err error) {
	if result, err = d.GetUser(login); err != nil || result != nil {
		return
	}

	var users []*User
	if users, err = d.GetUsers(); err != nil {
		return
	}
	for _, user := range users {
		if user.Username == login {
			result = user
			return
		}
	}

	return
}

func (d *Database) FindUserByGithubUsername(githubUsername string) (result *User, err error) {
	var users []*User
	if users, err = d.GetUsers(); err != nil {
		return
	}
	for _, user := range users {
		if user.GithubUsername != "" && strings.EqualFold(user.GithubUsername, githubUsername) {
			result = user
			return
		}
	}
	return
}

// Admin whose created projects contain the project name
func (d *Database) GetProjectAdmin(projectName string) (result *User, err error) {
	var users []*User
	if users, err = d.GetUsers(); err != nil {
		return
	}
	for _, user := range users {
		if user.Role == RoleAdmin && user.CreatedProject(projectName) {
			result = user
			return
		}
	}
	return
}

func (d *Database) GetUsers() (result []*User, err error) {
	mutex := d.getOrCreateMutex(UserTable)
	mutex.Lock()
	defer mutex.Unlock()

	return d.getUsers()
}

func (d *Database) getUsers() (result []*User, err error) {
	err = d.decodeAll(UserTable, func(line []byte) error {
		var obj *User
		if err := json.Unmarshal(line, &obj); err != nil {
			return err
		}
		result = append(result, obj)
		return nil
	})
	return
}

func (d *Database) UpdateUser(email string, modify func(user *User) error) (found bool, err error) {
	var user User
	return d.modify(UserTable, normalizeEmail(email), &user, func() error {
		return modify(&user)
	})
}

// $addToSet on createdProjects
func (d *Database) AddCreatedProject(email, projectName string, meta *ProjectMeta) (found bool, err error) {
	return d.UpdateUser(email, func(user *User) error {
		if !user.CreatedProject(projectName) {
			user.CreatedProjects = append(user.CreatedProjects, projectName)
		}
		if user.ProjectMetadata == nil {
			user.ProjectMetadata = map[string]*ProjectMeta{}
		}
		user.ProjectMetadata[projectName] = meta
		return nil
	})
}

// $addToSet keyed on project name, added is false when an assignment already exists
func (d *Database) AddAssignment(email string, assignment *Assignment) (found, added bool, err error) {
	found, err = d.UpdateUser(email, func(user *User) error {
		if user.Assignment(assignment.ProjectName) != nil {
			return nil
		}
		user.AssignedProjects = append(user.AssignedProjects, assignment)
		added = true
		return nil
	})
	return
}

// $pull keyed on project name, removed is false when there was nothing to remove
func (d *Database) RemoveAssignment(email, projectName string) (found, removed bool, err error) {
	found, err = d.UpdateUser(email, func(user *User) error {
		kept := user.AssignedProjects[:0]
		for _, a := range user.AssignedProjects {
			if a != nil && a.ProjectName == projectName {
				removed = true
				continue
			}
			kept = append(kept, a)
		}
		user.AssignedProjects = kept
		return nil
	})
	return
}

// $set on points.<project>, overwriting any previous score
func (d *Database) SetPoints(email, projectName string, points int) (found bool, err error) {
	return d.UpdateUser(email, func(user *User) error {
		if user.Points == nil {
			user.Points = map[string]int{}
		}
		user.Points[projectName] = points
		return nil
	})
}

//
// Project

func projectKey(adminEmail, name string) string {
	return CreateHashID(normalizeEmail(adminEmail), name)
}

func (d *Database) InsertProjectIfAbsent(project *Project) (created bool, err error) {
	return d.writeIfNotExists(ProjectTable, projectKey(project.AdminEmail, project.Name), project)
}

func (d *Database) GetProject(adminEmail, name string) (result *Project, err error) {
	var project Project
	var found bool
	if found, err = d.read(ProjectTable, projectKey(adminEmail, name), &project); err != nil || !found {
		return
	}
	result = &project
	return
}

func (d *Database) GetProjects() (result []*Project, err error) {
	err = d.decodeAll(ProjectTable, func(line []byte) error {
		var obj *Project
		if err := json.Unmarshal(line, &obj); err != nil {
			return err
		}
		result = append(result, obj)
		return nil
	})
	return
}

func (d *Database) GetProjectsByAdmin(adminEmail string) (result []*Project, err error) {
	var projects []*Project
	if projects, err = d.GetProjects(); err != nil {
		return
	}
	email := normalizeEmail(adminEmail)
	for _, project := range projects {
		if normalizeEmail(project.AdminEmail) == email {
			result = append(result, project)
		}
	}
	return
}

func (d *Database) UpdateProject(adminEmail, name string, modify func(project *Project) error) (found bool, err error) {
	var project Project
	return d.modify(ProjectTable, projectKey(adminEmail, name), &project, func() error {
		return modify(&project)
	})
}

//
// Commit

func (d *Database) InsertCommitIfAbsent(commit *Commit) (created bool, err error) {
	return d.writeIfNotExists(CommitTable, commit.ID, commit)
}

func (d *Database) GetCommit(id string) (result *Commit, err error) {
	var commit Commit
	var found bool
	if found, err = d.read(CommitTable, id, &commit); err != nil || !found {
		return
	}
	result = &commit
	return
}

func (d *Database) GetCommits() (result []*Commit, err error) {
	err = d.decodeAll(CommitTable, func(line []byte) error {
		var obj *Commit
		if err := json.Unmarshal(line, &obj); err != nil {
			return err
		}
		result = append(result, obj)
		return nil
	})
	return
}

// $set of the ledger fields, onChainAt keeps its first value
func (d *Database) MarkCommitOnChain(id, txHash string, at time.Time) (found bool, err error) {
	var commit Commit
	return d.modify(CommitTable, id, &commit, func() error {
		commit.IsOnBlockchain = true
		commit.BlockchainTxHash = txHash
		if commit.OnChainAt == nil {
			commit.OnChainAt = &at
		}
		return nil
	})
}

//
// Pull request snapshot

func pullRequestKey(projectName string, number int) string {
	return CreateHashID(projectName, number)
}

func (d *Database) WritePullRequest(pr *PullRequest) (err error) {
	mutex := d.getOrCreateMutex(PullRequestTable)
	mutex.Lock()
	defer mutex.Unlock()

	return d.write(PullRequestTable, pullRequestKey(pr.ProjectName, pr.PullRequestID), pr)
}

func (d *Database) GetPullRequest(projectName string, number int) (result *PullRequest, err error) {
	var pr PullRequest
	var found bool
	if found, err = d.read(PullRequestTable, pullRequestKey(projectName, number), &pr); err != nil || !found {
		return
	}
	result = &pr
	return
}

func (d *Database) GetPullRequests(projectName string) (result []*PullRequest, err error) {
	err = d.decodeAll(PullRequestTable, func(line []byte) error {
		var obj *PullRequest
		if err := json.Unmarshal(line, &obj); err != nil {
			return err
		}
		if obj.ProjectName == projectName {
			result = append(result, obj)
		}
		return nil
	})
	return
}

func (d *Database) SetPullRequestStatus(projectName string, number int, status string) (found bool, err error) {
	var pr PullRequest
	return d.modify(PullRequestTable, pullRequestKey(projectName, number), &pr, func() error {
		pr.Status = status
		return nil
	})
}

//
// Version submission

func (d *Database) InsertVersion(version *Version) (err error) {
	_, err = d.writeIfNotExists(VersionTable, version.ID, version)
	return
}

func (d *Database) GetVersions() (result []*Version, err error) {
	err = d.decodeAll(VersionTable, func(line []byte) error {
		var obj *Version
		if err := json.Unmarshal(line, &obj); err != nil {
			return err
		}
		result = append(result, obj)
		return nil
	})
	return
}
