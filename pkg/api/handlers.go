package api

import (
	"net/http"
	"strings"

	"github.com/chainaudit/chainaudit/pkg/account"
	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/intake"
	"github.com/chainaudit/chainaudit/pkg/project"
	"github.com/chainaudit/chainaudit/pkg/pulls"
	"github.com/gorilla/mux"
)

func caller(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(callerHeader))
}

//
// Pull requests

func (s *Server) listPullRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	listing, err := s.services.Pulls.List(r.Context(), caller(r), query.Get("project"), query.Get("status"))
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, listing)
}

func (s *Server) pullRequestHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	history, err := s.services.Pulls.History(caller(r), query.Get("project"), query.Get("status"))
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, &pulls.Listing{PullRequests: history})
}

func (s *Server) decidePullRequest(w http.ResponseWriter, r *http.Request) {
	var decision pulls.Decision
	if err := decodeBody(r, &decision); err != nil {
		writeError(s.log, w, err)
		return
	}

	message, err := s.services.Pulls.Decide(r.Context(), caller(r), &decision)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeMessage(s.log, w, http.StatusOK, message)
}

//
// Commits

// Without a project filter a known caller sees the commits of their assigned projects
func (s *Server) listCommits(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := &intake.CommitFilter{Author: query.Get("author"), Email: query.Get("email")}

	if name := query.Get("project"); name != "" {
		filter.Projects = []string{name}
	} else if email := caller(r); email != "" {
		assigned, err := s.services.Projects.AssignedProjects(email)
		if err != nil && !errors.Is(err, errors.NotFound) {
			writeError(s.log, w, err)
			return
		}
		for _, assignment := range assigned {
			filter.Projects = append(filter.Projects, assignment.ProjectName)
		}
	}

	commits, err := s.services.Intake.List(filter)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, commits)
}

func (s *Server) mirrorCommit(w http.ResponseWriter, r *http.Request) {
	commit, err := s.services.Intake.Mirror(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, commit)
}

func (s *Server) markCommitOnChain(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TxHash string `json:"txHash"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(s.log, w, err)
		return
	}

	if _, err := s.services.Intake.MarkOnChain(mux.Vars(r)["id"], body.TxHash); err != nil {
		writeError(s.log, w, err)
		return
	}
	writeMessage(s.log, w, http.StatusOK, "Commit flagged on-chain")
}

//
// Version submissions

func (s *Server) submitVersion(w http.ResponseWriter, r *http.Request) {
	var submission intake.VersionSubmission
	if err := decodeBody(r, &submission); err != nil {
		writeError(s.log, w, err)
		return
	}

	if _, err := s.services.Intake.SubmitVersion(&submission); err != nil {
		writeError(s.log, w, err)
		return
	}
	writeMessage(s.log, w, http.StatusCreated, intake.MessageVersionSaved)
}

func (s *Server) listVersions(w http.ResponseWriter, _ *http.Request) {
	versions, err := s.services.Intake.Versions()
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, map[string]interface{}{"versions": versions})
}

//
// Accounts

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var signup account.Signup
	if err := decodeBody(r, &signup); err != nil {
		writeError(s.log, w, err)
		return
	}

	user, err := s.services.Accounts.Signup(&signup)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusCreated, map[string]interface{}{"user": user})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var login account.Login
	if err := decodeBody(r, &login); err != nil {
		writeError(s.log, w, err)
		return
	}

	user, err := s.services.Accounts.Login(&login)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, map[string]interface{}{"user": user})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.services.Accounts.Users(r.URL.Query().Get("role"))
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, map[string]interface{}{"users": users})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.services.Accounts.User(mux.Vars(r)["email"])
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, map[string]interface{}{"user": user})
}

func (s *Server) updateGithub(w http.ResponseWriter, r *http.Request) {
	var creds account.GithubCredentials
	if err := decodeBody(r, &creds); err != nil {
		writeError(s.log, w, err)
		return
	}

	user, err := s.services.Accounts.UpdateGithub(mux.Vars(r)["email"], &creds)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, map[string]interface{}{"user": user})
}

func (s *Server) assignedProjects(w http.ResponseWriter, r *http.Request) {
	assigned, err := s.services.Projects.AssignedProjects(mux.Vars(r)["email"])
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, assigned)
}

//
// Projects

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var input project.NewProject
	if err := decodeBody(r, &input); err != nil {
		writeError(s.log, w, err)
		return
	}

	created, err := s.services.Projects.Create(caller(r), &input)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusCreated, map[string]interface{}{"message": "Project created", "project": created})
}

func (s *Server) adminProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.services.Projects.AdminProjects(caller(r))
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, map[string]interface{}{"projects": projects})
}

func (s *Server) linkRepository(w http.ResponseWriter, r *http.Request) {
	var link project.RepoLink
	if err := decodeBody(r, &link); err != nil {
		writeError(s.log, w, err)
		return
	}

	linked, err := s.services.Projects.LinkRepository(r.Context(), caller(r), mux.Vars(r)["name"], &link)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, map[string]interface{}{"project": linked})
}

func (s *Server) assignUser(w http.ResponseWriter, r *http.Request) {
	var input project.NewAssignment
	if err := decodeBody(r, &input); err != nil {
		writeError(s.log, w, err)
		return
	}

	added, err := s.services.Projects.Assign(caller(r), mux.Vars(r)["name"], &input)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	message := "User assigned"
	if !added {
		message = "User already assigned"
	}
	writeMessage(s.log, w, http.StatusOK, message)
}

func (s *Server) unassignUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	removed, err := s.services.Projects.Unassign(caller(r), vars["name"], vars["email"])
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	message := "User removed"
	if !removed {
		message = "User was not assigned"
	}
	writeMessage(s.log, w, http.StatusOK, message)
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.services.Projects.Leaderboard(mux.Vars(r)["name"])
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, map[string]interface{}{"leaderboard": board})
}

func (s *Server) toggleActive(w http.ResponseWriter, r *http.Request) {
	email := caller(r)
	if email == "" {
		writeError(s.log, w, errors.Kindf(errors.BadRequest, "X-User-Email header is required"))
		return
	}

	assignment, err := s.services.Projects.ToggleActive(email, mux.Vars(r)["name"])
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, assignment)
}

func (s *Server) projectRepos(w http.ResponseWriter, r *http.Request) {
	urls, err := s.services.Projects.RepoURLs(strings.Split(r.URL.Query().Get("names"), ","))
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(s.log, w, http.StatusOK, urls)
}
