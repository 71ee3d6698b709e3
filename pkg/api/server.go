package api

import (
	"context"
	"net/http"
	"time"

	"github.com/chainaudit/chainaudit/pkg/account"
	"github.com/chainaudit/chainaudit/pkg/intake"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/chainaudit/chainaudit/pkg/project"
	"github.com/chainaudit/chainaudit/pkg/pulls"
	"github.com/gorilla/mux"
)

const (
	maxHeaderBytes = 1 << 20
	readTimeout    = 30 * time.Second
	// Listings wait on the scanner and on ledger receipts
	writeTimeout = 15 * time.Minute
)

type (
	Config struct {
		Addr          string
		WebhookSecret string
	}

	Services struct {
		Pulls    *pulls.Service
		Intake   *intake.Intake
		Accounts *account.Service
		Projects *project.Service
	}
)

type Server struct {
	httpServer    *http.Server
	router        *mux.Router
	services      *Services
	webhookSecret []byte
	log           logg.Logg
}

func NewServer(cfg Config, services *Services, log logg.Logg) *Server {
	router := mux.NewRouter()

	s := &Server{
		router:        router,
		services:      services,
		webhookSecret: []byte(cfg.WebhookSecret),
		log:           log,
	}
	s.handleRoutes()

	s.httpServer = &http.Server{
		Addr:           cfg.Addr,
		MaxHeaderBytes: maxHeaderBytes,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		Handler:        s.Handler(),
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return recoveryMiddleware(s.log, loggingMiddleware(s.log, s.router))
}

func (s *Server) Run() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRoutes() {
	r := s.router

	r.HandleFunc("/", s.health).Methods(http.MethodGet)

	r.HandleFunc("/api/webhook", s.webhook).Methods(http.MethodPost)
	r.HandleFunc("/webhook", s.webhook).Methods(http.MethodPost)

	r.HandleFunc("/api/pullrequests", s.listPullRequests).Methods(http.MethodGet)
	r.HandleFunc("/api/pullrequests/history", s.pullRequestHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/pullrequests/decision", s.decidePullRequest).Methods(http.MethodPost)

	r.HandleFunc("/api/commits", s.listCommits).Methods(http.MethodGet)
	r.HandleFunc("/api/commits/{id}/ledger", s.mirrorCommit).Methods(http.MethodPost)
	r.HandleFunc("/api/commits/{id}/mark-onchain", s.markCommitOnChain).Methods(http.MethodPatch)

	r.HandleFunc("/api/versions/submit", s.submitVersion).Methods(http.MethodPost)
	r.HandleFunc("/api/versions/all", s.listVersions).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/signup", s.signup).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/api/users", s.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{email}", s.getUser).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{email}/github", s.updateGithub).Methods(http.MethodPut)
	r.HandleFunc("/api/users/{email}/projects", s.assignedProjects).Methods(http.MethodGet)

	r.HandleFunc("/admin/projects", s.createProject).Methods(http.MethodPost)
	r.HandleFunc("/admin/projects", s.adminProjects).Methods(http.MethodGet)
	r.HandleFunc("/admin/projects/{name}/repository", s.linkRepository).Methods(http.MethodPut)
	r.HandleFunc("/admin/projects/{name}/assignments", s.assignUser).Methods(http.MethodPost)
	r.HandleFunc("/admin/projects/{name}/assignments/{email}", s.unassignUser).Methods(http.MethodDelete)

	r.HandleFunc("/api/projects/{name}/leaderboard", s.leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{name}/toggle-active", s.toggleActive).Methods(http.MethodPatch)
	r.HandleFunc("/api/project-repos", s.projectRepos).Methods(http.MethodGet)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeMessage(s.log, w, http.StatusOK, "API is running")
}
