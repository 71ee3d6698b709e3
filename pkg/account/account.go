package account

import (
	"strings"
	"time"

	"github.com/chainaudit/chainaudit/pkg/database"
	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/chainaudit/chainaudit/pkg/valid"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type (
	Signup struct {
		Username       string `json:"username"`
		Email          string `json:"email"`
		Password       string `json:"password"`
		Role           string `json:"role"`
		GithubUsername string `json:"githubUsername"`
		GithubToken    string `json:"githubToken,omitempty"`
	}

	// Username or email, plus password
	Login struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	GithubCredentials struct {
		GithubUsername string `json:"githubUsername"`
		GithubToken    string `json:"githubToken"`
	}

	// User as serialized to API clients, never carries credentials
	UserView struct {
		ID               string                 `json:"id"`
		Username         string                 `json:"username"`
		Email            string                 `json:"email"`
		Role             string                 `json:"role"`
		GithubUsername   string                 `json:"githubUsername"`
		HasGithubToken   bool                   `json:"hasGithubToken"`
		CreatedProjects  []string               `json:"createdProjects,omitempty"`
		AssignedProjects []*database.Assignment `json:"assignedProjects"`
		Points           map[string]int         `json:"points,omitempty"`
		CreatedAt        *time.Time             `json:"createdAt,omitempty"`
	}
)

func (s Signup) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Username, validation.Required),
		validation.Field(&s.Email, validation.Required, valid.Email),
		validation.Field(&s.Password, validation.Required),
		validation.Field(&s.Role, validation.Required, validation.In(database.RoleAdmin, database.RoleDeveloper, database.RoleAuditor)),
		validation.Field(&s.GithubUsername, validation.Required),
	)
}

func NewUserView(user *database.User) *UserView {
	assigned := user.AssignedProjects
	if assigned == nil {
		assigned = []*database.Assignment{}
	}
	return &UserView{
		ID:               user.ID,
		Username:         user.Username,
		Email:            user.Email,
		Role:             user.Role,
		GithubUsername:   user.GithubUsername,
		HasGithubToken:   user.GithubToken != "",
		CreatedProjects:  user.CreatedProjects,
		AssignedProjects: assigned,
		Points:           user.Points,
		CreatedAt:        user.CreatedAt,
	}
}

type Service struct {
	db         *database.Database
	bcryptCost int
	now        func() time.Time
	log        logg.Logg
}

// bcryptCost of zero selects bcrypt.DefaultCost
func NewService(db *database.Database, bcryptCost int, log logg.Logg) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{db: db, bcryptCost: bcryptCost, now: time.Now, log: log}
}

func (s *Service) Signup(signup *Signup) (result *UserView, err error) {
	signup.Username = strings.TrimSpace(signup.Username)
	signup.Email = strings.ToLower(strings.TrimSpace(signup.Email))
	signup.Role = strings.ToLower(strings.TrimSpace(signup.Role))
	signup.GithubUsername = strings.TrimSpace(signup.GithubUsername)

	if err = signup.Validate(); err != nil {
		err = errors.Tag(errors.BadRequest, err)
		return
	}

	var hash []byte
	if hash, err = bcrypt.GenerateFromPassword([]byte(signup.Password), s.bcryptCost); err != nil {
		err = errors.Wrap(err, "unable to hash password")
		return
	}

	now := s.now()
	user := &database.User{
		ID:             uuid.New().String(),
		Username:       signup.Username,
		Email:          signup.Email,
		PasswordHash:   string(hash),
		Role:           signup.Role,
		GithubUsername: signup.GithubUsername,
		GithubToken:    strings.TrimSpace(signup.GithubToken),
		CreatedAt:      &now,
	}

	var conflict bool
	if conflict, err = s.db.InsertUserIfUnique(user); err != nil {
		err = errors.WithMessage(err, "unable to store user")
		return
	}
	if conflict {
		err = errors.Kindf(errors.Conflict, "Username or email already exists")
		return
	}
	s.log.WithField("user", user.Email).WithField("role", user.Role).Info("user signed up")

	return NewUserView(user), nil
}

func (s *Service) Login(login *Login) (result *UserView, err error) {
	identifier := strings.TrimSpace(login.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(login.Email)
	}
	if identifier == "" || login.Password == "" {
		err = errors.Kindf(errors.BadRequest, "Username/Email and password are required")
		return
	}

	var user *database.User
	if user, err = s.db.FindUserByLogin(identifier); err != nil {
		return
	}
	if user == nil {
		err = errors.Kindf(errors.NotFound, "User not found")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(login.Password)) != nil {
		err = errors.Kindf(errors.Unauthorized, "Invalid credentials")
		return
	}

	return NewUserView(user), nil
}

func (s *Service) User(email string) (result *UserView, err error) {
	var user *database.User
	if user, err = s.lookup(email); err != nil {
		return
	}
	return NewUserView(user), nil
}

// All users, optionally restricted to one role
func (s *Service) Users(role string) (result []*UserView, err error) {
	var users []*database.User
	if users, err = s.db.GetUsers(); err != nil {
		return
	}
	result = []*UserView{}
	for _, user := range users {
		if role == "" || user.Role == role {
			result = append(result, NewUserView(user))
		}
	}
	return
}

func (s *Service) UpdateGithub(email string, creds *GithubCredentials) (result *UserView, err error) {
	username := strings.TrimSpace(creds.GithubUsername)
	token := strings.TrimSpace(creds.GithubToken)
	if username == "" && token == "" {
		err = errors.Kindf(errors.BadRequest, "githubUsername or githubToken is required")
		return
	}

	var found bool
	found, err = s.db.UpdateUser(email, func(user *database.User) error {
		if username != "" {
			user.GithubUsername = username
		}
		if token != "" {
			user.GithubToken = token
		}
		return nil
	})
	if err != nil {
		return
	}
	if !found {
		err = errors.Kindf(errors.NotFound, "User not found")
		return
	}
	s.log.WithField("user", email).Info("github credentials updated")

	return s.User(email)
}

func (s *Service) lookup(email string) (result *database.User, err error) {
	if result, err = s.db.GetUser(email); err != nil {
		return
	}
	if result == nil {
		err = errors.Kindf(errors.NotFound, "User not found")
	}
	return
}
