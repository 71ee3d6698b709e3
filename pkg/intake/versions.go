package intake

import (
	"strings"

	"github.com/chainaudit/chainaudit/pkg/database"
	"github.com/chainaudit/chainaudit/pkg/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

const MessageVersionSaved = "Version data saved successfully"

// Component version recorded by a client after it logged the version on the ledger itself
type VersionSubmission struct {
	Username    string `json:"username"`
	ComponentID string `json:"componentId"`
	Version     string `json:"version"`
	CommitHash  string `json:"commitHash"`
	Hash        string `json:"hash"`
	Timestamp   string `json:"timestamp"`
}

func (v VersionSubmission) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.Username, validation.Required),
		validation.Field(&v.ComponentID, validation.Required),
		validation.Field(&v.Version, validation.Required),
		validation.Field(&v.CommitHash, validation.Required),
		validation.Field(&v.Hash, validation.Required),
		validation.Field(&v.Timestamp, validation.Required),
	)
}

func (i *Intake) SubmitVersion(submission *VersionSubmission) (result *database.Version, err error) {
	if err = submission.Validate(); err != nil {
		err = errors.Tag(errors.BadRequest, errors.WithMessage(err, "invalid version submission"))
		return
	}

	result = &database.Version{
		ID:             uuid.New().String(),
		Username:       strings.TrimSpace(submission.Username),
		ComponentID:    submission.ComponentID,
		Version:        submission.Version,
		CommitHash:     submission.CommitHash,
		BlockchainHash: submission.Hash,
		Timestamp:      submission.Timestamp,
	}
	if err = i.db.InsertVersion(result); err != nil {
		result = nil
		err = errors.WithMessage(err, "unable to store version submission")
		return
	}
	i.log.WithField("component", result.ComponentID).WithField("version", result.Version).Info(MessageVersionSaved)

	return
}

func (i *Intake) Versions() (result []*database.Version, err error) {
	if result, err = i.db.GetVersions(); err != nil {
		return
	}
	if result == nil {
		result = []*database.Version{}
	}
	return
}
