package api

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/intake"
	"github.com/chainaudit/chainaudit/pkg/pulls"
	"github.com/google/go-github/v29/github"
)

const eventPullRequest = "pull_request"

// GitHub deliveries. pull_request events go through ingestion, anything else is treated as a
// push or ping delivery.
func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := s.readDelivery(r)
	if err != nil {
		writeError(s.log, w, err)
		return
	}

	eventType := github.WebHookType(r)
	log := s.log.AddPrefixPath("webhook").WithField("event", eventType).WithField("delivery", github.DeliveryID(r))

	if eventType == eventPullRequest {
		s.pullRequestDelivery(w, r, body)
		return
	}

	var payload intake.PushPayload
	if err = json.Unmarshal(body, &payload); err != nil {
		writeError(s.log, w, errors.Tag(errors.BadRequest, errors.WithMessage(err, "invalid webhook payload")))
		return
	}

	receipt, err := s.services.Intake.Ingest(&payload)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	if !receipt.Processed {
		log.Debug(receipt.Message)
		writeMessage(s.log, w, http.StatusOK, receipt.Message)
		return
	}

	writeJSON(s.log, w, http.StatusCreated, receipt)
}

func (s *Server) pullRequestDelivery(w http.ResponseWriter, r *http.Request, body []byte) {
	parsed, err := github.ParseWebHook(eventPullRequest, body)
	if err != nil {
		writeError(s.log, w, errors.Tag(errors.BadRequest, errors.WithMessage(err, "invalid pull_request payload")))
		return
	}
	event, ok := parsed.(*github.PullRequestEvent)
	if !ok || event.GetRepo() == nil {
		writeError(s.log, w, errors.Kindf(errors.BadRequest, "invalid pull_request payload"))
		return
	}

	record, err := s.services.Pulls.IngestEvent(r.Context(), &pulls.Event{
		Action:    event.GetAction(),
		Number:    event.GetNumber(),
		RepoOwner: event.GetRepo().GetOwner().GetLogin(),
		RepoName:  event.GetRepo().GetName(),
	})
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	if record == nil {
		writeMessage(s.log, w, http.StatusOK, intake.MessageNothing)
		return
	}

	writeJSON(s.log, w, http.StatusCreated, record)
}

// Body of the delivery, signature checked when a secret is configured
func (s *Server) readDelivery(r *http.Request) (body []byte, err error) {
	if len(s.webhookSecret) == 0 {
		if body, err = ioutil.ReadAll(r.Body); err != nil {
			err = errors.Tag(errors.BadRequest, errors.WithMessage(err, "unable to read webhook body"))
		}
		return
	}

	if body, err = github.ValidatePayload(r, s.webhookSecret); err != nil {
		err = errors.Tag(errors.Unauthorized, errors.WithMessage(err, "invalid webhook signature"))
	}
	return
}
