package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/chainaudit/chainaudit/pkg/source"
	"github.com/google/go-github/v29/github"
	"golang.org/x/oauth2"
)

const (
	perPage       = 100
	DefaultAPIURL = "https://api.github.com/"
)

// GitHub REST implementation of source.CodeHost. Each repository carries the token of the
// admin owning it, clients are built once per token.
type GithubProvider struct {
	apiURL  *url.URL
	clients map[string]*github.Client
	mutex   sync.Mutex
	log     logg.Logg
}

func NewGithubProvider(apiURL string, log logg.Logg) (result *GithubProvider, err error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}

	var parsed *url.URL
	if parsed, err = url.Parse(apiURL); err != nil {
		err = errors.Wrapv(err, "invalid GitHub API URL", apiURL)
		return
	}

	result = &GithubProvider{
		apiURL:  parsed,
		clients: map[string]*github.Client{},
		log:     log,
	}
	return
}

func (p *GithubProvider) client(token string) *github.Client {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if client, ok := p.clients[token]; ok {
		return client
	}

	var httpClient *http.Client
	if token != "" {
		httpClient = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	client := github.NewClient(httpClient)
	client.BaseURL = p.apiURL
	p.clients[token] = client

	return client
}

func (p *GithubProvider) CheckRepository(ctx context.Context, repo *source.Repo) (err error) {
	_, resp, err := p.client(repo.Token).Repositories.Get(ctx, repo.Owner, repo.Name)
	if err != nil {
		err = classify(resp, err, "repository not found")
	}
	return
}

func (p *GithubProvider) ListPullRequests(ctx context.Context, repo *source.Repo) (result []*source.PullRequest, err error) {
	client := p.client(repo.Token)
	opt := &github.PullRequestListOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		var prs []*github.PullRequest
		var resp *github.Response
		if prs, resp, err = client.PullRequests.List(ctx, repo.Owner, repo.Name, opt); err != nil {
			err = errors.WithMessagef(classify(resp, err, "repository not found"),
				"unable to get %d pull requests from GitHub (page %d)", perPage, opt.Page)
			return
		}
		for _, pr := range prs {
			result = append(result, convertPullRequest(pr))
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return
}

func (p *GithubProvider) GetPullRequest(ctx context.Context, repo *source.Repo, number int) (result *source.PullRequest, err error) {
	pr, resp, err := p.client(repo.Token).PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		err = classify(resp, err, "pull request not found")
		return
	}
	result = convertPullRequest(pr)
	return
}

func (p *GithubProvider) ListFiles(ctx context.Context, repo *source.Repo, number int) (result []*source.FileEntry, err error) {
	client := p.client(repo.Token)
	opt := &github.ListOptions{PerPage: perPage}
	for {
		var files []*github.CommitFile
		var resp *github.Response
		if files, resp, err = client.PullRequests.ListFiles(ctx, repo.Owner, repo.Name, number, opt); err != nil {
			err = errors.WithMessagef(classify(resp, err, "pull request not found"),
				"unable to get %d files from GitHub (page %d)", perPage, opt.Page)
			return
		}
		for _, file := range files {
			result = append(result, &source.FileEntry{
				Filename: file.GetFilename(),
				Status:   file.GetStatus(),
				Patch:    file.GetPatch(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return
}

func (p *GithubProvider) GetBlob(ctx context.Context, repo *source.Repo, path, ref string) (result *source.Blob, err error) {
	opt := &github.RepositoryContentGetOptions{Ref: ref}
	fileContent, _, resp, err := p.client(repo.Token).Repositories.GetContents(ctx, repo.Owner, repo.Name, path, opt)
	if err != nil {
		err = classify(resp, err, "file not found")
		return
	}
	if fileContent == nil {
		err = errors.Errorv("path is a directory", path)
		return
	}

	result = &source.Blob{Encoding: fileContent.GetEncoding()}
	if fileContent.Content != nil {
		result.Content = *fileContent.Content
	}
	return
}

func (p *GithubProvider) Approve(ctx context.Context, repo *source.Repo, number int, body string) (err error) {
	review := &github.PullRequestReviewRequest{
		Body:  github.String(body),
		Event: github.String("APPROVE"),
	}
	_, resp, err := p.client(repo.Token).PullRequests.CreateReview(ctx, repo.Owner, repo.Name, number, review)
	if err != nil {
		err = errors.WithMessage(classify(resp, err, "pull request not found"), "approval failed")
	}
	return
}

func (p *GithubProvider) Merge(ctx context.Context, repo *source.Repo, number int) (err error) {
	opt := &github.PullRequestOptions{MergeMethod: "merge"}
	result, resp, err := p.client(repo.Token).PullRequests.Merge(ctx, repo.Owner, repo.Name, number, "", opt)
	if err != nil {
		err = errors.WithMessage(classify(resp, err, "pull request not found"), "merge failed")
		return
	}
	if !result.GetMerged() {
		err = errors.Kindf(errors.Upstream, "merge failed: %s", result.GetMessage())
	}
	return
}

func (p *GithubProvider) Close(ctx context.Context, repo *source.Repo, number int) (err error) {
	edit := &github.PullRequest{State: github.String("closed")}
	_, resp, err := p.client(repo.Token).PullRequests.Edit(ctx, repo.Owner, repo.Name, number, edit)
	if err != nil {
		err = errors.WithMessage(classify(resp, err, "pull request not found"), "rejection failed")
	}
	return
}

func (p *GithubProvider) CreateHook(ctx context.Context, repo *source.Repo, hookURL, secret string, events []string) (hookID int64, err error) {
	config := map[string]interface{}{
		"url":          hookURL,
		"content_type": "json",
	}
	if secret != "" {
		config["secret"] = secret
	}
	hook := &github.Hook{
		Events: events,
		Active: github.Bool(true),
		Config: config,
	}

	created, resp, err := p.client(repo.Token).Repositories.CreateHook(ctx, repo.Owner, repo.Name, hook)
	if err != nil {
		err = errors.WithMessage(classify(resp, err, "repository not found"), "unable to create webhook")
		return
	}
	hookID = created.GetID()

	return
}

func convertPullRequest(pr *github.PullRequest) *source.PullRequest {
	result := &source.PullRequest{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		State:     pr.GetState(),
		Developer: pr.GetUser().GetLogin(),
		HeadSHA:   pr.GetHead().GetSHA(),
		CreatedAt: pr.GetCreatedAt(),
	}
	if pr.MergedAt != nil && !pr.MergedAt.IsZero() {
		mergedAt := *pr.MergedAt
		result.MergedAt = &mergedAt
	}
	return result
}

// Tag the error by the status GitHub answered with. 404 and 403 are kept apart because
// a caller should back off on the latter only.
func classify(resp *github.Response, err error, notFoundMsg string) error {
	message := err.Error()
	var errorResponse *github.ErrorResponse
	if errors.As(err, &errorResponse) && errorResponse.Message != "" {
		message = errorResponse.Message
	}

	var rateLimitErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateLimitErr) || errors.As(err, &abuseErr) {
		return errors.Kindf(errors.RateLimited, "rate limit exceeded")
	}

	if resp == nil || resp.Response == nil {
		return errors.Tag(errors.Upstream, errors.Wrap(err, "GitHub request failed"))
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.Kindf(errors.NotFound, "%s", notFoundMsg)
	case http.StatusForbidden:
		return errors.Kindf(errors.RateLimited, "rate limit exceeded")
	case http.StatusUnauthorized:
		return errors.Kindf(errors.Unauthorized, "GitHub rejected the credentials: %s", message)
	}

	return errors.Kindf(errors.Upstream, "GitHub request failed (%d): %s", resp.StatusCode, message)
}
