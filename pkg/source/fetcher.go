package source

import (
	"context"
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
)

type ChangeSet struct {
	PullRequest *PullRequest
	Files       []*ChangedFile
}

// Resolves the changed files of a pull request to text
type Fetcher struct {
	host CodeHost
	log  logg.Logg
}

func NewFetcher(host CodeHost, log logg.Logg) *Fetcher {
	return &Fetcher{host: host, log: log}
}

func (f *Fetcher) Host() CodeHost {
	return f.host
}

// Repository must exist and be reachable with the repo's credentials.
// Errors are tagged errors.NotFound or errors.RateLimited where the host said so.
func (f *Fetcher) Verify(ctx context.Context, repo *Repo) (err error) {
	if err = f.host.CheckRepository(ctx, repo); err != nil {
		err = errors.WithMessagef(err, "unable to access %s/%s", repo.Owner, repo.Name)
	}
	return
}

func (f *Fetcher) PullRequests(ctx context.Context, repo *Repo) (result []*PullRequest, err error) {
	if result, err = f.host.ListPullRequests(ctx, repo); err != nil {
		err = errors.WithMessagef(err, "unable to list pull requests for %s/%s", repo.Owner, repo.Name)
	}
	return
}

// Verify the repository, then resolve one pull request and its files
func (f *Fetcher) Fetch(ctx context.Context, repo *Repo, number int) (result *ChangeSet, err error) {
	if err = f.Verify(ctx, repo); err != nil {
		return
	}

	var pr *PullRequest
	if pr, err = f.host.GetPullRequest(ctx, repo, number); err != nil {
		err = errors.WithMessagef(err, "unable to get pull request %d", number)
		return
	}

	var files []*ChangedFile
	if files, err = f.Files(ctx, repo, pr); err != nil {
		return
	}

	result = &ChangeSet{PullRequest: pr, Files: files}

	return
}

// Every returned file has content: the blob at the head commit, else the patch, else a placeholder
func (f *Fetcher) Files(ctx context.Context, repo *Repo, pr *PullRequest) (result []*ChangedFile, err error) {
	var entries []*FileEntry
	if entries, err = f.host.ListFiles(ctx, repo, pr.Number); err != nil {
		err = errors.WithMessagef(err, "unable to list files of pull request %d", pr.Number)
		return
	}

	result = make([]*ChangedFile, 0, len(entries))
	for _, entry := range entries {
		result = append(result, f.resolve(ctx, repo, pr, entry))
	}

	return
}

func (f *Fetcher) resolve(ctx context.Context, repo *Repo, pr *PullRequest, entry *FileEntry) *ChangedFile {
	log := f.log.WithField("pr", pr.Number).WithField("file", entry.Filename)

	if entry.Status != "removed" {
		blob, err := f.host.GetBlob(ctx, repo, entry.Filename, pr.HeadSHA)
		if err != nil {
			log.WithError(err).Debug("content unavailable, falling back to patch")
		} else if text, ok := decodeBlob(blob); ok {
			return &ChangedFile{Filename: entry.Filename, Content: text, Source: FromContentAPI}
		} else {
			log.Debug("content not decodable as text, falling back to patch")
		}
	}

	if entry.Patch != "" {
		return &ChangedFile{Filename: entry.Filename, Content: entry.Patch, Source: FromPatch}
	}

	return &ChangedFile{Filename: entry.Filename, Content: noContent, Source: FromNothing}
}

func decodeBlob(blob *Blob) (text string, ok bool) {
	if blob == nil {
		return
	}

	switch strings.ToLower(blob.Encoding) {
	case "base64":
		cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(blob.Content)
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			return
		}
		text = string(decoded)
	case "", "utf-8":
		text = blob.Content
	default:
		return
	}

	ok = utf8.ValidString(text)

	return
}
