package source

import (
	"context"
	"time"
)

const noContent = "No content available"

type (
	// Repository on the code host, with the credentials of the admin who owns the project
	Repo struct {
		Owner string
		Name  string
		Token string
	}

	PullRequest struct {
		Number    int
		Title     string
		State     string
		Developer string
		HeadSHA   string
		CreatedAt time.Time
		MergedAt  *time.Time
	}

	// One entry of a pull request's file listing
	FileEntry struct {
		Filename string
		Status   string
		Patch    string
	}

	// Content API response for one file
	Blob struct {
		Encoding string
		Content  string
	}

	ChangedFile struct {
		Filename string
		Content  string
		Source   ContentSource
	}

	ContentSource string

	CodeHost interface {
		CheckRepository(ctx context.Context, repo *Repo) error
		ListPullRequests(ctx context.Context, repo *Repo) ([]*PullRequest, error)
		GetPullRequest(ctx context.Context, repo *Repo, number int) (*PullRequest, error)
		ListFiles(ctx context.Context, repo *Repo, number int) ([]*FileEntry, error)
		GetBlob(ctx context.Context, repo *Repo, path, ref string) (*Blob, error)
		Approve(ctx context.Context, repo *Repo, number int, body string) error
		Merge(ctx context.Context, repo *Repo, number int) error
		Close(ctx context.Context, repo *Repo, number int) error
		CreateHook(ctx context.Context, repo *Repo, url, secret string, events []string) (hookID int64, err error)
	}
)

const (
	FromContentAPI ContentSource = "content"
	FromPatch      ContentSource = "patch"
	FromNothing    ContentSource = "none"
)

func (pr *PullRequest) Closed() bool {
	return pr.State == "closed"
}

// Abbreviated head commit id
func (pr *PullRequest) Version() string {
	if len(pr.HeadSHA) > 7 {
		return pr.HeadSHA[:7]
	}
	return pr.HeadSHA
}
