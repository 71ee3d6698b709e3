package pulls

import (
	"strings"

	"github.com/chainaudit/chainaudit/pkg/manip"
	"github.com/chainaudit/chainaudit/pkg/source"
)

type Status string

const (
	Pending  Status = "pending"
	Approved Status = "approved"
	Rejected Status = "rejected"
)

func ValidStatus(value string) bool {
	switch Status(value) {
	case Pending, Approved, Rejected:
		return true
	}
	return false
}

// Merged wins over closed
func Classify(pr *source.PullRequest) Status {
	switch {
	case pr.MergedAt != nil:
		return Approved
	case pr.Closed():
		return Rejected
	default:
		return Pending
	}
}

// Approved and rejected counts per developer login for one listing pass, logins compare case-insensitively
type Tally struct {
	approved map[string]int
	rejected map[string]int
}

func NewTally() *Tally {
	return &Tally{approved: map[string]int{}, rejected: map[string]int{}}
}

func (t *Tally) Add(developer string, status Status) {
	developer = strings.ToLower(developer)
	switch status {
	case Approved:
		t.approved[developer]++
	case Rejected:
		t.rejected[developer]++
	}
}

func (t *Tally) Score(developer string) int {
	developer = strings.ToLower(developer)
	return t.approved[developer] - t.rejected[developer]
}

func (t *Tally) Developers() (result []string) {
	seen := manip.NewEmptyStringSet()
	for _, counts := range []map[string]int{t.approved, t.rejected} {
		for developer := range counts {
			if seen.Add(developer) {
				result = append(result, developer)
			}
		}
	}
	return
}
