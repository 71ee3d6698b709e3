package vars

const (

	// ID
	Name        = "chainaudit"
	Description = "Audit pull requests and commits of managed projects, and mirror the results to a ledger contract."
	URL         = "https://github.com/chainaudit/chainaudit"
)

// Set at build time with -ldflags "-X github.com/chainaudit/chainaudit/pkg/app/vars.Version=..."
var Version = "dev"
