package ledger

import (
	"strings"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	methodLogPullRequest = "logPullRequest"
	methodGetPullRequest = "getPullRequest"
	methodLogCommit      = "logCommit"
	eventPullRequest     = "PullRequestLogged"
)

// Registry contract interface, fixed for the deployed contract
const registryABI = `[
  {"type": "function", "name": "logPullRequest", "stateMutability": "nonpayable",
   "inputs": [
     {"name": "pullRequestId", "type": "uint256"},
     {"name": "projectName", "type": "string"},
     {"name": "developer", "type": "string"},
     {"name": "timestamp", "type": "string"},
     {"name": "status", "type": "string"}],
   "outputs": []},
  {"type": "function", "name": "getPullRequest", "stateMutability": "view",
   "inputs": [{"name": "pullRequestId", "type": "uint256"}],
   "outputs": [
     {"name": "projectName", "type": "string"},
     {"name": "developer", "type": "string"},
     {"name": "timestamp", "type": "string"},
     {"name": "status", "type": "string"},
     {"name": "isLogged", "type": "bool"}]},
  {"type": "function", "name": "logCommit", "stateMutability": "nonpayable",
   "inputs": [
     {"name": "commitHash", "type": "string"},
     {"name": "projectName", "type": "string"},
     {"name": "author", "type": "string"},
     {"name": "timestamp", "type": "string"}],
   "outputs": []},
  {"type": "event", "name": "PullRequestLogged", "anonymous": false,
   "inputs": [
     {"name": "pullRequestId", "type": "uint256", "indexed": true},
     {"name": "projectName", "type": "string", "indexed": false},
     {"name": "developer", "type": "string", "indexed": false},
     {"name": "status", "type": "string", "indexed": false}]},
  {"type": "event", "name": "CommitLogged", "anonymous": false,
   "inputs": [
     {"name": "commitHash", "type": "string", "indexed": false},
     {"name": "projectName", "type": "string", "indexed": false},
     {"name": "author", "type": "string", "indexed": false}]}
]`

func parseRegistryABI() (result abi.ABI, err error) {
	if result, err = abi.JSON(strings.NewReader(registryABI)); err != nil {
		err = errors.Wrap(err, "unable to parse registry ABI")
	}
	return
}
