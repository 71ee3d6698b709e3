package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/ledger"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/chainaudit/chainaudit/pkg/retry"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

func TestLedger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ledger Test Suite")
}

// In-memory ledger: submissions become logged entries with an event
type fakeLedger struct {
	logged      map[int64]bool
	events      map[int64]string
	missingTx   map[string]bool
	queryErr    error
	submitErrs  []error
	submitCalls int
	lookupCalls int
	verifyCalls int
	commitCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{logged: map[int64]bool{}, events: map[int64]string{}, missingTx: map[string]bool{}}
}

func (f *fakeLedger) IsPullRequestLogged(_ context.Context, id int64) (bool, error) {
	if f.queryErr != nil {
		return false, f.queryErr
	}
	return f.logged[id], nil
}

func (f *fakeLedger) FindPullRequestLog(_ context.Context, id int64) (string, bool, error) {
	f.lookupCalls++
	txHash, ok := f.events[id]
	return txHash, ok, nil
}

func (f *fakeLedger) TransactionExists(_ context.Context, txHash string) (bool, error) {
	f.verifyCalls++
	return !f.missingTx[txHash], nil
}

func (f *fakeLedger) LogPullRequest(_ context.Context, entry *ledger.PullRequestEntry) (string, error) {
	f.submitCalls++
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	txHash := "0xtx" + entry.ProjectName
	f.logged[entry.ID] = true
	f.events[entry.ID] = txHash
	return txHash, nil
}

func (f *fakeLedger) LogCommit(context.Context, *ledger.CommitEntry) (string, error) {
	f.commitCalls++
	return "0xcommit", nil
}

type noSleep struct {
	pauses []time.Duration
}

func (n *noSleep) sleep(_ context.Context, d time.Duration) error {
	n.pauses = append(n.pauses, d)
	return nil
}

func newTestReconciler(fake *fakeLedger, verifyTx bool) (*ledger.Reconciler, *noSleep) {
	sleeper := &noSleep{}
	policy := &retry.Policy{MaxAttempts: ledger.DefaultAttempts, Backoff: retry.Constant(ledger.DefaultPause), Sleep: sleeper.sleep}
	return ledger.NewReconciler(fake, policy, verifyTx, logg.NewNopLogg()), sleeper
}

func entry(id int64) *ledger.PullRequestEntry {
	return &ledger.PullRequestEntry{ID: id, ProjectName: "proj1", Developer: "dev1", Timestamp: "2025-01-01T00:00:00Z", Status: "approved"}
}

var _ = Describe("Reconciler", func() {
	var fake *fakeLedger
	ctx := context.Background()

	BeforeEach(func() {
		fake = newFakeLedger()
	})

	Describe("Idempotence", func() {

		Context("If a pull request is reconciled twice in one run", func() {

			It("it is submitted once", func() {
				reconciler, _ := newTestReconciler(fake, false)

				// Fire
				first, err1 := reconciler.Reconcile(ctx, entry(1))
				second, err2 := reconciler.Reconcile(ctx, entry(1))

				Expect(err1).To(BeNil())
				Expect(err2).To(BeNil())
				Expect(fake.submitCalls).To(Equal(1))
				Expect(first).To(Equal(second))
				Expect(first.State).To(Equal(ledger.StateLogged))
			})
		})

		Context("If an already logged pull request is reconciled by later runs", func() {

			It("no second transaction is submitted", func() {
				first, _ := newTestReconciler(fake, false)
				_, err := first.Reconcile(ctx, entry(1))
				Expect(err).To(BeNil())

				// Fire
				for i := 0; i < 2; i++ {
					reconciler, _ := newTestReconciler(fake, false)
					outcome, err := reconciler.Reconcile(ctx, entry(1))

					Expect(err).To(BeNil())
					Expect(outcome.State).To(Equal(ledger.StateLogged))
					Expect(outcome.TxHash).To(Equal("0xtxproj1"))
				}

				Expect(fake.submitCalls).To(Equal(1))
				Expect(fake.lookupCalls).To(Equal(2))
			})
		})
	})

	DescribeTable("Logged entries",
		func(hasEvent, verifyTx, txMissing bool, expState ledger.State, expTx string) {
			fake.logged[7] = true
			if hasEvent {
				fake.events[7] = "0xabc"
			}
			fake.missingTx["0xabc"] = txMissing
			reconciler, _ := newTestReconciler(fake, verifyTx)

			// Fire
			outcome, err := reconciler.Reconcile(ctx, entry(7))

			Expect(err).To(BeNil())
			Expect(outcome.State).To(Equal(expState))
			Expect(outcome.TxHash).To(Equal(expTx))
			Expect(fake.submitCalls).To(Equal(0))
		},
		Entry("event found", true, false, false, ledger.StateLogged, "0xabc"),
		Entry("event found and transaction verified", true, true, false, ledger.StateLogged, "0xabc"),
		Entry("event found but transaction gone", true, true, true, ledger.StateNotFound, ledger.TxNotFound),
		Entry("transaction gone but verification off", true, false, true, ledger.StateLogged, "0xabc"),
		Entry("no event despite the flag", false, true, false, ledger.StateNotFound, ledger.TxNotFound),
	)

	Describe("Submission failures", func() {

		Context("If every attempt fails", func() {

			It("three attempts are made with a one second pause and the outcome is Failed", func() {
				boom := errors.New("receipt status 0")
				fake.submitErrs = []error{boom, boom, boom, boom}
				reconciler, sleeper := newTestReconciler(fake, false)

				// Fire
				outcome, err := reconciler.Reconcile(ctx, entry(2))

				Expect(err).To(BeNil())
				Expect(outcome.State).To(Equal(ledger.StateFailed))
				Expect(outcome.TxHash).To(Equal(ledger.TxFailed))
				Expect(fake.submitCalls).To(Equal(3))
				Expect(sleeper.pauses).To(Equal([]time.Duration{time.Second, time.Second}))
			})
		})

		Context("If the second attempt succeeds", func() {

			It("the outcome is Logged", func() {
				fake.submitErrs = []error{errors.New("nonce too low"), nil}
				reconciler, _ := newTestReconciler(fake, false)

				// Fire
				outcome, err := reconciler.Reconcile(ctx, entry(3))

				Expect(err).To(BeNil())
				Expect(outcome.State).To(Equal(ledger.StateLogged))
				Expect(fake.submitCalls).To(Equal(2))
			})
		})

		Context("If the account cannot pay", func() {

			It("the error is returned without retrying", func() {
				fake.submitErrs = []error{errors.Kindf(errors.InsufficientFunds, "insufficient balance")}
				reconciler, sleeper := newTestReconciler(fake, false)

				// Fire
				outcome, err := reconciler.Reconcile(ctx, entry(4))

				Expect(outcome).To(BeNil())
				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, errors.InsufficientFunds)).To(BeTrue())
				Expect(fake.submitCalls).To(Equal(1))
				Expect(sleeper.pauses).To(BeEmpty())
			})
		})

		Context("If the ledger cannot be queried", func() {

			It("nothing is submitted and the outcome is Failed", func() {
				fake.queryErr = errors.New("connection refused")
				reconciler, _ := newTestReconciler(fake, false)

				// Fire
				outcome, err := reconciler.Reconcile(ctx, entry(5))

				Expect(err).To(BeNil())
				Expect(outcome.TxHash).To(Equal(ledger.TxFailed))
				Expect(fake.submitCalls).To(Equal(0))
			})
		})
	})

	It("each run has its own id", func() {
		first, _ := newTestReconciler(fake, false)
		second, _ := newTestReconciler(fake, false)

		Expect(first.RunID()).To(Not(BeEmpty()))
		Expect(first.RunID()).To(Not(Equal(second.RunID())))
	})
})
