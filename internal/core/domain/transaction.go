package domain

import (
	"github.com/google/uuid"
	"go.trai.ch/zerr"
)

// TxState is the lifecycle state of an installation transaction.
type TxState string

const (
	// TxPlanned means the diff is known and nothing has been written.
	TxPlanned TxState = "planned"
	// TxStaged means every write exists in the staging area.
	TxStaged TxState = "staged"
	// TxCommitted means staged files were swapped in and the lockfile saved.
	TxCommitted TxState = "committed"
	// TxRolledBack means staging was discarded and the project left untouched.
	TxRolledBack TxState = "rolled_back"
)

var txTransitions = map[TxState][]TxState{
	TxPlanned: {TxStaged, TxRolledBack},
	TxStaged:  {TxCommitted, TxRolledBack},
}

// FileOpKind is the kind of a staged filesystem operation.
type FileOpKind string

const (
	// OpWrite places a staged file at Path.
	OpWrite FileOpKind = "write"
	// OpDelete removes Path.
	OpDelete FileOpKind = "delete"
	// OpMerge replaces a shared Compose override file with its merged form.
	OpMerge FileOpKind = "merge"
)

// FileOp is one filesystem operation of a transaction.
type FileOp struct {
	Kind FileOpKind
	// Path is the project-relative destination, slash separated.
	Path string
	// Staged is the absolute path of the staged content for writes and merges.
	Staged string
	// Package is the package the operation belongs to, empty for shared files.
	Package PackageID
}

// Transaction is one install, upgrade or uninstall run. It lives only for the
// duration of the call and is never persisted.
type Transaction struct {
	ID    uuid.UUID
	State TxState
	Diff  LockDiff
	Ops   []FileOp

	// Previous is the lockfile snapshot the transaction started from.
	Previous *Lockfile
	// Next is the lockfile persisted on commit.
	Next *Lockfile

	// Proposed is the resolution the transaction applies.
	Proposed ResolvedSet

	// Manifests holds the manifest of every installed or upgraded package.
	Manifests map[PackageID]*Manifest

	// Values holds the effective parameter values of every installed or upgraded package.
	Values map[PackageID]map[string]string

	// Root is the project directory and OverrideFile the managed Compose
	// file relative to it.
	Root         string
	OverrideFile string

	// Workers bounds concurrent staging of packages.
	Workers int

	// StagingDir is the temporary working area, removed on commit or rollback.
	StagingDir string
}

// NewTransaction creates a planned transaction.
func NewTransaction(previous *Lockfile, proposed ResolvedSet, diff LockDiff) *Transaction {
	return &Transaction{
		ID:       uuid.New(),
		State:    TxPlanned,
		Diff:     diff,
		Previous: previous,
		Proposed: proposed,
	}
}

// Transition moves the transaction to state to if the lifecycle allows it.
func (t *Transaction) Transition(to TxState) error {
	for _, allowed := range txTransitions[t.State] {
		if allowed == to {
			t.State = to
			return nil
		}
	}
	var err error = zerr.With(zerr.Wrap(ErrInvalidTransition, "transition not allowed"), "from", string(t.State))
	err = zerr.With(err, "to", string(to))
	return zerr.With(err, "transaction", t.ID.String())
}

// Done reports whether the transaction reached a terminal state.
func (t *Transaction) Done() bool {
	return t.State == TxCommitted || t.State == TxRolledBack
}
