package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/compak/internal/core/domain"
)

func TestTransaction_Transition(t *testing.T) {
	tests := []struct {
		name  string
		path  []domain.TxState
		final domain.TxState
		fails domain.TxState
	}{
		{name: "commit", path: []domain.TxState{domain.TxStaged, domain.TxCommitted}, final: domain.TxCommitted},
		{name: "rollback before staging", path: []domain.TxState{domain.TxRolledBack}, final: domain.TxRolledBack},
		{name: "rollback after staging", path: []domain.TxState{domain.TxStaged, domain.TxRolledBack}, final: domain.TxRolledBack},
		{name: "commit without staging", fails: domain.TxCommitted, final: domain.TxPlanned},
		{name: "restage", path: []domain.TxState{domain.TxStaged}, fails: domain.TxStaged, final: domain.TxStaged},
		{name: "rollback after commit", path: []domain.TxState{domain.TxStaged, domain.TxCommitted}, fails: domain.TxRolledBack, final: domain.TxCommitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := domain.NewTransaction(domain.NewLockfile(), domain.ResolvedSet{}, domain.LockDiff{})
			require.Equal(t, domain.TxPlanned, tx.State)
			for _, s := range tt.path {
				require.NoError(t, tx.Transition(s))
			}
			if tt.fails != "" {
				require.ErrorIs(t, tx.Transition(tt.fails), domain.ErrInvalidTransition)
			}
			assert.Equal(t, tt.final, tx.State)
			assert.Equal(t, tt.final == domain.TxCommitted || tt.final == domain.TxRolledBack, tx.Done())
		})
	}
}

func TestNewTransaction_UniqueIDs(t *testing.T) {
	a := domain.NewTransaction(domain.NewLockfile(), nil, domain.LockDiff{})
	b := domain.NewTransaction(domain.NewLockfile(), nil, domain.LockDiff{})
	assert.NotEqual(t, a.ID, b.ID)
}
