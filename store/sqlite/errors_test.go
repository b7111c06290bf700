package sqlite

import (
	"errors"
	"fmt"
	"testing"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/warp/stock-engine/ledger"
)

func TestMapErr_BusyAndLocked(t *testing.T) {
	for _, code := range []sqlite3.ErrNo{sqlite3.ErrBusy, sqlite3.ErrLocked} {
		err := mapErr("item-1", fmt.Errorf("commit tx: %w", sqlite3.Error{Code: code}))

		assert.ErrorIs(t, err, ledger.ErrConcurrency)
		assert.True(t, ledger.IsRetryable(err))

		var ce *ledger.ConcurrencyError
		assert.ErrorAs(t, err, &ce)
		assert.Equal(t, ledger.ItemID("item-1"), ce.ItemID)
	}
}

func TestMapErr_PassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("disk I/O error")

	err := mapErr("item-1", plain)

	assert.Equal(t, plain, err)
	assert.False(t, ledger.IsRetryable(err))

	constraint := sqlite3.Error{Code: sqlite3.ErrConstraint}
	assert.NotErrorIs(t, mapErr("item-1", constraint), ledger.ErrConcurrency)
}
