package ledger

import (
	"context"
	"testing"

	"github.com/richardliu001/eventcore/internal/idgen"
	"github.com/richardliu001/eventcore/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) *Ledger {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ProcessedEvent{}))
	return New(db, idgen.New())
}

func TestHasFalseWhenAbsent(t *testing.T) {
	l := newTestLedger(t)
	has, err := l.Has(context.Background(), "evt1", "AuditHandler")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRecordThenHas(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, "evt1", "AuditHandler"))
	has, err := l.Has(ctx, "evt1", "AuditHandler")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRecordDuplicateSucceedsSilently(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, "evt1", "AuditHandler"))
	require.NoError(t, l.Record(ctx, "evt1", "AuditHandler")) // R2: second record is a no-op, not an error
}

func TestRecordDistinguishesHandlerName(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, "evt1", "AuditHandler"))
	has, err := l.Has(ctx, "evt1", "OtherHandler")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRecordTx_RolledBackTxLeavesNoWitness(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	err := l.DB.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, l.RecordTx(ctx, tx, "evt1", "AuditHandler"))
		return assert.AnError
	})
	require.Error(t, err)

	has, hasErr := l.Has(ctx, "evt1", "AuditHandler")
	require.NoError(t, hasErr)
	assert.False(t, has, "a rolled-back transaction must not leave a ledger witness (spec I4)")
}

func TestRecordTx_CommittedTxIsVisibleThroughHas(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.DB.Transaction(func(tx *gorm.DB) error {
		return l.RecordTx(ctx, tx, "evt1", "AuditHandler")
	}))

	has, err := l.Has(ctx, "evt1", "AuditHandler")
	require.NoError(t, err)
	assert.True(t, has)
}
