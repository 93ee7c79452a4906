package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/clock"
	"github.com/campuskit/billing/internal/config"
	"github.com/campuskit/billing/internal/sequence/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var sequenceDBSeq int

func newSequenceEnv(t *testing.T) (*Service, *snowflake.Node) {
	t.Helper()

	sequenceDBSeq++
	dsn := fmt.Sprintf("file:sequence_svc_%d?mode=memory&cache=shared&_busy_timeout=5000", sequenceDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.DocumentNumber{}))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)),
		CfgHolder: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})
	return svc, node
}

func TestNext_SequentialPerScope(t *testing.T) {
	svc, node := newSequenceEnv(t)
	ctx := context.Background()
	tenantID := node.Generate()

	first, err := svc.Next(ctx, nil, tenantID, domain.PrefixReceipt)
	require.NoError(t, err)
	assert.Equal(t, "RCP-2026-000001", first)

	second, err := svc.Next(ctx, nil, tenantID, domain.PrefixReceipt)
	require.NoError(t, err)
	assert.Equal(t, "RCP-2026-000002", second)

	// A different prefix runs its own counter.
	bill, err := svc.Next(ctx, nil, tenantID, domain.PrefixBill)
	require.NoError(t, err)
	assert.Equal(t, "BIL-2026-000001", bill)
}

func TestNext_IsolatedPerTenant(t *testing.T) {
	svc, node := newSequenceEnv(t)
	ctx := context.Background()

	a := node.Generate()
	b := node.Generate()

	for i := 1; i <= 3; i++ {
		got, err := svc.Next(ctx, nil, a, domain.PrefixReceipt)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("RCP-2026-%06d", i), got)
	}

	got, err := svc.Next(ctx, nil, b, domain.PrefixReceipt)
	require.NoError(t, err)
	assert.Equal(t, "RCP-2026-000001", got)
}

func TestNext_RetriesPastLostReservation(t *testing.T) {
	svc, node := newSequenceEnv(t)
	ctx := context.Background()
	tenantID := node.Generate()

	// Another caller reserving the same suffix makes the insert hit the
	// unique scope index and report nothing written.
	doc := domain.DocumentNumber{
		ID:        node.Generate(),
		TenantID:  tenantID,
		Prefix:    domain.PrefixReceipt,
		Year:      2026,
		Suffix:    1,
		Number:    Format(domain.PrefixReceipt, 2026, 1),
		CreatedAt: time.Now().UTC(),
	}
	reserved, err := svc.reserve(ctx, svc.db, doc)
	require.NoError(t, err)
	require.True(t, reserved)

	doc.ID = node.Generate()
	reserved, err = svc.reserve(ctx, svc.db, doc)
	require.NoError(t, err)
	assert.False(t, reserved)

	// Next re-reads the maximum and lands past the taken suffix.
	got, err := svc.Next(ctx, nil, tenantID, domain.PrefixReceipt)
	require.NoError(t, err)
	assert.Equal(t, "RCP-2026-000002", got)
}

func TestNext_ConcurrentCallersGetDistinctNumbers(t *testing.T) {
	svc, node := newSequenceEnv(t)
	ctx := context.Background()
	tenantID := node.Generate()

	const callers = 4
	results := make(chan string, callers)
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Next(ctx, nil, tenantID, domain.PrefixReceipt)
			if err != nil {
				errs <- err
				return
			}
			results <- got
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	for got := range results {
		assert.False(t, seen[got], "duplicate number %s", got)
		seen[got] = true
	}
	require.Len(t, seen, callers)
	for i := 1; i <= callers; i++ {
		assert.True(t, seen[fmt.Sprintf("RCP-2026-%06d", i)])
	}
}

func TestNext_NormalizesPrefix(t *testing.T) {
	svc, node := newSequenceEnv(t)
	ctx := context.Background()
	tenantID := node.Generate()

	got, err := svc.Next(ctx, nil, tenantID, "  rcp ")
	require.NoError(t, err)
	assert.Equal(t, "RCP-2026-000001", got)
}

func TestNext_RejectsBadInput(t *testing.T) {
	svc, node := newSequenceEnv(t)
	ctx := context.Background()

	_, err := svc.Next(ctx, nil, 0, domain.PrefixReceipt)
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	_, err = svc.Next(ctx, nil, node.Generate(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidPrefix)
}

func TestFormat_PadsToSixDigits(t *testing.T) {
	assert.Equal(t, "RCP-2026-000007", Format("RCP", 2026, 7))
	assert.Equal(t, "BIL-2026-123456", Format("BIL", 2026, 123456))
	assert.Equal(t, "RCP-2026-1234567", Format("RCP", 2026, 1234567))
}
