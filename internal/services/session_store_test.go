package services

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/lapig-ufg/pasto-legal/internal/models"
	"github.com/lapig-ufg/pasto-legal/internal/resolution"
)

// testDB connects to TEST_DATABASE_URL or skips.
func testDB(t *testing.T) *bun.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))
	return db
}

func TestBunSessionStoreRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	store, err := NewBunSessionStore(db, 4)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))

	id := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = db.NewDelete().Model((*ConversationState)(nil)).Where("conversation_id = ?", id).Exec(ctx)
	})

	st, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, resolution.ModeIdle, st.Mode())

	r := resolution.NewResolver(&stubClient{features: []models.PropertyFeature{feature(1), feature(2)}}, nil, time.Second, zap.NewNop())
	_, err = r.Lookup(ctx, st, pin)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, id, st))

	// A second store has a cold cache and must read from Postgres.
	cold, err := NewBunSessionStore(db, 4)
	require.NoError(t, err)
	got, err := cold.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, resolution.ModeAwaitingList, got.Mode())
	require.Len(t, got.CandidateList(), 2)
	assert.Equal(t, feature(2).Code, got.CandidateList()[1].Code)

	_, err = r.SelectFromList(got, 1)
	require.NoError(t, err)
	require.NoError(t, cold.Save(ctx, id, got))

	again, err := NewBunSessionStore(db, 4)
	require.NoError(t, err)
	final, err := again.Load(ctx, id)
	require.NoError(t, err)
	sel, ok := final.Selected()
	require.True(t, ok)
	assert.Equal(t, feature(1).Code, sel.Code)
}

func TestFeedbackServiceRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	svc := NewFeedbackService(db)
	require.NoError(t, svc.EnsureSchema(ctx))

	conv := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = db.NewDelete().Model((*models.Feedback)(nil)).Where("conversation_id = ?", conv).Exec(ctx)
	})

	created, err := svc.CreateFeedback(ctx, models.CreateFeedbackRequest{
		ConversationID:    conv,
		OriginalQuestion:  "Qual a idade da pastagem?",
		FrustrationReason: "não respondeu",
		DesiredAnswer:     "faixas de idade em hectares",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	list, err := svc.GetFeedbackByConversation(ctx, conv)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}
