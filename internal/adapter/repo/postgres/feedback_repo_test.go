package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

func TestFeedbackRepo_Upsert(t *testing.T) {
	t.Parallel()

	fb := domain.Feedback{
		InterviewID:    "iv-1",
		UserID:         "u-1",
		TotalScore:     72,
		CategoryScores: []domain.CategoryScore{{Name: "Communication Skills", Score: 80, Comment: "clear"}},
	}

	t.Run("new id", func(t *testing.T) {
		t.Parallel()
		pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")}
		id, err := postgres.NewFeedbackRepo(pool).Upsert(context.Background(), fb)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Contains(t, pool.calls[0].sql, "ON CONFLICT (id) DO UPDATE")
		assert.JSONEq(t, `[{"name":"Communication Skills","score":80,"comment":"clear"}]`, string(pool.calls[0].args[4].([]byte)))
	})

	t.Run("overwrite keeps id", func(t *testing.T) {
		t.Parallel()
		pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")}
		f := fb
		f.ID = "fb-9"
		id, err := postgres.NewFeedbackRepo(pool).Upsert(context.Background(), f)
		require.NoError(t, err)
		assert.Equal(t, "fb-9", id)
	})

	t.Run("id owned by someone else", func(t *testing.T) {
		t.Parallel()
		pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 0")}
		f := fb
		f.ID = "fb-other"
		_, err := postgres.NewFeedbackRepo(pool).Upsert(context.Background(), f)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestFeedbackRepo_GetByInterview(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	pool := &poolStub{row: rowStub{vals: []any{
		"fb-1", "iv-1", "u-1", 64,
		[]byte(`[{"name":"Technical Knowledge","score":60,"comment":"ok"}]`),
		[]string{"curious"}, []string{"depth"}, "solid", now,
	}}}

	f, err := postgres.NewFeedbackRepo(pool).GetByInterview(context.Background(), "iv-1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, 64, f.TotalScore)
	require.Len(t, f.CategoryScores, 1)
	assert.Equal(t, "Technical Knowledge", f.CategoryScores[0].Name)
	assert.Equal(t, []string{"curious"}, f.Strengths)
	assert.Equal(t, []any{"iv-1", "u-1"}, pool.calls[0].args)
}

func TestFeedbackRepo_GetByInterview_Errors(t *testing.T) {
	t.Parallel()

	missing := &poolStub{row: rowStub{err: pgx.ErrNoRows}}
	_, err := postgres.NewFeedbackRepo(missing).GetByInterview(context.Background(), "iv-1", "u-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	corrupt := &poolStub{row: rowStub{vals: []any{"fb-1", "iv-1", "u-1", 1, []byte(`{`), nil, nil, "", time.Now()}}}
	_, err = postgres.NewFeedbackRepo(corrupt).GetByInterview(context.Background(), "iv-1", "u-1")
	assert.ErrorIs(t, err, domain.ErrSchemaInvalid)
}
