package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Apply(ctx, []Mutation{
		{Key: "dapp_name", Value: []byte("sunny")},
		{Key: "owner", Value: []byte("100")},
	}))

	v, ok, err := s.Get(ctx, "dapp_name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sunny", string(v))

	require.NoError(t, s.Apply(ctx, []Mutation{
		{Key: "owner", Value: []byte("60")},
		{Key: "dapp_name", Delete: true},
	}))

	_, ok, err = s.Get(ctx, "dapp_name")
	require.NoError(t, err)
	assert.False(t, ok)

	v, _, _ = s.Get(ctx, "owner")
	assert.Equal(t, "60", string(v))
}

func TestSQLite_ApplyRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS kv")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := NewSQLite(context.Background(), db)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv")).
		WithArgs("a", []byte("1")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM kv")).
		WithArgs("b").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = s.Apply(context.Background(), []Mutation{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Delete: true},
	})
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_GetPropagatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS kv")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLite(context.Background(), db)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM kv WHERE key = ?")).
		WithArgs("k").
		WillReturnError(sqlmock.ErrCancelled)

	_, _, err = s.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
