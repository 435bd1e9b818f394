package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectorDialsLazilyOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	var dials atomic.Int32
	connector := NewConnectorWithOpener(func(ctx context.Context) (Pool, error) {
		dials.Add(1)
		return mock, nil
	})
	assert.False(t, connector.Connected())
	assert.Zero(t, dials.Load())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := connector.Acquire(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), dials.Load())
	assert.True(t, connector.Connected())
}

func TestConnectorRetriesAfterFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	attempts := 0
	connector := NewConnectorWithOpener(func(ctx context.Context) (Pool, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection refused")
		}
		return mock, nil
	})

	var count int
	err = connector.QueryRow(context.Background(), "SELECT 1").Scan(&count)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, connector.Connected())

	mock.ExpectQuery("SELECT 1").WillReturnRows(pgxmock.NewRows([]string{"n"}).AddRow(1))
	require.NoError(t, connector.QueryRow(context.Background(), "SELECT 1").Scan(&count))
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectorExecAndQueryPropagateDialError(t *testing.T) {
	connector := NewConnectorWithOpener(func(ctx context.Context) (Pool, error) {
		return nil, errors.New("down")
	})

	_, err := connector.Exec(context.Background(), "DELETE FROM users")
	assert.Error(t, err)

	_, err = connector.Query(context.Background(), "SELECT 1")
	assert.Error(t, err)

	assert.Error(t, connector.Ping(context.Background()))
}

func TestConnectorPingAndClose(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	connector := NewConnectorWithOpener(func(ctx context.Context) (Pool, error) {
		return mock, nil
	})

	mock.ExpectPing()
	require.NoError(t, connector.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectClose()
	connector.Close()
	assert.False(t, connector.Connected())
}
