package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kava-labs/kava-batch-service/clients/database"
	"github.com/kava-labs/kava-batch-service/clients/database/postgres"
	"github.com/kava-labs/kava-batch-service/clients/database/postgres/migrations"
	"github.com/kava-labs/kava-batch-service/logging"
)

func TestUnitTest_NewClientRequiresDatabase(t *testing.T) {
	_, err := postgres.NewClient(context.Background(), postgres.DatabaseConfig{})
	require.ErrorIs(t, err, postgres.ErrNoDatabase)
}

func TestUnitTest_NewClientStopsWaitingWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	// nothing listens on port 1
	_, err := postgres.NewClient(ctx, postgres.DatabaseConfig{
		DatabaseName:        "postgres",
		DatabaseEndpointURL: "127.0.0.1:1",
		ReadTimeoutSeconds:  1,
		ConnectMaxElapsed:   time.Hour,
		Logger:              logging.Nop(),
	})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestUnitTest_HealthCheckNoDatabase(t *testing.T) {
	client := &postgres.Client{}
	require.ErrorIs(t, client.HealthCheck(), postgres.ErrNoDatabase)
}

// newTestClient connects to the database named by TEST_DATABASE_ENDPOINT_URL,
// skipping the test when it is not set
func newTestClient(t *testing.T) *postgres.Client {
	endpoint := os.Getenv("TEST_DATABASE_ENDPOINT_URL")
	if endpoint == "" {
		t.Skip("TEST_DATABASE_ENDPOINT_URL not set")
	}

	client, err := postgres.NewClient(context.Background(), postgres.DatabaseConfig{
		DatabaseName:               os.Getenv("TEST_DATABASE_NAME"),
		DatabaseEndpointURL:        endpoint,
		DatabaseUsername:           os.Getenv("TEST_DATABASE_USERNAME"),
		DatabasePassword:           os.Getenv("TEST_DATABASE_PASSWORD"),
		ReadTimeoutSeconds:         30,
		DatabaseMaxIdleConnections: 2,
		DatabaseMaxOpenConnections: 5,
		ConnectMaxElapsed:          10 * time.Second,
		Logger:                     logging.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	_, err = client.Migrate(context.Background(), migrations.Migrations)
	require.NoError(t, err)

	return client
}

func TestIntegrationTest_SaveAndListBatchRequestMetrics(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	metric := &database.BatchRequestMetric{
		BatchID:                     "01HZZZZZZZZZZZZZZZZZZZZZZZ",
		Hostname:                    "localhost",
		Parts:                       3,
		FailedParts:                 1,
		Groups:                      1,
		ResponseLatencyMilliseconds: 12,
		RequestTime:                 time.Now(),
	}
	require.NoError(t, client.SaveBatchRequestMetric(ctx, metric))
	require.NotZero(t, metric.ID)

	metrics, _, err := client.ListBatchRequestMetricsWithPagination(ctx, metric.ID-1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, metrics)
	assert.Equal(t, metric.BatchID, metrics[0].BatchID)
	assert.Equal(t, int64(3), metrics[0].Parts)

	require.NoError(t, client.DeleteBatchRequestMetricsOlderThanNDays(ctx, 0))
}
