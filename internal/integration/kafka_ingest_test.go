//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/aquifer-watch-service/internal/adapter/csvstore"
	"github.com/couchcryptid/aquifer-watch-service/internal/adapter/kafka"
	"github.com/couchcryptid/aquifer-watch-service/internal/adapter/sqlite"
	"github.com/couchcryptid/aquifer-watch-service/internal/config"
	"github.com/couchcryptid/aquifer-watch-service/internal/domain"
	"github.com/couchcryptid/aquifer-watch-service/internal/observability"
	"github.com/couchcryptid/aquifer-watch-service/internal/pipeline"
)

const testTopic = "test-readings"

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaTopic:         testTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

// loadMockReadings converts a mock CSV into JSON readings for source.
func loadMockReadings(t *testing.T, source string) []kafkago.Message {
	t.Helper()

	f, err := os.Open(filepath.Join("..", "..", "data", "mock", source))
	require.NoError(t, err)
	defer f.Close()

	samples, err := csvstore.ReadSamples(f)
	require.NoError(t, err)

	msgs := make([]kafkago.Message, 0, len(samples))
	for _, s := range samples {
		payload, err := json.Marshal(map[string]any{
			"source":        source,
			"date":          s.Date.Format(domain.DateLayout),
			"water_level_m": s.Level,
		})
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Key: []byte(source), Value: payload})
	}
	return msgs
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "aquifer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// waitForSamples polls the store until source holds want samples.
func waitForSamples(ctx context.Context, t *testing.T, store *sqlite.Store, source string, want int) []domain.Sample {
	t.Helper()
	for {
		samples, err := store.LoadSamples(ctx, source)
		require.NoError(t, err)
		if len(samples) >= want {
			return samples
		}
		select {
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %d samples of %s, have %d", want, source, len(samples))
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// TestKafkaReader verifies the adapter round-trips a reading and commits it.
func TestKafkaReader(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)
	cfg := testConfig(broker, "test-reader")

	payload := []byte(`{"source":"jaipur_rajasthan.csv","date":"2024-01-02","water_level_m":1.93}`)
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("jaipur_rajasthan.csv"), Value: payload}))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	// The consumer group may need time to rebalance before partitions are assigned.
	var batch []domain.RawMessage
	for len(batch) == 0 {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testTopic, raw.Topic)
	require.NotNil(t, raw.Commit)
	require.NoError(t, raw.Commit(ctx))

	reading, err := pipeline.NewTransformer(discardLogger()).Transform(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "jaipur_rajasthan.csv", reading.Source)
	assert.Equal(t, 1.93, reading.Level)
}

// TestPipelineEndToEnd streams a full mock series through Kafka into SQLite and
// checks that the stored series analyzes exactly like the CSV it came from.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)
	cfg := testConfig(broker, "test-pipeline")

	const source = "nagpur_maharashtra.csv"
	msgs := loadMockReadings(t, source)

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testTopic, BatchSize: 100}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	store := openStore(t)

	p := pipeline.New(reader, pipeline.NewTransformer(discardLogger()), store,
		discardLogger(), observability.NewMetricsForTesting(), 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	stored := waitForSamples(ctx, t, store, source, len(msgs))
	pipelineCancel()
	require.NoError(t, <-errCh)

	assert.True(t, p.Ready())
	require.Len(t, stored, len(msgs))

	got, err := domain.Analyze(stored, domain.DefaultParams(), domain.DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, domain.BandSemiCritical, got.Condition.Band)
	assert.Len(t, got.Forecast.Points, domain.DefaultHorizon)

	ids, err := store.ListSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{source}, ids)
}

// TestPipelinePoisonPill verifies that an unparseable message is skipped and
// ingest continues with the next reading.
func TestPipelinePoisonPill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)
	cfg := testConfig(broker, "test-poison")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("jaipur_rajasthan.csv"), Value: []byte(`{"date":"2024-01-02","water_level_m":"n/a"}`)},
		kafkago.Message{Key: []byte("jaipur_rajasthan.csv"), Value: []byte(`{"date":"2024-01-03","water_level_m":1.88}`)},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	store := openStore(t)

	p := pipeline.New(reader, pipeline.NewTransformer(discardLogger()), store,
		discardLogger(), observability.NewMetricsForTesting(), 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	waitForSamples(ctx, t, store, "jaipur_rajasthan.csv", 1)

	// Give the loop one more flush interval to prove nothing else lands.
	time.Sleep(cfg.BatchFlushInterval)
	pipelineCancel()
	require.NoError(t, <-errCh)

	stored, err := store.LoadSamples(ctx, "jaipur_rajasthan.csv")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 1.88, stored[0].Level)
	assert.Equal(t, time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC), stored[0].Date)

	ids, err := store.ListSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"jaipur_rajasthan.csv"}, ids)
}
