package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/world-population-etl/internal/clock"
	"github.com/JakeFAU/world-population-etl/internal/extract"
	"github.com/JakeFAU/world-population-etl/internal/metrics"
	"github.com/JakeFAU/world-population-etl/internal/normalize"
	"github.com/JakeFAU/world-population-etl/internal/population"
	pubmemory "github.com/JakeFAU/world-population-etl/internal/publisher/memory"
	"github.com/JakeFAU/world-population-etl/internal/sink/csvfile"
	blobmemory "github.com/JakeFAU/world-population-etl/internal/storage/memory"
	"github.com/JakeFAU/world-population-etl/internal/warehouse"
)

const page = `<html><body>
<table class="wikitable sortable">
<tr><th>Region</th><th>Density</th><th>Population</th><th>Most populous country</th><th>Most populous city</th></tr>
<tr><td>Asia</td><td>104.1</td><td>4,641</td><td>1,439,090,595 – India</td><td>13,515,000 – Tokyo</td></tr>
<tr><td>Antarctica</td><td>~0</td><td>None</td><td>N/A</td><td>00,001,258 – McMurdo Station</td></tr>
<tr><td>Broken</td><td>1</td></tr>
</table>
</body></html>`

var startedAt = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	resp population.FetchResponse
	err  error
	reqs []population.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req population.FetchRequest) (population.FetchResponse, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

type fakeStore struct {
	ensureErr error
	insertErr error
	inserted  []population.Record
	ensured   bool
	closed    int
}

func (s *fakeStore) EnsureTable(context.Context) error {
	s.ensured = true
	return s.ensureErr
}

func (s *fakeStore) InsertBatch(_ context.Context, records []population.Record) (int64, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.inserted = append(s.inserted, records...)
	return int64(len(records)), nil
}

func (s *fakeStore) Close() error {
	s.closed++
	return nil
}

type fakeOpener struct {
	store  *fakeStore
	err    error
	opened int
}

func (o *fakeOpener) Open(context.Context) (population.Warehouse, error) {
	o.opened++
	if o.err != nil {
		return nil, o.err
	}
	return o.store, nil
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket gone")
}

type harness struct {
	cfg       Config
	deps      Deps
	fetcher   *fakeFetcher
	opener    *fakeOpener
	blobs     *blobmemory.BlobStore
	publisher *pubmemory.Publisher
	metrics   *metrics.Recorder
	out       *bytes.Buffer
	logs      *observer.ObservedLogs
	logger    *zap.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ex, err := extract.New(extract.StrategyGoquery, []string{"wikitable", "sortable"})
	require.NoError(t, err)
	norm, err := normalize.New(normalize.PolicySkip, nil)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		cfg: Config{
			SourceURL:       "https://en.wikipedia.org/wiki/World_population",
			OutputPath:      filepath.Join(t.TempDir(), "tabla_wikipedia_procesada.csv"),
			ArtifactPrefix:  "exports",
			WarehouseSource: warehouse.SourceSeed,
			MetricsJob:      "world_population_etl",
		},
		fetcher: &fakeFetcher{resp: population.FetchResponse{
			URL:        "https://en.wikipedia.org/wiki/World_population",
			StatusCode: 200,
			Body:       []byte(page),
		}},
		opener:    &fakeOpener{store: &fakeStore{}},
		blobs:     blobmemory.NewBlobStore(),
		publisher: pubmemory.New(),
		metrics:   metrics.New(),
		out:       &bytes.Buffer{},
		logs:      logs,
		logger:    zap.New(core),
	}
	h.deps = Deps{
		Fetcher:    h.fetcher,
		Extractor:  ex,
		Normalizer: norm,
		Writer:     csvfile.NewWriter(nil),
		Warehouse:  h.opener,
		Artifacts:  h.blobs,
		Publisher:  h.publisher,
		Metrics:    h.metrics,
		Clock:      clock.NewManual(startedAt, time.Second),
		IDs:        fixedIDs{id: "run-1"},
		Display:    h.out,
	}
	return h
}

func (h *harness) run(t *testing.T) (population.RunSummary, error) {
	t.Helper()
	p, err := New(h.cfg, h.deps, h.logger)
	require.NoError(t, err)
	return p.Run(context.Background())
}

func TestRunLoadsSeedBatchAndWritesCSV(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	summary, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, startedAt, summary.StartedAt)
	assert.True(t, summary.FinishedAt.After(summary.StartedAt))
	assert.Equal(t, 200, summary.StatusCode)
	assert.Equal(t, 4, summary.RowsExtracted)
	assert.Equal(t, 2, summary.RecordsWritten)
	assert.Equal(t, map[population.DropReason]int{
		population.DropEmptyRow:  1,
		population.DropMalformed: 1,
	}, summary.Dropped)
	assert.Equal(t, population.WarehouseLoaded, summary.Warehouse)
	assert.Equal(t, int64(7), summary.RowsLoaded)

	store := h.opener.store
	assert.True(t, store.ensured)
	assert.Equal(t, warehouse.SeedRecords(), store.inserted)
	assert.Equal(t, 1, store.closed)

	written, err := csvfile.Read(context.Background(), h.cfg.OutputPath)
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.Equal(t, population.Record{
		Region: "Antarctica", MostPopCountry: "N/A", MostPopCity: "00,001,258 – McMurdo Station",
	}, written[1])

	key := "exports/2026/10/18/run-1/tabla_wikipedia_procesada.csv"
	assert.Equal(t, "memory://"+key, summary.ArtifactURI)
	_, contentType, ok := h.blobs.Object(key)
	require.True(t, ok)
	assert.Equal(t, csvfile.ContentType, contentType)

	payloads := h.publisher.Payloads()
	require.Len(t, payloads, 1)
	published, ok := payloads[0].(population.RunSummary)
	require.True(t, ok)
	assert.Equal(t, "run-1", published.RunID)
	assert.False(t, published.FinishedAt.IsZero())

	assert.Contains(t, h.out.String(), "McMurdo Station")
	assert.Equal(t, "https://en.wikipedia.org/wiki/World_population", h.fetcher.reqs[0].URL)
	assert.Equal(t, "run-1", h.fetcher.reqs[0].RunID)
}

func TestRunScrapedSourceLoadsNormalizedRecords(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.WarehouseSource = warehouse.SourceScraped
	summary, err := h.run(t)
	require.NoError(t, err)

	require.Len(t, h.opener.store.inserted, 2)
	assert.Equal(t, "Asia", h.opener.store.inserted[0].Region)
	assert.Equal(t, 4641.0, h.opener.store.inserted[0].Population)
	assert.Equal(t, int64(2), summary.RowsLoaded)
}

func TestRunConnectionFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.opener.err = errors.New("dial tcp: connection refused")
	summary, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, population.WarehouseConnectionFailed, summary.Warehouse)
	assert.Zero(t, summary.RowsLoaded)
	assert.Zero(t, h.opener.store.closed, "a store that was never opened is not closed")
	assert.Contains(t, h.out.String(), "Antarctica", "table is displayed after a failed connection")
	assert.FileExists(t, h.cfg.OutputPath)
	assert.Equal(t, 1, h.logs.FilterMessage("warehouse connection failed; continuing without load").Len())
	assert.Len(t, h.publisher.Payloads(), 1)
}

func TestRunExecutionFailureIsFatalButClosesAndDisplays(t *testing.T) {
	t.Parallel()

	execErr := func(msg string) error {
		return fmt.Errorf("%w: %s", population.ErrWarehouseExecution, msg)
	}
	for name, store := range map[string]*fakeStore{
		"ensure": {ensureErr: execErr("no privileges")},
		"insert": {insertErr: execErr("warehouse suspended")},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			h.opener.store = store

			summary, err := h.run(t)
			require.Error(t, err)
			assert.ErrorIs(t, err, population.ErrWarehouseExecution)
			assert.Equal(t, 1, store.closed)
			assert.NotEqual(t, population.WarehouseLoaded, summary.Warehouse)
			assert.Contains(t, h.out.String(), "Antarctica")
			assert.Empty(t, h.publisher.Payloads())

			expected := `
# HELP popetl_runs_total Pipeline runs, labeled by result.
# TYPE popetl_runs_total counter
popetl_runs_total{result="failure"} 1
`
			assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "popetl_runs_total"))
		})
	}
}

func TestRunFetchErrorStopsBeforeWriting(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetcher.err = errors.Join(population.ErrNetwork, errors.New("no such host"))
	summary, err := h.run(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, population.ErrNetwork)
	assert.Equal(t, "run-1", summary.RunID)
	assert.False(t, summary.FinishedAt.IsZero())

	_, statErr := os.Stat(h.cfg.OutputPath)
	assert.True(t, os.IsNotExist(statErr))
	assert.Zero(t, h.opener.opened)
	assert.Empty(t, h.out.String())
}

func TestRunNonSuccessStatusWarnsThenFailsExtraction(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fetcher.resp = population.FetchResponse{StatusCode: 404, Body: []byte("<html><body>Not found</body></html>")}
	_, err := h.run(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, population.ErrExtraction)

	warned := h.logs.FilterMessage("source returned a non-success status").All()
	require.Len(t, warned, 1)
	assert.Equal(t, zapcore.WarnLevel, warned[0].Level)
	assert.Zero(t, h.opener.opened)
}

func TestRunWithoutWarehouseIsSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.deps.Warehouse = nil
	summary, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, population.WarehouseSkipped, summary.Warehouse)
	assert.Contains(t, h.out.String(), "Asia")
}

func TestRunUploadFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.deps.Artifacts = failingStore{}
	summary, err := h.run(t)
	require.NoError(t, err)
	assert.Empty(t, summary.ArtifactURI)
	assert.Equal(t, 1, h.logs.FilterMessage("artifact upload failed").Len())
}

func TestRunPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.publisher.FailWith(errors.New("topic not found"))
	_, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, 1, h.logs.FilterMessage("run summary not published").Len())
}

func TestNewRequiresCoreStages(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	for name, mutate := range map[string]func(*Deps, *Config){
		"fetcher":    func(d *Deps, _ *Config) { d.Fetcher = nil },
		"extractor":  func(d *Deps, _ *Config) { d.Extractor = nil },
		"normalizer": func(d *Deps, _ *Config) { d.Normalizer = nil },
		"writer":     func(d *Deps, _ *Config) { d.Writer = nil },
		"output":     func(_ *Deps, c *Config) { c.OutputPath = "" },
	} {
		deps, cfg := h.deps, h.cfg
		mutate(&deps, &cfg)
		_, err := New(cfg, deps, nil)
		assert.Error(t, err, name)
	}
}
