package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/serenova/aicore/services/audit"
	"github.com/serenova/aicore/services/budget"
	"github.com/serenova/aicore/services/cache"
	"github.com/serenova/aicore/services/classifier"
	"github.com/serenova/aicore/services/providers"
	"github.com/serenova/aicore/services/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	id        providers.ID
	available bool
	response  string
	tokens    int
	err       error
	calls     int
}

func (f *fakeProvider) ID() providers.ID         { return f.id }
func (f *fakeProvider) Name() string             { return string(f.id) }
func (f *fakeProvider) IsAvailable() bool        { return f.available }
func (f *fakeProvider) CostPer1KTokens() float64 { return 0.003 }

func (f *fakeProvider) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &providers.CompletionResponse{
		Text:       f.response,
		TokensUsed: f.tokens,
		Provider:   f.id,
		Latency:    42 * time.Millisecond,
	}, nil
}

type testEnv struct {
	service   *Service
	providers map[providers.ID]*fakeProvider
	mock      sqlmock.Sqlmock
	cache     *cache.MemoryStore
	closeDB   func()
}

func newTestEnv(t *testing.T, cfg Config, available ...providers.ID) *testEnv {
	t.Helper()

	avail := make(map[providers.ID]bool, len(available))
	for _, id := range available {
		avail[id] = true
	}

	fakes := make(map[providers.ID]*fakeProvider, 5)
	list := make([]providers.Provider, 0, 5)
	for _, id := range []providers.ID{
		providers.OpenAI, providers.Anthropic, providers.Gemini,
		providers.Perplexity, providers.Grok,
	} {
		f := &fakeProvider{id: id, available: avail[id], response: "resposta de " + string(id), tokens: 1000}
		fakes[id] = f
		list = append(list, f)
	}

	registry, err := providers.NewRegistry(list)
	require.NoError(t, err)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	memCache := cache.NewMemoryStore(100, time.Hour)
	// The sink is never started: events stay buffered, nothing hits the DB.
	sink := audit.NewSink(db, logger, audit.Config{BufferSize: 100, WorkerCount: 1})

	service := NewService(
		routing.NewRouter(registry),
		registry,
		memCache,
		budget.NewLedger(db, logger),
		sink,
		logger,
		cfg,
	)

	return &testEnv{
		service:   service,
		providers: fakes,
		mock:      mock,
		cache:     memCache,
		closeDB:   func() { db.Close() },
	}
}

func (e *testEnv) expectCostRecord() {
	e.mock.ExpectExec("INSERT INTO cost_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func (e *testEnv) expectBudgetQuery(currentCost float64) {
	e.mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(currentCost))
}

func TestComplete_RoutesByCategory(t *testing.T) {
	env := newTestEnv(t, Config{}, providers.OpenAI, providers.Anthropic,
		providers.Gemini, providers.Perplexity, providers.Grok)
	defer env.closeDB()
	env.expectCostRecord()

	resp, err := env.service.Complete(context.Background(),
		&Request{Text: "Estou exausta e sem dormir"})
	require.NoError(t, err)

	assert.Equal(t, providers.Anthropic, resp.Provider)
	assert.Equal(t, classifier.Emotional, resp.Category)
	assert.Equal(t, "resposta de anthropic", resp.Text)
	assert.Equal(t, 1000, resp.TokensUsed)
	assert.InDelta(t, 0.003, resp.CostUSD, 1e-9)
	assert.False(t, resp.Cached)
	assert.Equal(t, 1, env.providers[providers.Anthropic].calls)
}

func TestComplete_FallbackVisibleInMetadata(t *testing.T) {
	// Anthropic down: emotional traffic lands on its fallback OpenAI, and
	// the response metadata says so.
	env := newTestEnv(t, Config{}, providers.OpenAI, providers.Gemini)
	defer env.closeDB()
	env.expectCostRecord()

	resp, err := env.service.Complete(context.Background(),
		&Request{Text: "Estou exausta e sem dormir"})
	require.NoError(t, err)

	assert.Equal(t, providers.OpenAI, resp.Provider)
	assert.Equal(t, classifier.Emotional, resp.Category)
	assert.Contains(t, resp.RoutingReason, "fallback to openai")
	assert.Equal(t, 1, env.providers[providers.OpenAI].calls)
	assert.Equal(t, 0, env.providers[providers.Anthropic].calls)
}

func TestComplete_NoProviderAvailable(t *testing.T) {
	env := newTestEnv(t, Config{})
	defer env.closeDB()

	_, err := env.service.Complete(context.Background(), &Request{Text: "oi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, routing.ErrNoProviderAvailable)
}

func TestComplete_CacheHit(t *testing.T) {
	env := newTestEnv(t, Config{}, providers.OpenAI, providers.Anthropic,
		providers.Gemini, providers.Perplexity, providers.Grok)
	defer env.closeDB()
	env.expectCostRecord()

	first, err := env.service.Complete(context.Background(),
		&Request{Text: "Estou exausta e sem dormir"})
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := env.service.Complete(context.Background(),
		&Request{Text: "Estou exausta e sem dormir"})
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.TokensUsed, second.TokensUsed)
	// The backend was only billed once.
	assert.Equal(t, 1, env.providers[providers.Anthropic].calls)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestComplete_ProviderError(t *testing.T) {
	env := newTestEnv(t, Config{}, providers.OpenAI, providers.Anthropic,
		providers.Gemini, providers.Perplexity, providers.Grok)
	defer env.closeDB()

	backendErr := errors.New("upstream 500")
	env.providers[providers.Anthropic].err = backendErr

	_, err := env.service.Complete(context.Background(),
		&Request{Text: "Estou exausta e sem dormir"})
	require.Error(t, err)
	assert.ErrorIs(t, err, backendErr)
}

func TestComplete_BudgetAdvisory(t *testing.T) {
	// Over budget with the default advisory policy: the call proceeds and
	// the overage is flagged on the response.
	env := newTestEnv(t, Config{MonthlyBudgetUSD: 10}, providers.OpenAI,
		providers.Anthropic, providers.Gemini, providers.Perplexity, providers.Grok)
	defer env.closeDB()

	env.expectBudgetQuery(15.0)
	env.expectCostRecord()

	resp, err := env.service.Complete(context.Background(),
		&Request{Text: "Estou exausta e sem dormir"})
	require.NoError(t, err)

	assert.True(t, resp.BudgetExceeded)
	assert.Equal(t, "resposta de anthropic", resp.Text)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestComplete_BudgetHardLimit(t *testing.T) {
	env := newTestEnv(t, Config{MonthlyBudgetUSD: 10, BudgetHardLimit: true},
		providers.OpenAI, providers.Anthropic, providers.Gemini,
		providers.Perplexity, providers.Grok)
	defer env.closeDB()

	env.expectBudgetQuery(15.0)

	_, err := env.service.Complete(context.Background(),
		&Request{Text: "Estou exausta e sem dormir"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Equal(t, 0, env.providers[providers.Anthropic].calls)
}

func TestComplete_BudgetCheckFailureIsAdvisory(t *testing.T) {
	env := newTestEnv(t, Config{MonthlyBudgetUSD: 10, BudgetHardLimit: true},
		providers.OpenAI, providers.Anthropic, providers.Gemini,
		providers.Perplexity, providers.Grok)
	defer env.closeDB()

	env.mock.ExpectQuery("SELECT COALESCE").WillReturnError(assert.AnError)
	env.expectCostRecord()

	resp, err := env.service.Complete(context.Background(),
		&Request{Text: "Estou exausta e sem dormir"})
	require.NoError(t, err)
	assert.False(t, resp.BudgetExceeded)
}

func TestComplete_LedgerFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t, Config{}, providers.OpenAI, providers.Anthropic,
		providers.Gemini, providers.Perplexity, providers.Grok)
	defer env.closeDB()

	env.mock.ExpectExec("INSERT INTO cost_records").WillReturnError(assert.AnError)

	resp, err := env.service.Complete(context.Background(),
		&Request{Text: "Estou exausta e sem dormir"})
	require.NoError(t, err)
	assert.Equal(t, "resposta de anthropic", resp.Text)
}
