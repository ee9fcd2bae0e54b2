package advice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/daily-advisor/pkg/errors"
	"github.com/yanqian/daily-advisor/pkg/metrics"
)

type stubEnvironment struct {
	snapshot EnvironmentSnapshot
	err      error
	calls    atomic.Int32
}

func (s *stubEnvironment) Fetch(_ context.Context, _, _ float64) (EnvironmentSnapshot, error) {
	s.calls.Add(1)
	return s.snapshot, s.err
}

type stubHealth struct {
	err error
}

func (s stubHealth) Fetch(ctx context.Context, req Request) (HealthSnapshot, error) {
	if s.err != nil {
		return HealthSnapshot{}, s.err
	}
	return NewBundledHealthProvider().Fetch(ctx, req)
}

type serviceFixture struct {
	svc      *service
	kv       *fakeKV
	store    *CacheStore
	provider *stubProvider
	env      *stubEnvironment
	clock    *time.Time
}

func newServiceFixture(t *testing.T, provider *stubProvider) *serviceFixture {
	t.Helper()
	kv := newFakeKV()
	cfg := Config{Credential: validKey, Model: "test-model", SupplementEnabled: true}
	store := NewCacheStore(kv, cfg)
	env := &stubEnvironment{snapshot: EnvironmentSnapshot{Current: WeatherConditions{TemperatureC: 24}}}
	gen, _ := newTestGenerator(provider)

	svc := NewService(cfg, store, NewSupplementGate(kv), stubHealth{}, env, gen, discardLogger()).(*service)
	clock := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	return &serviceFixture{svc: svc, kv: kv, store: store, provider: provider, env: env, clock: &clock}
}

func (f *serviceFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func validRequest() Request {
	return Request{
		UserID:   "user-1",
		Locale:   "en",
		Profile:  UserProfile{Nickname: "Alex", Interests: []string{"sleep"}},
		Health:   &HealthSnapshot{SleepHours: floatPtr(7)},
		Location: &Location{Latitude: 35.68, Longitude: 139.76},
		Scores:   map[string]float64{"recovery": 70},
	}
}

func successfulProvider() *stubProvider {
	out := textOutput(completeAdviceJSON)
	out.Usage = metrics.TokenUsage{PromptTokens: 900, CompletionTokens: 200, TotalTokens: 1100, CacheReadTokens: 800}
	return &stubProvider{responses: []RawModelOutput{out}}
}

func timeoutProvider() *stubProvider {
	return &stubProvider{errs: []error{context.DeadlineExceeded, context.DeadlineExceeded}}
}

func TestGetAdviceGeneratesOnMiss(t *testing.T) {
	f := newServiceFixture(t, successfulProvider())

	res, err := f.svc.GetAdvice(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, ServedFromGenerated, res.ServedFrom)
	require.Equal(t, "2024-06-10", res.Date)
	require.Equal(t, SlotMorning, res.Slot)
	require.False(t, res.IsStale)
	require.Equal(t, "Hi", res.Advice.Greeting)
	require.Equal(t, *f.clock, res.Advice.GeneratedAt)
	require.NotNil(t, res.TokenUsage)
	require.Equal(t, 800, res.TokenUsage.CacheReadTokens)

	entry, ok, err := f.store.Get(context.Background(), "user-1", "2024-06-10")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "stretching", entry.Advice.DailyTry.Topic)
	require.Equal(t, 1, f.kv.adviceWrites())
	require.Contains(t, f.provider.last.User, "temperature_c: 24\n")
	require.EqualValues(t, 1, f.env.calls.Load())
}

func TestGetAdviceServesCacheWithinTTL(t *testing.T) {
	f := newServiceFixture(t, successfulProvider())
	ctx := context.Background()

	first, err := f.svc.GetAdvice(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, ServedFromGenerated, first.ServedFrom)

	f.advance(10 * time.Minute)
	second, err := f.svc.GetAdvice(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, ServedFromCache, second.ServedFrom)
	require.Equal(t, first.Advice, second.Advice)
	require.Nil(t, second.TokenUsage)
	require.Equal(t, 1, f.provider.calls)
	require.Equal(t, 1, f.kv.adviceWrites())
}

func TestGetAdviceRegeneratesAfterTTL(t *testing.T) {
	f := newServiceFixture(t, successfulProvider())
	ctx := context.Background()
	req := validRequest()
	req.Date = "2024-06-10"

	_, err := f.svc.GetAdvice(ctx, req)
	require.NoError(t, err)

	f.advance(24 * time.Hour)
	res, err := f.svc.GetAdvice(ctx, req)
	require.NoError(t, err)
	require.Equal(t, ServedFromGenerated, res.ServedFrom)
	require.Equal(t, 2, f.provider.calls)
}

func TestGetAdviceFallsBackToYesterday(t *testing.T) {
	f := newServiceFixture(t, timeoutProvider())
	ctx := context.Background()
	old := time.Date(2024, 6, 7, 7, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.Put(ctx, "user-1", "2024-06-07", sampleAdvice("day-3", old)))
	require.NoError(t, f.store.Put(ctx, "user-1", "2024-06-09", sampleAdvice("day-1", old.AddDate(0, 0, 2))))
	writes := f.kv.adviceWrites()

	res, err := f.svc.GetAdvice(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, ServedFromFallbackCache, res.ServedFrom)
	require.True(t, res.IsStale)
	require.Equal(t, 1, res.StaleDays)
	require.Equal(t, "day-1", res.Advice.DailyTry.Topic)
	require.Empty(t, res.Notice)
	require.Equal(t, writes, f.kv.adviceWrites())
}

func TestGetAdviceServesStaticWhenNothingCached(t *testing.T) {
	f := newServiceFixture(t, timeoutProvider())
	req := validRequest()
	req.Locale = "ja-JP"

	res, err := f.svc.GetAdvice(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ServedFromStaticFallback, res.ServedFrom)
	require.Equal(t, StaticAdvice("ja", *f.clock), res.Advice)
	require.Zero(t, f.kv.adviceWrites())
}

func TestGetAdviceNotJSONFollowsFallback(t *testing.T) {
	provider := &stubProvider{responses: []RawModelOutput{textOutput("not json")}}
	f := newServiceFixture(t, provider)
	ctx := context.Background()

	res, err := f.svc.GetAdvice(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, ServedFromStaticFallback, res.ServedFrom)
	require.Equal(t, 1, provider.calls)

	require.NoError(t, f.store.Put(ctx, "user-1", "2024-06-09", sampleAdvice("day-1", f.clock.AddDate(0, 0, -1))))
	res, err = f.svc.GetAdvice(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, ServedFromFallbackCache, res.ServedFrom)
	require.Equal(t, 1, res.StaleDays)
	require.Equal(t, 1, f.kv.adviceWrites())
}

func TestGetAdviceCredentialProblemSetsNotice(t *testing.T) {
	f := newServiceFixture(t, successfulProvider())
	f.svc.cfg.Credential = "your-api-key"

	res, err := f.svc.GetAdvice(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, ServedFromStaticFallback, res.ServedFrom)
	require.Equal(t, NoticeConfiguration, res.Notice)
	require.Zero(t, f.provider.calls)
}

func TestGetAdviceEnvironmentFailureIsNotFatal(t *testing.T) {
	f := newServiceFixture(t, successfulProvider())
	f.env.err = errors.New("gateway timeout")

	res, err := f.svc.GetAdvice(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, ServedFromGenerated, res.ServedFrom)
	require.Contains(t, f.provider.last.User, "temperature_c: unknown\n")
}

func TestGetAdviceWithoutLocationSkipsGateway(t *testing.T) {
	f := newServiceFixture(t, successfulProvider())
	req := validRequest()
	req.Location = nil

	res, err := f.svc.GetAdvice(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ServedFromGenerated, res.ServedFrom)
	require.Zero(t, f.env.calls.Load())
}

func TestGetAdviceMissingHealthUsesFallback(t *testing.T) {
	f := newServiceFixture(t, successfulProvider())
	req := validRequest()
	req.Health = nil

	res, err := f.svc.GetAdvice(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ServedFromStaticFallback, res.ServedFrom)
	require.Zero(t, f.provider.calls)
}

func TestGetAdviceCacheReadFailureIsMiss(t *testing.T) {
	f := newServiceFixture(t, successfulProvider())
	f.kv.getErr = errors.New("valkey down")

	res, err := f.svc.GetAdvice(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, ServedFromGenerated, res.ServedFrom)
}

func TestGetAdviceCacheWriteFailureStillServes(t *testing.T) {
	f := newServiceFixture(t, successfulProvider())
	f.kv.setErr = errors.New("disk full")

	res, err := f.svc.GetAdvice(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, ServedFromGenerated, res.ServedFrom)
	require.Zero(t, f.kv.adviceWrites())
}

func TestGetAdviceArbitraryDatesCannotForceGenerations(t *testing.T) {
	f := newServiceFixture(t, successfulProvider())
	ctx := context.Background()

	for day := 1; day <= 5; day++ {
		req := validRequest()
		req.Date = fmt.Sprintf("2030-01-%02d", day)
		_, err := f.svc.GetAdvice(ctx, req)
		require.True(t, apperrors.IsCode(err, CodeInvalidInput), "%v", err)
	}
	require.Zero(t, f.provider.calls)

	for _, date := range []string{"2024-06-09", "2024-06-10", "2024-06-11"} {
		req := validRequest()
		req.Date = date
		res, err := f.svc.GetAdvice(ctx, req)
		require.NoError(t, err)
		require.Equal(t, date, res.Date)
	}
}

func TestGetAdviceRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		code   string
	}{
		{"missing user", func(r *Request) { r.UserID = " " }, CodeInvalidInput},
		{"bad date", func(r *Request) { r.Date = "10/06/2024" }, CodeInvalidInput},
		{"bad timezone", func(r *Request) { r.Timezone = "Mars/Olympus" }, CodeInvalidInput},
		{"future date", func(r *Request) { r.Date = "2024-06-12" }, CodeInvalidInput},
		{"past date", func(r *Request) { r.Date = "2024-06-08" }, CodeInvalidInput},
		{"latitude", func(r *Request) { r.Location = &Location{Latitude: 91} }, CodeCoordinateOutOfRange},
		{"longitude", func(r *Request) { r.Location = &Location{Longitude: -180.5} }, CodeCoordinateOutOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newServiceFixture(t, successfulProvider())
			req := validRequest()
			tc.mutate(&req)

			_, err := f.svc.GetAdvice(context.Background(), req)
			require.True(t, apperrors.IsCode(err, tc.code), "%v", err)
			require.False(t, Recoverable(err))
			require.Zero(t, f.provider.calls)
			require.Zero(t, f.env.calls.Load())
		})
	}
}

func TestGetAdviceUsesRequestTimezoneForDate(t *testing.T) {
	f := newServiceFixture(t, successfulProvider())
	*f.clock = time.Date(2024, 6, 10, 22, 0, 0, 0, time.UTC)
	req := validRequest()
	req.Timezone = "Asia/Tokyo"

	res, err := f.svc.GetAdvice(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "2024-06-11", res.Date)
	require.Equal(t, SlotMorning, res.Slot)
	require.Contains(t, f.provider.last.User, "weekday: Tuesday\n")
}

func TestGetAdviceMergesRecentTopics(t *testing.T) {
	f := newServiceFixture(t, successfulProvider())
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, "user-1", "2024-06-09", sampleAdvice("yoga", f.clock.AddDate(0, 0, -1))))
	req := validRequest()
	req.RecentTopics = []string{"yoga", "journaling"}

	_, err := f.svc.GetAdvice(ctx, req)
	require.NoError(t, err)
	require.Contains(t, f.provider.last.User, "topics: yoga, journaling\n")
}

func TestGetAdviceConcurrentMissesShareOneGeneration(t *testing.T) {
	provider := &blockingProvider{release: make(chan struct{}), response: textOutput(completeAdviceJSON)}
	f := newServiceFixture(t, nil)
	f.svc.generator, _ = newTestGenerator(provider)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.GetAdvice(context.Background(), validRequest())
		}(i)
	}
	require.Eventually(t, func() bool { return provider.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(provider.release)
	wg.Wait()

	require.EqualValues(t, 1, provider.calls.Load())
	require.Equal(t, 1, f.kv.adviceWrites())
	for i, res := range results {
		require.NoError(t, errs[i])
		require.Equal(t, "Hi", res.Advice.Greeting)
	}
}

func TestGetAdviceCallerCancellationKeepsWrite(t *testing.T) {
	provider := &blockingProvider{release: make(chan struct{}), response: textOutput(completeAdviceJSON)}
	f := newServiceFixture(t, nil)
	f.svc.generator, _ = newTestGenerator(provider)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.GetAdvice(ctx, validRequest())
		done <- err
	}()
	require.Eventually(t, func() bool { return provider.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(provider.release)
	require.Eventually(t, func() bool { return f.kv.adviceWrites() == 1 }, time.Second, time.Millisecond)
}

type blockingProvider struct {
	release  chan struct{}
	response RawModelOutput
	calls    atomic.Int32
}

func (b *blockingProvider) Complete(ctx context.Context, _ ProviderRequest) (RawModelOutput, error) {
	b.calls.Add(1)
	select {
	case <-b.release:
		return b.response, nil
	case <-ctx.Done():
		return RawModelOutput{}, ctx.Err()
	}
}

func TestMergeTopics(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, mergeTopics([]string{"a", "b"}, []string{"b", " ", "c", "d"}, 3))
	require.Empty(t, mergeTopics(nil, nil, 10))
}
