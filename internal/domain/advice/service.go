package advice

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/yanqian/daily-advisor/pkg/errors"
	"github.com/yanqian/daily-advisor/pkg/metrics"
	"github.com/yanqian/daily-advisor/pkg/util"
)

// maxDateSkewDays bounds how far a requested date may sit from today in the
// request timezone. Each date is its own cache key, so an open range would
// allow one generation per date.
const maxDateSkewDays = 1

// NoticeConfiguration flags results served because the provider credential is unusable.
const NoticeConfiguration = "configuration"

// Service exposes the daily advisory pipeline.
type Service interface {
	GetAdvice(ctx context.Context, req Request) (Result, error)
	Supplement(ctx context.Context, req Request) (SupplementResult, error)
}

type service struct {
	cfg         Config
	store       Store
	gate        SupplementGate
	health      HealthProvider
	environment EnvironmentGateway
	builder     PromptBuilder
	generator   *Generator
	logger      *slog.Logger
	now         func() time.Time
	flights     singleflight.Group
}

// NewService wires up the advice domain. environment may be nil, in which
// case advisories are generated without environmental context.
func NewService(
	cfg Config,
	store Store,
	gate SupplementGate,
	health HealthProvider,
	environment EnvironmentGateway,
	generator *Generator,
	logger *slog.Logger,
) Service {
	return &service{
		cfg:         cfg.withDefaults(),
		store:       store,
		gate:        gate,
		health:      health,
		environment: environment,
		builder:     NewPromptBuilder(),
		generator:   generator,
		logger:      logger.With("component", "advice.service"),
		now:         time.Now,
	}
}

type requestScope struct {
	userID string
	date   string
	day    time.Time
	now    time.Time
	slot   DaySlot
	locale string
}

type generation struct {
	advice GeneratedAdvice
	usage  metrics.TokenUsage
}

func (s *service) GetAdvice(ctx context.Context, req Request) (Result, error) {
	scope, err := s.resolveScope(req)
	if err != nil {
		return Result{}, err
	}
	if err := validateLocation(req.Location); err != nil {
		return Result{}, err
	}

	entry, ok, err := s.store.Get(ctx, scope.userID, scope.date)
	if err != nil {
		s.logger.Warn("advice cache read failed, treating as miss", "user_id", scope.userID, "date", scope.date, "error", err)
	}
	if ok && entry.IsFresh(s.now(), s.cfg.CacheTTL) {
		s.logger.Debug("advice cache hit", "user_id", scope.userID, "date", scope.date)
		return Result{
			Advice:     entry.Advice,
			ServedFrom: ServedFromCache,
			Date:       scope.date,
			Slot:       scope.slot,
		}, nil
	}
	s.logger.Debug("advice cache miss", "user_id", scope.userID, "date", scope.date)

	flight := s.flights.DoChan(scope.userID+"|"+scope.date, func() (interface{}, error) {
		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GenerationTimeout)
		defer cancel()
		return s.generate(genCtx, req, scope)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res = <-flight:
	}

	if res.Err == nil {
		gen := res.Val.(generation)
		result := Result{
			Advice:     gen.advice,
			ServedFrom: ServedFromGenerated,
			Date:       scope.date,
			Slot:       scope.slot,
		}
		if !gen.usage.IsZero() {
			usage := gen.usage
			result.TokenUsage = &usage
		}
		return result, nil
	}
	if !Recoverable(res.Err) {
		return Result{}, res.Err
	}
	return s.fallback(ctx, scope, res.Err), nil
}

func (s *service) generate(ctx context.Context, req Request, scope requestScope) (generation, error) {
	started := time.Now()
	health, env, err := s.gatherContext(ctx, req)
	if err != nil {
		return generation{}, err
	}

	ledgerTopics, err := s.store.RecentTopics(ctx, scope.userID, scope.date)
	if err != nil {
		s.logger.Warn("topic history unavailable", "user_id", scope.userID, "error", err)
	}
	topics := mergeTopics(ledgerTopics, req.RecentTopics, s.cfg.MaxRecentTopics)

	rc := s.requestContext(req, scope, health, env, topics)
	prompt := s.builder.Build(rc)
	s.logger.Info("advice generation started",
		"user_id", scope.userID,
		"date", scope.date,
		"examples", prompt.Examples.Name,
		"estimated_tokens", prompt.EstimateTokens(),
	)

	raw, err := s.generator.Generate(ctx, prompt, s.cfg.Credential)
	if err != nil {
		return generation{}, err
	}
	advice, err := Validate(raw)
	if err != nil {
		return generation{}, err
	}
	advice.GeneratedAt = s.now().UTC()

	s.logger.Info("advice generation finished",
		"user_id", scope.userID,
		"date", scope.date,
		"model", raw.Model,
		"latency_ms", time.Since(started).Milliseconds(),
		"prompt_tokens", raw.Usage.PromptTokens,
		"completion_tokens", raw.Usage.CompletionTokens,
		"cache_read_tokens", raw.Usage.CacheReadTokens,
	)

	if err := s.store.Put(ctx, scope.userID, scope.date, advice); err != nil {
		s.logger.Error("advice cache write failed", "user_id", scope.userID, "date", scope.date, "error", err)
	}
	return generation{advice: advice, usage: raw.Usage}, nil
}

// gatherContext fetches health and environment concurrently. Only the
// health fetch can fail the pipeline.
func (s *service) gatherContext(ctx context.Context, req Request) (HealthSnapshot, *EnvironmentSnapshot, error) {
	var (
		health HealthSnapshot
		env    *EnvironmentSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snapshot, err := s.health.Fetch(gctx, req)
		if err != nil {
			if apperrors.CodeOf(err) != "" {
				return err
			}
			return apperrors.Wrap(CodeHealthDataUnavailable, "health data unavailable", err)
		}
		health = snapshot
		return nil
	})
	if req.Location != nil && s.environment != nil {
		loc := *req.Location
		g.Go(func() error {
			envCtx, cancel := context.WithTimeout(gctx, s.cfg.EnvironmentTimeout)
			defer cancel()
			snapshot, err := s.environment.Fetch(envCtx, loc.Latitude, loc.Longitude)
			if err != nil {
				s.logger.Warn("environment fetch failed, continuing without it", "error", err)
				return nil
			}
			env = &snapshot
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return HealthSnapshot{}, nil, err
	}
	return health, env, nil
}

func (s *service) fallback(ctx context.Context, scope requestScope, cause error) Result {
	notice := ""
	if apperrors.IsCode(cause, CodeCredential) {
		notice = NoticeConfiguration
		s.logger.Error("advice provider credential unusable, check llm configuration", "user_id", scope.userID, "error", cause)
	} else {
		s.logger.Warn("advice generation failed", "user_id", scope.userID, "date", scope.date, "code", apperrors.CodeOf(cause), "error", cause)
	}

	hit, ok, err := s.store.GetFallback(ctx, scope.userID, scope.date, s.cfg.FallbackLookback)
	if err != nil {
		s.logger.Warn("fallback cache lookup failed", "user_id", scope.userID, "error", err)
	}
	if ok {
		s.logger.Warn("serving fallback advice", "user_id", scope.userID, "date", scope.date, "from_date", hit.Date, "days_old", hit.DaysOld)
		return Result{
			Advice:     hit.Entry.Advice,
			ServedFrom: ServedFromFallbackCache,
			Date:       scope.date,
			Slot:       scope.slot,
			IsStale:    true,
			StaleDays:  hit.DaysOld,
			Notice:     notice,
		}
	}

	s.logger.Warn("serving static advice", "user_id", scope.userID, "date", scope.date, "locale", scope.locale)
	return Result{
		Advice:     StaticAdvice(scope.locale, s.now().UTC()),
		ServedFrom: ServedFromStaticFallback,
		Date:       scope.date,
		Slot:       scope.slot,
		Notice:     notice,
	}
}

func (s *service) resolveScope(req Request) (requestScope, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return requestScope{}, apperrors.Wrap(CodeInvalidInput, "userId is required", nil)
	}
	loc, err := util.LoadLocation(req.Timezone, s.cfg.Timezone)
	if err != nil {
		return requestScope{}, apperrors.Wrap(CodeInvalidInput, "timezone is not a valid IANA zone", err)
	}
	now := s.now().In(loc)

	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = util.DateKey(now)
	}
	day, err := util.ParseDate(date, loc)
	if err != nil {
		return requestScope{}, apperrors.Wrap(CodeInvalidInput, "date must be formatted as YYYY-MM-DD", err)
	}
	skew, err := util.DaysBetween(util.DateKey(now), date)
	if err != nil || skew < -maxDateSkewDays || skew > maxDateSkewDays {
		return requestScope{}, apperrors.Wrap(CodeInvalidInput, "date must be within one day of today", err)
	}

	locale := strings.TrimSpace(req.Locale)
	if locale == "" {
		locale = s.cfg.DefaultLocale
	}
	return requestScope{
		userID: userID,
		date:   date,
		day:    day,
		now:    now,
		slot:   Classify(now),
		locale: locale,
	}, nil
}

func validateLocation(loc *Location) error {
	if loc == nil {
		return nil
	}
	if math.IsNaN(loc.Latitude) || loc.Latitude < -90 || loc.Latitude > 90 {
		return apperrors.Wrap(CodeCoordinateOutOfRange, "latitude must be between -90 and 90", nil)
	}
	if math.IsNaN(loc.Longitude) || loc.Longitude < -180 || loc.Longitude > 180 {
		return apperrors.Wrap(CodeCoordinateOutOfRange, "longitude must be between -180 and 180", nil)
	}
	return nil
}

func (s *service) requestContext(req Request, scope requestScope, health HealthSnapshot, env *EnvironmentSnapshot, topics []string) RequestContext {
	environment := fn.None[EnvironmentSnapshot]()
	if env != nil {
		environment = fn.Some(*env)
	}
	weekday := scope.day.Weekday()
	return RequestContext{
		UserID:       scope.userID,
		Date:         scope.date,
		Locale:       scope.locale,
		Profile:      req.Profile,
		Health:       health,
		Environment:  environment,
		Scores:       req.Scores,
		Now:          scope.now,
		Slot:         scope.slot,
		RecentTopics: topics,
		Weekday:      weekday,
		IsWeekend:    weekday == time.Saturday || weekday == time.Sunday,
		IsMonday:     weekday == time.Monday,
		IsFriday:     weekday == time.Friday,
	}
}

// mergeTopics joins ledger and request topics, ledger first, without
// duplicates, keeping at most limit entries.
func mergeTopics(ledger, requested []string, limit int) []string {
	out := make([]string, 0, len(ledger)+len(requested))
	seen := make(map[string]struct{})
	for _, list := range [][]string{ledger, requested} {
		for _, topic := range list {
			clean := strings.TrimSpace(topic)
			if clean == "" {
				continue
			}
			if _, ok := seen[clean]; ok {
				continue
			}
			seen[clean] = struct{}{}
			out = append(out, clean)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
