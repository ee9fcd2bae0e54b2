package advice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reasons reported when supplementary content is not shown.
const (
	ReasonMorningSlot  = "morning_slot"
	ReasonAlreadyShown = "already_shown"
	ReasonUnavailable  = "unavailable"
	ReasonDisabled     = "disabled"
)

// SupplementGate allows supplementary content at most once per (user, date, slot).
type SupplementGate interface {
	TryAcquire(ctx context.Context, userID, date string, slot DaySlot) (bool, error)
}

// KVSupplementGate implements SupplementGate with SetNX flags.
type KVSupplementGate struct {
	kv  KVStore
	now func() time.Time
}

// NewSupplementGate builds a gate over kv.
func NewSupplementGate(kv KVStore) *KVSupplementGate {
	return &KVSupplementGate{kv: kv, now: time.Now}
}

func supplementKey(userID, date string, slot DaySlot) string {
	return fmt.Sprintf("supplement:%s:%s:%s", userID, date, slot)
}

// TryAcquire marks the slot as shown and reports whether this call won it.
func (g *KVSupplementGate) TryAcquire(ctx context.Context, userID, date string, slot DaySlot) (bool, error) {
	stamp := []byte(g.now().UTC().Format(time.RFC3339))
	return g.kv.SetNX(ctx, supplementKey(userID, date, slot), stamp, supplementGateTTL)
}

func (s *service) Supplement(ctx context.Context, req Request) (SupplementResult, error) {
	scope, err := s.resolveScope(req)
	if err != nil {
		return SupplementResult{}, err
	}
	result := SupplementResult{Slot: scope.slot, Date: scope.date}

	switch {
	case !s.cfg.SupplementEnabled:
		result.Reason = ReasonDisabled
		return result, nil
	case scope.slot == SlotMorning:
		result.Reason = ReasonMorningSlot
		return result, nil
	}

	acquired, err := s.gate.TryAcquire(ctx, scope.userID, scope.date, scope.slot)
	if err != nil {
		s.logger.Error("supplement gate unavailable", "user_id", scope.userID, "date", scope.date, "slot", scope.slot, "error", err)
		result.Reason = ReasonUnavailable
		return result, nil
	}
	if !acquired {
		result.Reason = ReasonAlreadyShown
		return result, nil
	}

	result.Allowed = true
	result.ID = uuid.NewString()

	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GenerationTimeout)
	defer cancel()
	tip, err := s.generateSupplement(genCtx, req, scope)
	if err != nil {
		s.logger.Warn("supplement generation failed, serving static tip", "user_id", scope.userID, "slot", scope.slot, "error", err)
		tip = StaticSupplement(scope.locale, scope.slot)
		result.ServedFrom = ServedFromStaticFallback
	} else {
		result.ServedFrom = ServedFromGenerated
	}
	result.Title = tip.Title
	result.Message = tip.Message
	return result, nil
}

func (s *service) generateSupplement(ctx context.Context, req Request, scope requestScope) (Supplement, error) {
	var todayTry string
	if entry, ok, err := s.store.Get(ctx, scope.userID, scope.date); err == nil && ok {
		todayTry = entry.Advice.DailyTry.Title
	}
	var health HealthSnapshot
	if req.Health != nil {
		health = *req.Health
	}
	rc := s.requestContext(req, scope, health, nil, nil)
	prompt := s.builder.BuildSupplement(rc, SupplementContext{Slot: scope.slot, DailyTryTitle: strings.TrimSpace(todayTry)})

	raw, err := s.generator.Generate(ctx, prompt, s.cfg.Credential)
	if err != nil {
		return Supplement{}, err
	}
	return ValidateSupplement(raw)
}
