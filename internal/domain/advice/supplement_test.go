package advice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func supplementProvider() *stubProvider {
	return &stubProvider{responses: []RawModelOutput{textOutput(`{"title":"Stretch break","message":"Reach up for ten seconds."}`)}}
}

func TestSupplementMorningIsNotAllowed(t *testing.T) {
	f := newServiceFixture(t, supplementProvider())

	res, err := f.svc.Supplement(context.Background(), validRequest())
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, ReasonMorningSlot, res.Reason)
	require.Equal(t, SlotMorning, res.Slot)
	require.Zero(t, f.provider.calls)
}

func TestSupplementOncePerSlot(t *testing.T) {
	f := newServiceFixture(t, supplementProvider())
	*f.clock = time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
	ctx := context.Background()

	first, err := f.svc.Supplement(ctx, validRequest())
	require.NoError(t, err)
	require.True(t, first.Allowed)
	require.NotEmpty(t, first.ID)
	require.Equal(t, SlotAfternoon, first.Slot)
	require.Equal(t, ServedFromGenerated, first.ServedFrom)
	require.Equal(t, "Stretch break", first.Title)
	require.Equal(t, supplementGateTTL, f.kv.ttls["supplement:user-1:2024-06-10:afternoon"])

	second, err := f.svc.Supplement(ctx, validRequest())
	require.NoError(t, err)
	require.False(t, second.Allowed)
	require.Equal(t, ReasonAlreadyShown, second.Reason)

	f.advance(5 * time.Hour)
	third, err := f.svc.Supplement(ctx, validRequest())
	require.NoError(t, err)
	require.True(t, third.Allowed)
	require.Equal(t, SlotEvening, third.Slot)
	require.Equal(t, 2, f.provider.calls)
}

func TestSupplementIncludesTodaysDailyTry(t *testing.T) {
	f := newServiceFixture(t, supplementProvider())
	*f.clock = time.Date(2024, 6, 10, 19, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.Put(context.Background(), "user-1", "2024-06-10", sampleAdvice("yoga", *f.clock)))

	_, err := f.svc.Supplement(context.Background(), validRequest())
	require.NoError(t, err)
	require.Contains(t, f.provider.last.User, "today_daily_try: Try yoga\n")
}

func TestSupplementGenerationFailureServesStaticTip(t *testing.T) {
	f := newServiceFixture(t, &stubProvider{responses: []RawModelOutput{textOutput(`{"title":"only"}`)}})
	*f.clock = time.Date(2024, 6, 10, 19, 0, 0, 0, time.UTC)
	req := validRequest()
	req.Locale = "ja"

	res, err := f.svc.Supplement(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, ServedFromStaticFallback, res.ServedFrom)
	require.Equal(t, StaticSupplement("ja", SlotEvening).Title, res.Title)
}

func TestSupplementGateErrorIsUnavailable(t *testing.T) {
	f := newServiceFixture(t, supplementProvider())
	*f.clock = time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
	f.kv.setErr = errors.New("valkey down")

	res, err := f.svc.Supplement(context.Background(), validRequest())
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, ReasonUnavailable, res.Reason)
	require.Zero(t, f.provider.calls)
}

func TestSupplementDisabled(t *testing.T) {
	f := newServiceFixture(t, supplementProvider())
	*f.clock = time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
	f.svc.cfg.SupplementEnabled = false

	res, err := f.svc.Supplement(context.Background(), validRequest())
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, ReasonDisabled, res.Reason)
}

func TestSupplementRejectsInvalidRequest(t *testing.T) {
	f := newServiceFixture(t, supplementProvider())
	_, err := f.svc.Supplement(context.Background(), Request{})
	require.Error(t, err)
}
