package advice

import (
	"context"
)

// HealthProvider returns the day's typed measurements for a request.
type HealthProvider interface {
	Fetch(ctx context.Context, req Request) (HealthSnapshot, error)
}

// EnvironmentGateway returns the normalized environmental record at a coordinate.
type EnvironmentGateway interface {
	Fetch(ctx context.Context, lat, lon float64) (EnvironmentSnapshot, error)
}

// BundledHealthProvider serves the measurements carried in the request bundle.
type BundledHealthProvider struct{}

// NewBundledHealthProvider returns the default HealthProvider.
func NewBundledHealthProvider() BundledHealthProvider {
	return BundledHealthProvider{}
}

func (BundledHealthProvider) Fetch(_ context.Context, req Request) (HealthSnapshot, error) {
	if req.Health == nil || req.Health.IsEmpty() {
		return HealthSnapshot{}, ErrHealthDataUnavailable
	}
	return *req.Health, nil
}
