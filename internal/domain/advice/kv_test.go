package advice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// fakeKV is an in-memory KVStore with failure injection.
type fakeKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	sets    map[string]int
	getErr  error
	setErr  error
	failSet func(key string) bool
	failGet func(key string) bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		data: map[string][]byte{},
		ttls: map[string]time.Duration{},
		sets: map[string]int{},
	}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	if f.failGet != nil && f.failGet(key) {
		return nil, false, errors.New("i/o timeout")
	}
	value, ok := f.data[key]
	return value, ok, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil || (f.failSet != nil && f.failSet(key)) {
		return errors.Join(errors.New("set failed"), f.setErr)
	}
	f.data[key] = append([]byte(nil), value...)
	f.ttls[key] = ttl
	f.sets[key]++
	return nil
}

func (f *fakeKV) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = append([]byte(nil), value...)
	f.ttls[key] = ttl
	f.sets[key]++
	return true, nil
}

func (f *fakeKV) adviceWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for key, n := range f.sets {
		if strings.HasPrefix(key, "advice:") {
			total += n
		}
	}
	return total
}
