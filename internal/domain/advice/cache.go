package advice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/yanqian/daily-advisor/pkg/util"
)

// KVStore is the blob store backing advice entries, topic ledgers and
// supplementary gates.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// Store is the advice cache contract used by the orchestrator.
type Store interface {
	Get(ctx context.Context, userID, date string) (CacheEntry, bool, error)
	Put(ctx context.Context, userID, date string, advice GeneratedAdvice) error
	GetFallback(ctx context.Context, userID, date string, maxLookback int) (FallbackHit, bool, error)
	RecentTopics(ctx context.Context, userID, asOf string) ([]string, error)
}

func adviceKey(userID, date string) string {
	return fmt.Sprintf("advice:%s:%s", userID, date)
}

func topicsKey(userID string) string {
	return "topics:" + userID
}

// ledgerStripes is the number of mutexes guarding ledger read-modify-write.
const ledgerStripes = 64

// errCorruptLedger marks a ledger blob that cannot be decoded. Only this
// error lets appendTopic overwrite the stored ledger.
var errCorruptLedger = errors.New("corrupt topic ledger")

// CacheStore implements Store over a KVStore.
type CacheStore struct {
	kv          KVStore
	retention   time.Duration
	topicWindow int
	ledgerLocks [ledgerStripes]sync.Mutex
}

// NewCacheStore builds the advice cache over kv.
func NewCacheStore(kv KVStore, cfg Config) *CacheStore {
	cfg = cfg.withDefaults()
	return &CacheStore{
		kv:          kv,
		retention:   cfg.Retention,
		topicWindow: cfg.TopicWindowDays,
	}
}

// Get returns the entry stored for (userID, date). Freshness is left to the caller.
func (s *CacheStore) Get(ctx context.Context, userID, date string) (CacheEntry, bool, error) {
	data, ok, err := s.kv.Get(ctx, adviceKey(userID, date))
	if err != nil || !ok {
		return CacheEntry{}, false, err
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return CacheEntry{}, false, fmt.Errorf("decode advice entry: %w", err)
	}
	if !isCompleteAdvice(entry.Advice) {
		return CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put replaces the entry for (userID, date) and records the daily try topic.
func (s *CacheStore) Put(ctx context.Context, userID, date string, advice GeneratedAdvice) error {
	entry := CacheEntry{Advice: advice, GeneratedAt: advice.GeneratedAt}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode advice entry: %w", err)
	}
	if err := s.kv.Set(ctx, adviceKey(userID, date), data, s.retention); err != nil {
		return err
	}
	return s.appendTopic(ctx, userID, TopicRecord{Topic: advice.DailyTry.Topic, Date: date})
}

// GetFallback scans the previous maxLookback days, nearest first.
func (s *CacheStore) GetFallback(ctx context.Context, userID, date string, maxLookback int) (FallbackHit, bool, error) {
	var lastErr error
	for daysOld := 1; daysOld <= maxLookback; daysOld++ {
		day, err := util.AddDays(date, -daysOld)
		if err != nil {
			return FallbackHit{}, false, err
		}
		entry, ok, err := s.Get(ctx, userID, day)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return FallbackHit{Date: day, Entry: entry, DaysOld: daysOld}, true, nil
		}
	}
	return FallbackHit{}, false, lastErr
}

// RecentTopics returns the ledger topics inside the window, newest first.
func (s *CacheStore) RecentTopics(ctx context.Context, userID, asOf string) ([]string, error) {
	records, err := s.loadLedger(ctx, userID)
	if err != nil {
		return nil, err
	}
	records = pruneLedger(records, asOf, s.topicWindow)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date > records[j].Date
	})
	topics := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		if _, ok := seen[record.Topic]; ok {
			continue
		}
		seen[record.Topic] = struct{}{}
		topics = append(topics, record.Topic)
	}
	return topics, nil
}

func (s *CacheStore) appendTopic(ctx context.Context, userID string, record TopicRecord) error {
	if record.Topic == "" {
		return nil
	}
	lock := s.ledgerLock(userID)
	lock.Lock()
	defer lock.Unlock()

	records, err := s.loadLedger(ctx, userID)
	switch {
	case errors.Is(err, errCorruptLedger):
		records = nil
	case err != nil:
		return fmt.Errorf("load topic ledger: %w", err)
	}
	duplicate := false
	for _, existing := range records {
		if existing == record {
			duplicate = true
			break
		}
	}
	if !duplicate {
		records = append(records, record)
	}
	records = pruneLedger(records, record.Date, s.topicWindow)

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode topic ledger: %w", err)
	}
	ttl := time.Duration(s.topicWindow+1) * 24 * time.Hour
	return s.kv.Set(ctx, topicsKey(userID), data, ttl)
}

func (s *CacheStore) loadLedger(ctx context.Context, userID string) ([]TopicRecord, error) {
	data, ok, err := s.kv.Get(ctx, topicsKey(userID))
	if err != nil || !ok {
		return nil, err
	}
	var records []TopicRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptLedger, err)
	}
	return records, nil
}

func (s *CacheStore) ledgerLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.ledgerLocks[h.Sum32()%ledgerStripes]
}

// pruneLedger drops records more than window days older than asOf and
// records with unparseable dates.
func pruneLedger(records []TopicRecord, asOf string, window int) []TopicRecord {
	kept := make([]TopicRecord, 0, len(records))
	for _, record := range records {
		age, err := util.DaysBetween(record.Date, asOf)
		if err != nil || age > window {
			continue
		}
		kept = append(kept, record)
	}
	return kept
}
