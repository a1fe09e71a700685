package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
)

const runKeyPrefix = "run:"

var ErrRunNotFound = errors.New("run not found")

// RunRepository stores run reports for the trigger API.
type RunRepository interface {
	Save(ctx context.Context, report models.RunReport) error
	Get(ctx context.Context, id string) (models.RunReport, error)
	List(ctx context.Context) ([]models.RunReport, error)
}

// RedisRunRepository keeps each run in a hash run:<id> that expires after ttl.
type RedisRunRepository struct {
	redis *redis.Client
	ttl   time.Duration
}

var _ RunRepository = (*RedisRunRepository)(nil)

func NewRedisRunRepository(redis *redis.Client, ttl time.Duration) *RedisRunRepository {
	return &RedisRunRepository{
		redis: redis,
		ttl:   ttl,
	}
}

func toHash(r models.RunReport) map[string]interface{} {
	h := map[string]interface{}{
		"run_id":      r.RunID,
		"status":      r.Status,
		"fetched":     r.Fetched,
		"new":         r.New,
		"cleaned":     r.Cleaned,
		"loaded":      r.Loaded,
		"first_run":   strconv.FormatBool(r.FirstRun),
		"error":       r.Error,
		"error_class": r.ErrorClass,
		"started_at":  "",
		"finished_at": "",
	}
	if !r.StartedAt.IsZero() {
		h["started_at"] = r.StartedAt.Format(time.RFC3339Nano)
	}
	if !r.FinishedAt.IsZero() {
		h["finished_at"] = r.FinishedAt.Format(time.RFC3339Nano)
	}
	return h
}

func fromHash(h map[string]string) models.RunReport {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(h[k])
		return n
	}
	parseTime := func(k string) time.Time {
		t, _ := time.Parse(time.RFC3339Nano, h[k])
		return t
	}
	firstRun, _ := strconv.ParseBool(h["first_run"])
	return models.RunReport{
		RunID:      h["run_id"],
		Status:     h["status"],
		Fetched:    atoi("fetched"),
		New:        atoi("new"),
		Cleaned:    atoi("cleaned"),
		Loaded:     atoi("loaded"),
		FirstRun:   firstRun,
		Error:      h["error"],
		ErrorClass: h["error_class"],
		StartedAt:  parseTime("started_at"),
		FinishedAt: parseTime("finished_at"),
	}
}

// Save overwrites the run's hash and refreshes its expiry.
func (r *RedisRunRepository) Save(ctx context.Context, report models.RunReport) error {
	key := runKeyPrefix + report.RunID
	pipe := r.redis.TxPipeline()
	pipe.HSet(ctx, key, toHash(report))
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run %s: %w", report.RunID, err)
	}
	return nil
}

func (r *RedisRunRepository) Get(ctx context.Context, id string) (models.RunReport, error) {
	result, err := r.redis.HGetAll(ctx, runKeyPrefix+id).Result()
	if err != nil {
		return models.RunReport{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	if len(result) == 0 {
		return models.RunReport{}, ErrRunNotFound
	}
	return fromHash(result), nil
}

// List returns every stored run, newest first.
func (r *RedisRunRepository) List(ctx context.Context) ([]models.RunReport, error) {
	var runs []models.RunReport
	iter := r.redis.Scan(ctx, 0, runKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		result, err := r.redis.HGetAll(ctx, iter.Val()).Result()
		if err == nil && len(result) > 0 {
			runs = append(runs, fromHash(result))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	sortNewestFirst(runs)
	return runs, nil
}

func sortNewestFirst(runs []models.RunReport) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return strings.Compare(runs[i].RunID, runs[j].RunID) < 0
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}

// MemoryRunRepository is used when no redis server is configured. Entries
// live for the lifetime of the process.
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[string]models.RunReport
}

var _ RunRepository = (*MemoryRunRepository)(nil)

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string]models.RunReport)}
}

func (m *MemoryRunRepository) Save(_ context.Context, report models.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[report.RunID] = report
	return nil
}

func (m *MemoryRunRepository) Get(_ context.Context, id string) (models.RunReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return models.RunReport{}, ErrRunNotFound
	}
	return r, nil
}

func (m *MemoryRunRepository) List(_ context.Context) ([]models.RunReport, error) {
	m.mu.RLock()
	runs := make([]models.RunReport, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.RUnlock()
	sortNewestFirst(runs)
	return runs, nil
}
