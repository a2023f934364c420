package persistence

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wfunc/codechallenge/models"
)

const winsKey = "challenge:wins"

// MemoryScores is a process-local scoreboard.
type MemoryScores struct {
	mu   sync.Mutex
	wins map[string]int64
}

var _ ScoreStore = (*MemoryScores)(nil)

func NewMemoryScores() *MemoryScores {
	return &MemoryScores{wins: make(map[string]int64)}
}

func (m *MemoryScores) AddWin(_ context.Context, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wins[username]++
	return m.wins[username], nil
}

func (m *MemoryScores) Scores(_ context.Context) ([]models.Score, error) {
	m.mu.Lock()
	scores := make([]models.Score, 0, len(m.wins))
	for name, wins := range m.wins {
		scores = append(scores, models.Score{Username: name, Wins: wins})
	}
	m.mu.Unlock()

	sortScores(scores)
	return scores, nil
}

func (m *MemoryScores) ResetScores(_ context.Context) error {
	m.mu.Lock()
	clear(m.wins)
	m.mu.Unlock()
	return nil
}

// Seed overwrites the win counts of the given players.
func (m *MemoryScores) Seed(counts map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, wins := range counts {
		m.wins[name] = wins
	}
}

func (m *MemoryScores) Close() error { return nil }

// RedisScores keeps the scoreboard in a redis hash so it outlives restarts
// and can be shared between server instances.
type RedisScores struct {
	client *redis.Client
}

var _ ScoreStore = (*RedisScores)(nil)

func NewRedisScores(url string) (*RedisScores, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisScores{client: client}, nil
}

// NewRedisScoresWithClient wraps an existing client (for testing).
func NewRedisScoresWithClient(client *redis.Client) *RedisScores {
	return &RedisScores{client: client}
}

func (r *RedisScores) AddWin(ctx context.Context, username string) (int64, error) {
	return r.client.HIncrBy(ctx, winsKey, username, 1).Result()
}

func (r *RedisScores) Scores(ctx context.Context) ([]models.Score, error) {
	all, err := r.client.HGetAll(ctx, winsKey).Result()
	if err != nil {
		return nil, err
	}

	scores := make([]models.Score, 0, len(all))
	for name, v := range all {
		var wins int64
		if _, err := fmt.Sscan(v, &wins); err != nil {
			return nil, fmt.Errorf("bad win count %q for %s: %w", v, name, err)
		}
		scores = append(scores, models.Score{Username: name, Wins: wins})
	}
	sortScores(scores)
	return scores, nil
}

func (r *RedisScores) ResetScores(ctx context.Context) error {
	return r.client.Del(ctx, winsKey).Err()
}

func (r *RedisScores) Close() error {
	return r.client.Close()
}

func sortScores(scores []models.Score) {
	slices.SortFunc(scores, func(a, b models.Score) int {
		if a.Wins != b.Wins {
			if a.Wins > b.Wins {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Username, b.Username)
	})
}
