package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ChelseaDH/game-server/internal/entity"
)

var ErrUnknownOutcome = errors.New("unknown outcome")

const (
	keyWinsX     = "scoreboard:wins:X"
	keyWinsO     = "scoreboard:wins:O"
	keyDraws     = "scoreboard:draws"
	keyAbandoned = "scoreboard:abandoned"
)

// Totals are the aggregate counters the scoreboard keeps. Individual
// matches are never stored.
type Totals struct {
	WinsX     int64 `json:"wins_x"`
	WinsO     int64 `json:"wins_o"`
	Draws     int64 `json:"draws"`
	Abandoned int64 `json:"abandoned"`
}

type ScoreboardRepository interface {
	RecordOutcome(ctx context.Context, outcome, winner string) error
	Totals(ctx context.Context) (Totals, error)
}

type dbScoreboard struct {
	client *redis.Client
}

func NewScoreboardRepository(client *redis.Client) ScoreboardRepository {
	return &dbScoreboard{
		client: client,
	}
}

func (that *dbScoreboard) RecordOutcome(ctx context.Context, outcome, winner string) error {
	key, err := outcomeKey(outcome, winner)
	if err != nil {
		return err
	}

	if err = that.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to increment %s: %w", key, err)
	}

	return nil
}

func (that *dbScoreboard) Totals(ctx context.Context) (Totals, error) {
	values, err := that.client.MGet(ctx, keyWinsX, keyWinsO, keyDraws, keyAbandoned).Result()
	if err != nil {
		return Totals{}, fmt.Errorf("failed to read scoreboard: %w", err)
	}

	return Totals{
		WinsX:     parseCounter(values[0]),
		WinsO:     parseCounter(values[1]),
		Draws:     parseCounter(values[2]),
		Abandoned: parseCounter(values[3]),
	}, nil
}

func outcomeKey(outcome, winner string) (string, error) {
	switch outcome {
	case entity.OutcomeWin:
		switch winner {
		case entity.PlayerX:
			return keyWinsX, nil
		case entity.PlayerO:
			return keyWinsO, nil
		default:
			return "", fmt.Errorf("%w: win by %q", ErrUnknownOutcome, winner)
		}
	case entity.OutcomeDraw:
		return keyDraws, nil
	case entity.OutcomeAbandoned:
		return keyAbandoned, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}
}

// parseCounter - MGET reports missing keys as nil, which reads as zero.
func parseCounter(value any) int64 {
	raw, ok := value.(string)
	if !ok {
		return 0
	}

	counter, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}

	return counter
}
