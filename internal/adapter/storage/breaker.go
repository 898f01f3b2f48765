package storage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker"
	"gorm.io/gorm"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

// guard runs every store call through a circuit breaker so a dead database
// fails fast instead of piling up goroutines on the live path.
type guard struct {
	cb *gobreaker.CircuitBreaker
}

func newGuard(name string, cfg config.DatabaseConfig, log *slog.Logger) *guard {
	return &guard{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// A missing row is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, model.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("STORE_BREAKER_STATE_CHANGED", "breaker", name, "from", from.String(), "to", to.String())
		},
	})}
}

func (g *guard) do(op string, fn func() error) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, translate(op, fn())
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %w", op, model.ErrStorage, err)
	}
	return err
}

// translate maps driver errors onto the domain sentinels.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNotFound):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w: %w", op, model.ErrStorage, err)
	}
}
