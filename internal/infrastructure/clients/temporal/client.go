package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zatekoja/medisync/internal/infrastructure/observability"
	"github.com/zatekoja/medisync/pkg/config"
	"github.com/zatekoja/medisync/pkg/retry"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
)

const dialTimeout = 5 * time.Second

// NewClient dials the Temporal frontend, retrying until it is reachable.
func NewClient(ctx context.Context, cfg *config.TemporalConfig) (client.Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("temporal address is not configured")
	}

	logger := observability.GetLogger()
	opts := client.Options{
		HostPort:  cfg.Address,
		Namespace: cfg.Namespace,
		Logger:    NewLogger(logger),
	}

	var c client.Client
	err := retry.DoWithLog(ctx, retry.DefaultConfig(), "Temporal", func() error {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()

		var err error
		c, err = client.DialContext(dialCtx, opts)
		return err
	}, func(attempt int, err error, nextDelay time.Duration) {
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("next_delay", nextDelay).
			Str("address", cfg.Address).
			Msg("temporal not reachable; retrying")
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial failed (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
	}

	logger.Info().Str("address", cfg.Address).Str("namespace", cfg.Namespace).Msg("connected to Temporal")
	return c, nil
}

// Logger adapts zerolog to the SDK's key/value logger.
type Logger struct {
	zl *zerolog.Logger
}

var _ log.Logger = (*Logger)(nil)

// NewLogger wraps zl for use in client and worker options.
func NewLogger(zl *zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.write(l.zl.Debug(), msg, keyvals) }
func (l *Logger) Info(msg string, keyvals ...interface{})  { l.write(l.zl.Info(), msg, keyvals) }
func (l *Logger) Warn(msg string, keyvals ...interface{})  { l.write(l.zl.Warn(), msg, keyvals) }
func (l *Logger) Error(msg string, keyvals ...interface{}) { l.write(l.zl.Error(), msg, keyvals) }

func (l *Logger) write(event *zerolog.Event, msg string, keyvals []interface{}) {
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if err, isErr := keyvals[i+1].(error); isErr {
			event = event.AnErr(key, err)
			continue
		}
		event = event.Interface(key, keyvals[i+1])
	}
	if len(keyvals)%2 == 1 {
		event = event.Interface("extra", keyvals[len(keyvals)-1])
	}
	event.Msg(msg)
}
