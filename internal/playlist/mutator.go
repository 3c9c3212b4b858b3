// Package playlist appends admitted tracks to the remote playlist.
package playlist

import (
	"context"
	"time"

	"go.uber.org/zap"

	"spoticord/internal/core"
)

// Appender is the catalog call the mutator wraps.
type Appender interface {
	AddToPlaylist(ctx context.Context, playlistID, trackID string) error
}

// Mutator performs a single bounded append per call. Failures are not retried.
type Mutator struct {
	appender Appender
	timeout  time.Duration
	logger   *zap.Logger
}

func NewMutator(appender Appender, timeout time.Duration, logger *zap.Logger) *Mutator {
	return &Mutator{appender: appender, timeout: timeout, logger: logger}
}

// Append adds trackID to playlistID. In a test context nothing is sent and the
// call succeeds.
func (m *Mutator) Append(ctx context.Context, trackID, playlistID string, isTest bool) error {
	if isTest {
		m.logger.Info("Dry run, not touching playlist",
			zap.String("trackID", trackID),
			zap.String("playlistID", playlistID))
		return nil
	}

	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.appender.AddToPlaylist(rctx, playlistID, trackID); err != nil {
		return core.NewRemoteError("add "+trackID+" to playlist "+playlistID, err)
	}

	m.logger.Info("Track added to playlist",
		zap.String("trackID", trackID),
		zap.String("playlistID", playlistID))
	return nil
}
