package agent

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/izzyreal/nodeagent/internal/apiclient"
	"github.com/izzyreal/nodeagent/internal/config"
)

type heartbeater interface {
	Heartbeat(ctx context.Context, nodeUUID string, advertise apiclient.AdvertiseAddress) (float64, error)
}

type heartbeatLoop struct {
	client      heartbeater
	nodeUUID    string
	advertise   apiclient.AdvertiseAddress
	minFraction float64
	maxFraction float64
	errorDelay  time.Duration
	log         *slog.Logger

	now   func() time.Time
	rand  func() float64
	after func(time.Duration) <-chan time.Time
}

func newHeartbeatLoop(client heartbeater, nodeUUID string, advertise apiclient.AdvertiseAddress, cfg config.Heartbeat, logger *slog.Logger) *heartbeatLoop {
	return &heartbeatLoop{
		client:      client,
		nodeUUID:    nodeUUID,
		advertise:   advertise,
		minFraction: cfg.MinFraction,
		maxFraction: cfg.MaxFraction,
		errorDelay:  cfg.ErrorDelay.Std(),
		log:         logger,
		now:         time.Now,
		rand:        rand.Float64,
		after:       time.After,
	}
}

// run heartbeats immediately and then before every deadline the API hands back.
// It returns nil once ctx is done.
func (l *heartbeatLoop) run(ctx context.Context) error {
	for {
		delay := l.beat(ctx)
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-l.after(delay):
		}
	}
}

func (l *heartbeatLoop) beat(ctx context.Context) time.Duration {
	deadline, err := l.client.Heartbeat(ctx, l.nodeUUID, l.advertise)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Error("heartbeat failed", "uuid", l.nodeUUID, "retry_in", l.errorDelay, "error", err)
		}
		return l.errorDelay
	}
	delay := nextHeartbeatDelay(deadline, l.now(), l.minFraction, l.maxFraction, l.rand())
	l.log.Debug("heartbeat sent", "uuid", l.nodeUUID, "heartbeat_before", deadline, "next_in", delay)
	return delay
}

// minHeartbeatDelay is the shortest wait between heartbeats, whatever the deadline.
const minHeartbeatDelay = time.Second

// nextHeartbeatDelay spreads the next heartbeat over [min, max] of the time left
// before deadline, a unix timestamp in seconds. r is uniform in [0, 1). The result
// is never below minHeartbeatDelay.
func nextHeartbeatDelay(deadline float64, now time.Time, minFraction, maxFraction, r float64) time.Duration {
	remaining := deadline - float64(now.UnixNano())/float64(time.Second)
	fraction := minFraction + (maxFraction-minFraction)*r
	delay := time.Duration(remaining * fraction * float64(time.Second))
	if delay < minHeartbeatDelay {
		return minHeartbeatDelay
	}
	return delay
}
