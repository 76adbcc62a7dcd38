// internal/publish/run.go
package publish

import (
	"context"

	"go.uber.org/zap"

	"github.com/tamzrod/imu-bridge/internal/poller"
)

// Run delivers views from in until ctx is done or in is closed.
// Publish failures are logged and do not stop delivery.
func Run(ctx context.Context, in <-chan poller.View, out Publisher, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("publish")

	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-in:
			if !ok {
				return nil
			}
			if err := out.Publish(v); err != nil {
				log.Warn("publish failed", zap.Uint64("cycle", v.Cycle), zap.Error(err))
			}
		}
	}
}
