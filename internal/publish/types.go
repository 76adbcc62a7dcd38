// internal/publish/types.go
package publish

import "github.com/tamzrod/imu-bridge/internal/poller"

// Publisher delivers views to one consumer.
type Publisher interface {
	Publish(v poller.View) error
	Close() error
}
