// internal/publish/fanout.go
package publish

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/tamzrod/imu-bridge/internal/poller"
)

type named struct {
	name string
	pub  Publisher
}

// Fanout delivers every view to all publishers. One failing publisher does
// not stop delivery to the others.
type Fanout struct {
	pubs []named
}

func NewFanout() *Fanout {
	return &Fanout{}
}

func (f *Fanout) Add(name string, p Publisher) {
	f.pubs = append(f.pubs, named{name: name, pub: p})
}

func (f *Fanout) Len() int { return len(f.pubs) }

func (f *Fanout) Publish(v poller.View) error {
	var errs []string

	for _, p := range f.pubs {
		if err := p.pub.Publish(v); err != nil {
			errs = append(errs, fmt.Sprintf("publish: %s err=%v", p.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

func (f *Fanout) Close() error {
	var err error
	for _, p := range f.pubs {
		err = multierr.Append(err, p.pub.Close())
	}
	return err
}
