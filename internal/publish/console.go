// internal/publish/console.go
package publish

import (
	"fmt"
	"io"

	"github.com/tamzrod/imu-bridge/internal/poller"
)

// Console prints the text view whenever it changes.
type Console struct {
	w    io.Writer
	last string
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Publish(v poller.View) error {
	if v.Text == c.last {
		return nil
	}
	c.last = v.Text

	if v.Text == "" {
		_, err := fmt.Fprintln(c.w, "(no open devices)")
		return err
	}
	_, err := fmt.Fprintln(c.w, v.Text)
	return err
}

func (c *Console) Close() error { return nil }
