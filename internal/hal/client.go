package hal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CZERTAINLY/sensord/internal/sched"
)

type Kind string

const (
	KindAuthenticate Kind = "authenticate"
	KindEnroll       Kind = "enroll"
	KindDetect       Kind = "detect"
	KindCleanup      Kind = "cleanup"
	KindSetUser      Kind = "set_user"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAuthenticate, KindEnroll, KindDetect, KindCleanup, KindSetUser:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// acquisition kinds read the sensor and light up its availability.
func (k Kind) acquisition() bool {
	return k == KindAuthenticate || k == KindEnroll || k == KindDetect
}

// Client is a hardware backed sched.Monitor running one session on a Sensor.
// It reports completion exactly once.
type Client struct {
	kind   Kind
	sensor *Sensor
	cookie int

	mx       sync.Mutex
	cancel   context.CancelFunc
	reported bool
	unable   bool
}

func NewClient(kind Kind, sensor *Sensor, cookie int) *Client {
	return &Client{
		kind:   kind,
		sensor: sensor,
		cookie: cookie,
	}
}

func (c *Client) Kind() Kind {
	return c.kind
}

func (c *Client) SensorID() int {
	return c.sensor.ID()
}

func (c *Client) Cookie() int {
	return c.cookie
}

func (c *Client) String() string {
	return fmt.Sprintf("%s@%s", c.kind, c.sensor.Name())
}

// Capabilities: every client is cancellable and hardware backed, a user switch
// preempts whatever the previous user left running.
func (c *Client) Capabilities() sched.Capabilities {
	return sched.Capabilities{
		Cancel:      c,
		Hardware:    c,
		Acquisition: c.kind.acquisition(),
		Preempts:    c.kind == KindSetUser,
	}
}

func (c *Client) Start(cb sched.Callback) {
	ctx, cancel := context.WithCancel(context.Background())
	c.mx.Lock()
	c.cancel = cancel
	c.mx.Unlock()

	go func() {
		defer cancel()
		err := c.sensor.Session(ctx)
		if err != nil {
			slog.Debug("sensor session failed", "client", c.String(), "error", err)
		}
		c.report(cb, err == nil)
	}()
}

func (c *Client) Cancel() {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Client) CancelWithoutStarting(cb sched.Callback) {
	c.report(cb, false)
}

func (c *Client) Unstartable() bool {
	return c.sensor.Down()
}

func (c *Client) UnableToStart() {
	c.mx.Lock()
	c.unable = true
	c.mx.Unlock()
	slog.Warn("client unable to start", "client", c.String())
}

// Unable reports whether the scheduler aborted the client.
func (c *Client) Unable() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.unable
}

func (c *Client) report(cb sched.Callback, success bool) {
	c.mx.Lock()
	if c.reported {
		c.mx.Unlock()
		return
	}
	c.reported = true
	c.mx.Unlock()
	cb.OnFinished(c, success)
}
