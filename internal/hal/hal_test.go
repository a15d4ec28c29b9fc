package hal_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/CZERTAINLY/sensord/internal/hal"
	"github.com/CZERTAINLY/sensord/internal/sched"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type result struct {
	m       sched.Monitor
	success bool
}

type chanCallback chan result

func (c chanCallback) OnFinished(m sched.Monitor, success bool) {
	c <- result{m: m, success: success}
}

func TestSensorSession(t *testing.T) {
	t.Parallel()
	sensor := hal.NewSensor(1, "fp", 50*time.Millisecond)

	var g sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		g.Go(func() {
			errs[i] = sensor.Session(t.Context())
		})
		time.Sleep(10 * time.Millisecond)
	}
	g.Wait()

	require.NoError(t, errs[0])
	require.ErrorIs(t, errs[1], hal.ErrSensorBusy)
	require.Equal(t, 1, sensor.Overlaps())
	require.Equal(t, 1, sensor.Sessions())

	sensor.SetFailing(true)
	require.True(t, sensor.Failing())
	require.ErrorIs(t, sensor.Session(t.Context()), hal.ErrNoMatch)

	sensor.SetDown(true)
	require.True(t, sensor.Down())
	require.ErrorIs(t, sensor.Session(t.Context()), hal.ErrSensorDown)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	sensor.SetDown(false)
	require.ErrorIs(t, sensor.Session(ctx), context.Canceled)
}

func TestParseKind(t *testing.T) {
	k, err := hal.ParseKind("enroll")
	require.NoError(t, err)
	require.Equal(t, hal.KindEnroll, k)

	_, err = hal.ParseKind("reboot")
	require.ErrorIs(t, err, hal.ErrUnknownKind)
}

func TestClient(t *testing.T) {
	t.Parallel()
	sensor := hal.NewSensor(3, "face", 20*time.Millisecond)

	t.Run("capabilities", func(t *testing.T) {
		caps := hal.NewClient(hal.KindAuthenticate, sensor, 0).Capabilities()
		require.NotNil(t, caps.Cancel)
		require.NotNil(t, caps.Hardware)
		require.True(t, caps.Acquisition)
		require.False(t, caps.Preempts)

		caps = hal.NewClient(hal.KindSetUser, sensor, 0).Capabilities()
		require.False(t, caps.Acquisition)
		require.True(t, caps.Preempts)
	})

	t.Run("start", func(t *testing.T) {
		cb := make(chanCallback, 2)
		c := hal.NewClient(hal.KindAuthenticate, sensor, 7)
		require.Equal(t, 3, c.SensorID())
		require.Equal(t, 7, c.Cookie())
		require.Equal(t, "authenticate@face", c.String())
		c.Start(cb)
		res := <-cb
		require.Same(t, c, res.m)
		require.True(t, res.success)
		// reported only once
		c.CancelWithoutStarting(cb)
		require.Empty(t, cb)
	})

	t.Run("cancel", func(t *testing.T) {
		slow := hal.NewSensor(4, "slow", time.Hour)
		cb := make(chanCallback, 1)
		c := hal.NewClient(hal.KindEnroll, slow, 0)
		c.Start(cb)
		c.Cancel()
		res := <-cb
		require.False(t, res.success)
	})

	t.Run("cancel without starting", func(t *testing.T) {
		cb := make(chanCallback, 2)
		c := hal.NewClient(hal.KindDetect, sensor, 0)
		c.CancelWithoutStarting(cb)
		c.CancelWithoutStarting(cb)
		require.Len(t, cb, 1)
		require.False(t, (<-cb).success)
	})

	t.Run("unable to start", func(t *testing.T) {
		down := hal.NewSensor(5, "down", 0)
		down.SetDown(true)
		c := hal.NewClient(hal.KindCleanup, down, 0)
		require.True(t, c.Unstartable())
		require.False(t, c.Unable())
		c.UnableToStart()
		require.True(t, c.Unable())
	})
}
