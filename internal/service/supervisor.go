package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/sensord/internal/hal"
	"github.com/CZERTAINLY/sensord/internal/journal"
	"github.com/CZERTAINLY/sensord/internal/model"
	"github.com/CZERTAINLY/sensord/internal/notify"
	"github.com/CZERTAINLY/sensord/internal/sched"
)

var (
	ErrUnknownSensor = errors.New("unknown sensor")
	ErrNotFound      = errors.New("operation not found")
	ErrNoJournal     = errors.New("journal is not configured")
)

// maxTickets bounds the registry of submitted operations kept for lookups.
const maxTickets = 1024

type unit struct {
	sensor *hal.Sensor
	sched  *sched.Scheduler
}

// Supervisor owns a scheduler per configured sensor together with the
// collaborators they share.
type Supervisor struct {
	ids          []int
	units        map[int]unit
	availability *notify.Availability
	webhook      *notify.Webhook
	journal      *journal.Journal
	maintenance  gocron.Scheduler

	mx      sync.Mutex
	tickets map[uuid.UUID]ticket
	order   []uuid.UUID
}

type ticket struct {
	sensor int
	kind   hal.Kind
	cookie int
	t      *sched.Ticket
}

// SensorStatus is a scheduler snapshot plus the hardware view.
type SensorStatus struct {
	sched.Status
	Active  bool `json:"active"`
	Down    bool `json:"down"`
	Failing bool `json:"failing"`
}

// HardwareState holds the switches of a simulated sensor. A down sensor can't
// open sessions, so the scheduler aborts its queue; a failing one completes
// every session unsuccessfully.
type HardwareState struct {
	Down    bool `json:"down"`
	Failing bool `json:"failing"`
}

// Operation is the outcome of a submitted operation as far as it is known.
type Operation struct {
	ID      uuid.UUID `json:"id"`
	Sensor  int       `json:"sensor"`
	Kind    string    `json:"kind,omitempty"`
	Cookie  int       `json:"cookie,omitempty"`
	Done    bool      `json:"done"`
	Success bool      `json:"success"`
	// Record is set for operations found in the journal.
	Record *sched.Record `json:"record,omitempty"`
}

func NewSupervisor(ctx context.Context, cfg model.Config) (_ *Supervisor, err error) {
	if cfg.Version != 0 {
		return nil, fmt.Errorf("config version %d is not supported, expected 0", cfg.Version)
	}
	svcCfg := cfg.Service

	s := &Supervisor{
		units:        make(map[int]unit, len(cfg.Sensors)),
		availability: notify.NewAvailability(),
		tickets:      make(map[uuid.UUID]ticket),
	}
	defer func() {
		if err != nil {
			_ = s.close(ctx)
		}
	}()

	var authority sched.ReadinessAuthority = notify.LogAuthority{}
	if wh := cfg.Readiness.Webhook; wh != nil {
		timeout, err := wh.TimeoutDuration()
		if err != nil {
			return nil, fmt.Errorf("parsing readiness.webhook.timeout: %w", err)
		}
		s.webhook, err = notify.NewWebhook(wh.URL, timeout)
		if err != nil {
			return nil, fmt.Errorf("initializing readiness webhook: %w", err)
		}
		authority = s.webhook
	}

	if svcCfg.Journal != "" {
		j, err := journal.Open(ctx, svcCfg.Journal, journal.DefaultBuffer)
		if err != nil {
			return nil, fmt.Errorf("opening journal %s: %w", svcCfg.Journal, err)
		}
		s.journal = j
	}

	for _, sc := range cfg.Sensors {
		if _, ok := s.units[sc.ID]; ok {
			return nil, fmt.Errorf("duplicate sensor id %d", sc.ID)
		}
		latency, err := sc.LatencyDuration()
		if err != nil {
			return nil, err
		}
		sch := sched.New(sched.Config{
			SensorID: sc.ID,
			Name:     sc.Name,
			History:  svcCfg.History,
		}, authority, s.availability)
		if s.journal != nil {
			sch.WithObserver(s.journal)
		}
		s.units[sc.ID] = unit{
			sensor: hal.NewSensor(sc.ID, sc.Name, latency),
			sched:  sch,
		}
		s.ids = append(s.ids, sc.ID)
	}
	slices.Sort(s.ids)

	if m := svcCfg.Maintenance; m != nil {
		s.maintenance, err = newScheduler(ctx, *m, func() { s.Maintain(ctx) })
		if err != nil {
			return nil, fmt.Errorf("maintenance schedule failed: %w", err)
		}
	}
	return s, nil
}

// Sensors returns the sorted ids of configured sensors.
func (s *Supervisor) Sensors() []int {
	return slices.Clone(s.ids)
}

// Hardware returns the simulated sensor with id.
func (s *Supervisor) Hardware(id int) (*hal.Sensor, error) {
	u, ok := s.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSensor, id)
	}
	return u.sensor, nil
}

// SetHardware flips the switches of a sensor and returns the new state.
func (s *Supervisor) SetHardware(ctx context.Context, sensorID int, hw HardwareState) (HardwareState, error) {
	sensor, err := s.Hardware(sensorID)
	if err != nil {
		return HardwareState{}, err
	}
	sensor.SetDown(hw.Down)
	sensor.SetFailing(hw.Failing)
	slog.InfoContext(ctx, "sensor hardware changed",
		slog.Int("sensor", sensorID),
		slog.Bool("down", hw.Down),
		slog.Bool("failing", hw.Failing))
	return HardwareState{Down: sensor.Down(), Failing: sensor.Failing()}, nil
}

// ActiveSensors returns the sorted ids of sensors running an acquisition.
func (s *Supervisor) ActiveSensors() []int {
	return s.availability.ActiveSensors()
}

// History returns up to limit newest journal records of a sensor, or of all
// sensors when sensorID is negative.
func (s *Supervisor) History(ctx context.Context, sensorID int, limit int) ([]sched.Record, error) {
	if sensorID >= 0 {
		if _, ok := s.units[sensorID]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownSensor, sensorID)
		}
	}
	if s.journal == nil {
		return nil, ErrNoJournal
	}
	recs, err := s.journal.List(ctx, sensorID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing journal: %w", err)
	}
	if recs == nil {
		recs = []sched.Record{}
	}
	return recs, nil
}

// Submit queues an operation of kind on a sensor.
func (s *Supervisor) Submit(ctx context.Context, sensorID int, kind hal.Kind, cookie int) (uuid.UUID, error) {
	u, ok := s.units[sensorID]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %d", ErrUnknownSensor, sensorID)
	}
	if _, err := hal.ParseKind(string(kind)); err != nil {
		return uuid.Nil, err
	}

	client := hal.NewClient(kind, u.sensor, cookie)
	t := u.sched.Submit(client, nil)
	s.remember(t.ID(), ticket{sensor: sensorID, kind: kind, cookie: cookie, t: t})
	slog.DebugContext(ctx, "operation submitted",
		slog.Int("sensor", sensorID),
		slog.String("kind", string(kind)),
		slog.String("id", t.ID().String()))
	return t.ID(), nil
}

// Cancel asks the sensor's scheduler to cancel an operation. Operations which
// are known to belong to another sensor are reported as not found.
func (s *Supervisor) Cancel(sensorID int, id uuid.UUID) error {
	u, ok := s.units[sensorID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSensor, sensorID)
	}
	s.mx.Lock()
	t, known := s.tickets[id]
	s.mx.Unlock()
	if known && t.sensor != sensorID {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	u.sched.RequestCancel(id)
	return nil
}

func (s *Supervisor) PromoteCookie(sensorID, cookie int) error {
	u, ok := s.units[sensorID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSensor, sensorID)
	}
	u.sched.PromoteCookie(cookie)
	return nil
}

func (s *Supervisor) Status(ctx context.Context, sensorID int) (SensorStatus, error) {
	u, ok := s.units[sensorID]
	if !ok {
		return SensorStatus{}, fmt.Errorf("%w: %d", ErrUnknownSensor, sensorID)
	}
	st, err := u.sched.Status(ctx)
	if err != nil {
		return SensorStatus{}, err
	}
	return SensorStatus{
		Status: st,
		Active:  s.availability.Active(sensorID),
		Down:    u.sensor.Down(),
		Failing: u.sensor.Failing(),
	}, nil
}

// StatusAll queries every scheduler concurrently. A slow loop delays only
// its own entry.
func (s *Supervisor) StatusAll(ctx context.Context) ([]SensorStatus, error) {
	ret := make([]SensorStatus, len(s.ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range s.ids {
		g.Go(func() error {
			st, err := s.Status(gctx, id)
			if err != nil {
				return err
			}
			ret[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Operation looks up a submitted operation, falling back to the journal for
// operations no longer in memory.
func (s *Supervisor) Operation(ctx context.Context, id uuid.UUID) (Operation, error) {
	s.mx.Lock()
	t, ok := s.tickets[id]
	s.mx.Unlock()
	if ok {
		op := Operation{
			ID:     id,
			Sensor: t.sensor,
			Kind:   string(t.kind),
			Cookie: t.cookie,
		}
		select {
		case <-t.t.Done():
			op.Done = true
			op.Success = t.t.Success()
		default:
		}
		return op, nil
	}

	if s.journal == nil {
		return Operation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec, err := s.journal.Get(ctx, id)
	if errors.Is(err, journal.ErrNotFound) {
		return Operation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	} else if err != nil {
		return Operation{}, err
	}
	return Operation{
		ID:      id,
		Sensor:  rec.SensorID,
		Done:    true,
		Success: rec.Success,
		Record:  &rec,
	}, nil
}

// Maintain submits a cleanup to every sensor.
func (s *Supervisor) Maintain(ctx context.Context) {
	slog.DebugContext(ctx, "triggering maintenance")
	for _, id := range s.ids {
		if _, err := s.Submit(ctx, id, hal.KindCleanup, 0); err != nil {
			slog.ErrorContext(ctx, "maintenance submit failed", "sensor", id, "error", err)
		}
	}
}

// Do runs all scheduler loops until ctx is cancelled. The journal keeps
// writing until the loops are gone, so that aborted operations get recorded.
func (s *Supervisor) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a supervisor", "sensors", s.ids)

	if s.maintenance != nil {
		s.maintenance.Start()
		defer func() {
			err := s.maintenance.Shutdown()
			if err != nil {
				slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
			}
		}()
	}

	var jg errgroup.Group
	jctx, jcancel := context.WithCancel(context.WithoutCancel(ctx))
	if s.journal != nil {
		jg.Go(func() error {
			return s.journal.Run(jctx)
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range s.ids {
		u := s.units[id]
		g.Go(func() error {
			return u.sched.Do(gctx)
		})
	}
	err := g.Wait()

	jcancel()
	return errors.Join(err, jg.Wait(), s.close(ctx))
}

func (s *Supervisor) close(ctx context.Context) error {
	var errs []error
	if s.webhook != nil {
		if err := s.webhook.Close(); err != nil {
			slog.ErrorContext(ctx, "closing webhook have failed", "error", err)
			errs = append(errs, err)
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			slog.ErrorContext(ctx, "closing journal have failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// remember registers t and evicts the oldest finished tickets once the
// registry is full.
func (s *Supervisor) remember(id uuid.UUID, t ticket) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.tickets[id] = t
	s.order = append(s.order, id)
	if len(s.order) <= maxTickets {
		return
	}
	keep := s.order[:0]
	excess := len(s.order) - maxTickets
	for _, oid := range s.order {
		if excess > 0 {
			select {
			case <-s.tickets[oid].t.Done():
				delete(s.tickets, oid)
				excess--
				continue
			default:
			}
		}
		keep = append(keep, oid)
	}
	s.order = keep
}

func newScheduler(ctx context.Context, cfg model.Maintenance, task func()) (gocron.Scheduler, error) {
	var job gocron.JobDefinition
	switch {
	case cfg.Cron != "":
		schedule, err := model.ParseCron(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("parsing service.maintenance.cron: %w", err)
		}
		job = gocron.CronJob(cfg.Cron, false)
		slog.DebugContext(ctx, "successfully parsed",
			"cron", cfg.Cron,
			"interval", model.CronInterval(schedule, time.Now()).String())
	case cfg.Duration != "":
		d, err := model.ParseISODuration(cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing service.maintenance.duration: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("service.maintenance.duration must be positive, got %s", d)
		}
		slog.DebugContext(ctx, "successfully parsed", "duration", d.String())
		job = gocron.DurationJob(d)
	default:
		return nil, errors.New("both cron and duration are empty")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		job,
		gocron.NewTask(task),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}
