package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/geo"
	"github.com/i474232898/treemap/internal/geocoding"
	"github.com/i474232898/treemap/internal/metrics"
)

const (
	DefaultQuietPeriod  = 700 * time.Millisecond
	DefaultMaxAccuracy  = 200.0
	DefaultFetchTimeout = 10 * time.Second
)

// Tracker follows a live location and keeps the district containing it.
//
// Updates are filtered (accuracy, snapped duplicates, containment in the current boundary)
// and debounced; only the latest lookup may change the state.
type Tracker struct {
	svc          geocoding.Service
	cache        *district.BoundaryCache
	quiet        time.Duration
	maxAccuracy  float64
	fetchTimeout time.Duration
	clock        Clock
	log          *logrus.Entry

	mu          sync.Mutex
	state       State
	current     *district.Boundary
	lastSuccess *district.Boundary
	lastKey     string
	timer       Timer
	timerGen    uint64
	seq         uint64
	cancel      context.CancelFunc
	subs        map[int]chan State
	nextSub     int
	closed      bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithQuietPeriod sets the debounce interval.
func WithQuietPeriod(d time.Duration) Option {
	return func(t *Tracker) { t.quiet = d }
}

// WithMaxAccuracy sets the accuracy (meters) above which updates are ignored.
func WithMaxAccuracy(m float64) Option {
	return func(t *Tracker) { t.maxAccuracy = m }
}

// WithFetchTimeout bounds each lookup.
func WithFetchTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.fetchTimeout = d }
}

// WithClock sets the clock used for debounce timers.
func WithClock(c Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(t *Tracker) { t.log = l }
}

// New creates an idle Tracker. cache may be shared between trackers; nil creates a private one.
func New(svc geocoding.Service, cache *district.BoundaryCache, opts ...Option) *Tracker {
	if cache == nil {
		cache = district.NewBoundaryCache()
	}
	t := &Tracker{
		svc:          svc,
		cache:        cache,
		quiet:        DefaultQuietPeriod,
		maxAccuracy:  DefaultMaxAccuracy,
		fetchTimeout: DefaultFetchTimeout,
		clock:        realClock{},
		log:          logrus.WithField("component", "tracker"),
		subs:         make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe feeds a location update. A nil location means the position is no longer known:
// the tracker resets to idle and any pending or in-flight lookup is discarded.
func (t *Tracker) Observe(loc *geo.Coordinate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	if loc == nil {
		t.reset()
		return
	}

	snapped := geo.Snap(*loc)
	key := snapped.Key()
	out := gate(*loc, key, t.lastKey, t.current, t.maxAccuracy)
	metrics.TrackerUpdatesTotal.WithLabelValues(string(out)).Inc()

	switch out {
	case outcomeInaccurate, outcomeDuplicate:
		return
	case outcomeInside:
		// Still inside the known district: a pending lookup for an earlier point is moot.
		// lastKey only tracks issued requests, so it is left alone.
		t.stopTimer()
		return
	}

	t.lastKey = key
	t.stopTimer()
	gen := t.timerGen
	t.timer = t.clock.AfterFunc(t.quiet, func() { t.fire(gen, snapped) })
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Contains reports whether the point lies inside the current district boundary.
func (t *Tracker) Contains(lat, lng float64) bool {
	t.mu.Lock()
	cur := t.current
	t.mu.Unlock()

	return cur.Contains(geo.Coordinate{Latitude: lat, Longitude: lng}.Point())
}

// Subscribe returns a channel receiving every state change, and a func to unsubscribe.
// When the subscriber falls behind, the oldest buffered states are discarded.
func (t *Tracker) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		close(ch)
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()

			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
		})
	}
}

// Close stops timers, cancels the in-flight lookup and closes subscriber channels.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	t.stopTimer()
	t.seq++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

func (t *Tracker) fire(gen uint64, loc geo.SnappedCoordinate) {
	t.mu.Lock()
	if t.closed || gen != t.timerGen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.seq++
	seq := t.seq
	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.fetchTimeout)
	t.cancel = cancel
	t.setState(State{Status: StatusLoading, Boundary: t.lastSuccess})
	t.mu.Unlock()

	go t.lookup(ctx, seq, loc)
}

func (t *Tracker) lookup(ctx context.Context, seq uint64, loc geo.SnappedCoordinate) {
	log := t.log.WithFields(logrus.Fields{"seq": seq, "lat": loc.Latitude, "lng": loc.Longitude})

	body, err := t.svc.DistrictByPoint(ctx, loc.Latitude, loc.Longitude, district.LevelSigungu)
	var b *district.Boundary
	if err == nil {
		b, err = district.Resolve(district.LevelSigungu, body)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || seq != t.seq {
		metrics.TrackerLookupsTotal.WithLabelValues("stale").Inc()
		log.Debug("dropping superseded lookup")
		return
	}
	t.cancel()
	t.cancel = nil

	if err != nil {
		kind := classify(err)
		metrics.TrackerLookupsTotal.WithLabelValues(string(kind)).Inc()
		log.WithError(err).WithField("kind", kind).Warn("district lookup failed")
		t.setState(State{Status: StatusError, Boundary: t.lastSuccess, Kind: kind, Message: err.Error()})
		return
	}

	if t.current != nil && b.Code == t.current.Code {
		metrics.TrackerLookupsTotal.WithLabelValues("unchanged").Inc()
		if !t.current.HasRing() {
			if cached, ok := t.cache.District(b.Code); ok && cached.HasRing() {
				t.current = cached
			} else if b.HasRing() {
				t.current = b
			}
		}
		t.lastSuccess = t.current
		t.setState(State{Status: StatusSuccess, Boundary: t.current})
		return
	}

	stored := t.cache.PutDistrict(b)
	t.current = stored
	t.lastSuccess = stored
	metrics.TrackerLookupsTotal.WithLabelValues("changed").Inc()
	log.WithFields(logrus.Fields{"code": stored.Code, "name": stored.KoreanName}).Info("district changed")
	t.setState(State{Status: StatusSuccess, Boundary: stored})
}

// reset must be called with t.mu held.
func (t *Tracker) reset() {
	t.stopTimer()
	t.seq++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.current = nil
	t.lastSuccess = nil
	t.lastKey = ""
	if t.state.Status != StatusIdle || t.state.Boundary != nil {
		t.setState(State{Status: StatusIdle})
	}
}

// stopTimer must be called with t.mu held. Bumping the generation makes a callback
// that already started before Stop a no-op.
func (t *Tracker) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.timerGen++
}

// setState must be called with t.mu held.
func (t *Tracker) setState(s State) {
	t.state = s
	for _, ch := range t.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
