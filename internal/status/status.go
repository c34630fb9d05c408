// Package status aggregates controller status into one shared record.
//
// The record is owned by a single goroutine (Tracker.Run). Controllers send
// partial updates as messages; HTTP handlers, MQTT and metrics read
// point-in-time snapshots or are notified through sinks. Concurrent updates
// from different controllers are applied one at a time, never interleaved.
package status

import (
	"context"
	"time"
)

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// Config contains daemon configuration for display.
type Config struct {
	Version     string
	Hostname    string
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type with its own copy of the record.
type Snapshot struct {
	Fields        Record
	StartTime     time.Time
	Now           time.Time
	LastUpdate    time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Update is one partial merge, as delivered to sinks.
type Update struct {
	Source string
	Time   time.Time
	Fields []Field
}

// Sink is notified after every merge. Sinks run on the tracker goroutine
// and must not call back into the Tracker.
type Sink interface {
	StatusUpdated(u Update, snap Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(u Update, snap Snapshot)

func (f SinkFunc) StatusUpdated(u Update, snap Snapshot) { f(u, snap) }

type state struct {
	snap  Snapshot
	sinks []Sink
}

// Tracker owns the shared status record.
type Tracker struct {
	ops   chan func(*state)
	done  chan struct{}
	final Snapshot
	now   func() time.Time

	init state
}

// NewTracker creates a Tracker with the given start time and config.
// Run must be started before Snapshot is called.
func NewTracker(startTime time.Time, cfg Config, sinks ...Sink) *Tracker {
	return &Tracker{
		ops:  make(chan func(*state), 64),
		done: make(chan struct{}),
		now:  time.Now,
		init: state{
			snap: Snapshot{
				StartTime: startTime,
				Config:    cfg,
			},
			sinks: sinks,
		},
	}
}

// Run applies updates until ctx is cancelled. Call it exactly once.
func (t *Tracker) Run(ctx context.Context) {
	st := t.init
	defer func() {
		t.final = t.snapshotOf(&st)
		close(t.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-t.ops:
			op(&st)
		}
	}
}

// Done is closed once Run has returned.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

func (t *Tracker) snapshotOf(st *state) Snapshot {
	s := st.snap
	s.Fields = st.snap.Fields.Clone()
	if st.snap.Network != nil {
		n := *st.snap.Network
		s.Network = &n
	}
	s.Now = t.now()
	return s
}

// send queues op for the tracker goroutine. After Run has returned, ops are dropped.
func (t *Tracker) send(op func(*state)) {
	select {
	case t.ops <- op:
	case <-t.done:
	}
}

// Update merges fields into the record on behalf of source and notifies sinks.
// NaN readings are stored as-is.
func (t *Tracker) Update(source string, fields ...Field) {
	if len(fields) == 0 {
		return
	}
	fs := append([]Field(nil), fields...)
	t.send(func(st *state) {
		now := t.now()
		st.snap.Fields.Merge(fs)
		st.snap.LastUpdate = now
		if len(st.sinks) == 0 {
			return
		}
		u := Update{Source: source, Time: now, Fields: fs}
		snap := t.snapshotOf(st)
		for _, s := range st.sinks {
			s.StatusUpdated(u, snap)
		}
	})
}

// AddSink registers a sink for subsequent updates.
func (t *Tracker) AddSink(s Sink) {
	t.send(func(st *state) {
		st.sinks = append(st.sinks, s)
	})
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.send(func(st *state) {
		st.snap.MQTTConnected = connected
	})
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.send(func(st *state) {
		st.snap.Network = info
	})
}

// Snapshot returns a point-in-time copy of the daemon state.
// After Run has returned it returns the final state.
func (t *Tracker) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case t.ops <- func(st *state) { reply <- t.snapshotOf(st) }:
	case <-t.done:
		return t.final
	}
	select {
	case s := <-reply:
		return s
	case <-t.done:
		return t.final
	}
}
