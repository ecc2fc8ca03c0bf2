package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/signal"
)

const sourceBuffer = 256

// SignalMessage is the wire format of a location callback on TopicSignals.
type SignalMessage struct {
	Type          string   `json:"type"`
	RegionID      string   `json:"region_id,omitempty"`
	State         string   `json:"state,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	Accuracy      float64  `json:"accuracy,omitempty"`
	Arrival       string   `json:"arrival,omitempty"`
	Departure     string   `json:"departure,omitempty"`
	Authorization string   `json:"authorization,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// CommandMessage is the wire format of a monitoring command on TopicCommands.
type CommandMessage struct {
	Command  string         `json:"command"`
	RegionID string         `json:"region_id,omitempty"`
	Region   *RegionMessage `json:"region,omitempty"`
}

// RegionMessage describes a region to monitor.
type RegionMessage struct {
	ID     string  `json:"id"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Radius float64 `json:"radius"`
}

// DecodeSignal parses a TopicSignals payload.
func DecodeSignal(payload []byte) (signal.Event, error) {
	var m SignalMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return signal.Event{}, fmt.Errorf("decode signal: %w", err)
	}

	ev := signal.Event{
		Kind:     signal.Kind(m.Type),
		RegionID: m.RegionID,
		Accuracy: m.Accuracy,
		Err:      m.Error,
	}
	if m.Lat != nil && m.Lon != nil {
		ev.Location = geofence.Coordinate{Lat: *m.Lat, Lon: *m.Lon}
	}

	switch ev.Kind {
	case signal.KindRegionEntered, signal.KindRegionExited:
		if m.RegionID == "" {
			return signal.Event{}, fmt.Errorf("decode signal: %s without region_id", m.Type)
		}
	case signal.KindRegionState:
		if m.RegionID == "" {
			return signal.Event{}, fmt.Errorf("decode signal: %s without region_id", m.Type)
		}
		ev.State = geofence.State(m.State)
		switch ev.State {
		case geofence.StateInside, geofence.StateOutside, geofence.StateUnknown:
		default:
			return signal.Event{}, fmt.Errorf("decode signal: invalid region state %q", m.State)
		}
	case signal.KindLocationUpdated:
		if m.Lat == nil || m.Lon == nil {
			return signal.Event{}, errors.New("decode signal: location_updated without lat/lon")
		}
		if !ev.Location.Valid() {
			return signal.Event{}, fmt.Errorf("decode signal: coordinate out of range (%f, %f)", *m.Lat, *m.Lon)
		}
	case signal.KindVisit:
		var err error
		if ev.Arrival, err = parseOptionalTime(m.Arrival); err != nil {
			return signal.Event{}, fmt.Errorf("decode signal: arrival: %w", err)
		}
		if ev.Departure, err = parseOptionalTime(m.Departure); err != nil {
			return signal.Event{}, fmt.Errorf("decode signal: departure: %w", err)
		}
	case signal.KindAuthorizationChanged:
		ev.Authorization = signal.Authorization(m.Authorization)
	case signal.KindMonitoringFailed, signal.KindError:
	default:
		return signal.Event{}, fmt.Errorf("decode signal: unknown type %q", m.Type)
	}
	return ev, nil
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// FormatCommand creates the JSON payload for a monitoring command. region is
// only used by CmdStartMonitoring; regionID by CmdStopMonitoring and
// CmdRequestState.
func FormatCommand(name string, regionID string, region *signal.Region) ([]byte, error) {
	m := CommandMessage{Command: name}
	switch name {
	case signal.CmdStartMonitoring:
		if region == nil {
			return nil, errors.New("start_monitoring requires a region")
		}
		m.Region = &RegionMessage{
			ID:     region.ID,
			Lat:    region.Center.Lat,
			Lon:    region.Center.Lon,
			Radius: region.Radius,
		}
	case signal.CmdStopMonitoring, signal.CmdRequestState:
		m.RegionID = regionID
	}
	return json.Marshal(m)
}

// Source is a signal.Source backed by an MQTT bridge: callbacks arrive on
// TopicSignals and commands are published to TopicCommands.
type Source struct {
	client paho.Client

	mu     sync.Mutex
	events chan signal.Event
	closed bool
}

// NewSource connects to the broker and subscribes to TopicSignals. The
// subscription is renewed on every reconnect.
func NewSource(opts Options) (*Source, error) {
	s := &Source{events: make(chan signal.Event, sourceBuffer)}
	opts.ClientID += "-signals"
	s.client = opts.client(s.onConnect, func(_ paho.Client, err error) {
		slog.Warn("mqtt: signal source connection lost", "error", err)
	})
	if err := connect(s.client); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) onConnect(c paho.Client) {
	token := c.Subscribe(TopicSignals, 1, s.handle)
	go func() {
		if token.Wait(); token.Error() != nil {
			slog.Error("mqtt: subscribe", "topic", TopicSignals, "error", token.Error())
		}
	}()
}

func (s *Source) handle(_ paho.Client, msg paho.Message) {
	ev, err := DecodeSignal(msg.Payload())
	if err != nil {
		slog.Warn("mqtt: dropping signal", "error", err)
		return
	}
	s.deliver(ev)
}

func (s *Source) deliver(ev signal.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		slog.Warn("mqtt: signal queue full, dropping", "kind", ev.Kind, "region_id", ev.RegionID)
	}
}

// Events implements signal.Source.
func (s *Source) Events() <-chan signal.Event {
	return s.events
}

func (s *Source) command(name, regionID string, region *signal.Region) error {
	payload, err := FormatCommand(name, regionID, region)
	if err != nil {
		return err
	}
	token := s.client.Publish(TopicCommands, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%s: publish timeout", name)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// StartMonitoring implements signal.Source.
func (s *Source) StartMonitoring(r signal.Region) error {
	return s.command(signal.CmdStartMonitoring, r.ID, &r)
}

// StopMonitoring implements signal.Source.
func (s *Source) StopMonitoring(regionID string) error {
	return s.command(signal.CmdStopMonitoring, regionID, nil)
}

// RequestState implements signal.Source.
func (s *Source) RequestState(regionID string) error {
	return s.command(signal.CmdRequestState, regionID, nil)
}

// StartContinuousUpdates implements signal.Source.
func (s *Source) StartContinuousUpdates() error {
	return s.command(signal.CmdStartContinuous, "", nil)
}

// StartSignificantChangeUpdates implements signal.Source.
func (s *Source) StartSignificantChangeUpdates() error {
	return s.command(signal.CmdStartSignificantChange, "", nil)
}

// StartVisitMonitoring implements signal.Source.
func (s *Source) StartVisitMonitoring() error {
	return s.command(signal.CmdStartVisitMonitoring, "", nil)
}

// StopAll implements signal.Source.
func (s *Source) StopAll() error {
	return s.command(signal.CmdStopAll, "", nil)
}

// Close unsubscribes, disconnects and closes the event channel.
func (s *Source) Close() error {
	s.client.Unsubscribe(TopicSignals).WaitTimeout(time.Second)
	s.client.Disconnect(1000)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}
