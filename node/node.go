// Package node is the sensing application: it samples the on-board
// sensors, classifies motion and streams readings through the session.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gammazero/deque"
	"lautenbacher.net/wifinode/schedule"
	"lautenbacher.net/wifinode/util"
)

// Task names, in the order they run within a minor cycle.
const (
	TaskAccelerometer = "Accelerometer"
	TaskEnvironment   = "Environment"
	TaskMotion        = "Motion"
	TaskSend          = "Send"
	TaskClock         = "Clock"
)

// Sender streams strings to the connected server.
type Sender interface {
	SendString(ctx context.Context, s string) error
}

// Identity is announced once after connecting.
type Identity struct {
	Name     string
	Type     string
	Position string
}

// Settings for the activity classification.
type Settings struct {
	Scale  float32
	Labels []string
}

// Node owns the sensor window and the latest readings. Its tasks are meant
// to run on a single schedule.Executive and are not safe for concurrent
// use; the published Activity and Readings are.
type Node struct {
	sensors  SensorReader
	model    Classifier
	sender   Sender
	settings Settings
	started  time.Time

	window      *deque.Deque[float32]
	temperature float32
	humidity    float32

	Activity *util.Latest[string]
	Readings *util.Mailbox[Kind, Sample]
}

// New wires the node to its collaborators. The model must produce one
// score per label.
func New(sensors SensorReader, model Classifier, sender Sender, settings Settings) (*Node, error) {
	if model.OutputSize() != len(settings.Labels) {
		return nil, fmt.Errorf("classifier has %d outputs but %d labels are configured", model.OutputSize(), len(settings.Labels))
	}
	if settings.Scale <= 0 {
		return nil, fmt.Errorf("scale must be positive, got %v", settings.Scale)
	}
	w := new(deque.Deque[float32])
	w.Grow(model.InputSize())
	return &Node{
		sensors:  sensors,
		model:    model,
		sender:   sender,
		settings: settings,
		started:  time.Now(),
		window:   w,
		Activity: util.NewLatest(""),
		Readings: util.NewMailbox[Kind, Sample](),
	}, nil
}

// Announce sends name, type and position, one string each.
func (n *Node) Announce(ctx context.Context, id Identity) error {
	for _, s := range []string{id.Name, id.Type, id.Position} {
		if err := n.sender.SendString(ctx, s); err != nil {
			return fmt.Errorf("announce: %w", err)
		}
	}
	slog.Info("Announced node", "name", id.Name, "type", id.Type, "position", id.Position)
	return nil
}

// Schedule registers all tasks with their periods, keyed by task name.
func (n *Node) Schedule(e *schedule.Executive, periods map[string]time.Duration) error {
	tasks := []struct {
		name string
		run  schedule.Task
	}{
		{TaskAccelerometer, n.SampleAccelerometer},
		{TaskEnvironment, n.SampleEnvironment},
		{TaskMotion, n.SampleMotion},
		{TaskSend, n.Send},
		{TaskClock, n.Clock},
	}
	var errs []error
	for _, t := range tasks {
		errs = append(errs, e.Add(t.name, periods[t.name], t.run))
	}
	return errors.Join(errs...)
}

// SampleAccelerometer appends one scaled x, y, z reading to the window and
// classifies it once the window is full.
func (n *Node) SampleAccelerometer(context.Context) error {
	s, err := n.read(Accelerometer)
	if err != nil {
		return err
	}
	for _, v := range []float32{s.X, s.Y, s.Z} {
		n.window.PushBack(v / n.settings.Scale)
	}
	if n.window.Len() < n.model.InputSize() {
		return nil
	}
	return n.classify()
}

func (n *Node) classify() error {
	in := make([]float32, n.model.InputSize())
	for i := range in {
		in[i] = n.window.PopFront()
	}
	scores, err := n.model.Run(in)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	label := n.settings.Labels[Argmax(scores)]
	if label != n.Activity.Get() {
		slog.Info("Activity changed", "activity", label)
	}
	n.Activity.Set(label)
	return nil
}

// SampleEnvironment reads temperature and humidity.
func (n *Node) SampleEnvironment(context.Context) error {
	t, err := n.read(Temperature)
	if err != nil {
		return err
	}
	h, err := n.read(Humidity)
	if err != nil {
		return err
	}
	n.temperature, n.humidity = t.Value, h.Value
	return nil
}

// SampleMotion logs gyroscope, magnetometer and pressure.
func (n *Node) SampleMotion(context.Context) error {
	for _, k := range []Kind{Gyroscope, Magnetometer, Pressure} {
		s, err := n.read(k)
		if err != nil {
			return err
		}
		if k.Vector() {
			slog.Debug("Sample", "sensor", k, "x", s.X, "y", s.Y, "z", s.Z)
		} else {
			slog.Debug("Sample", "sensor", k, "value", s.Value)
		}
	}
	return nil
}

// Send streams the activity label, temperature and humidity. Any failure
// ends the run: a string cut short leaves the server's framing out of step.
func (n *Node) Send(ctx context.Context) error {
	activity := n.Activity.Get()
	if activity == "" {
		activity = "unknown"
	}
	for _, s := range []string{activity, Format(n.temperature), Format(n.humidity)} {
		if err := n.sender.SendString(ctx, s); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	return nil
}

// Clock logs the uptime.
func (n *Node) Clock(context.Context) error {
	slog.Info("Tick", "uptime", time.Since(n.started).Round(time.Second), "activity", n.Activity.Get())
	return nil
}

func (n *Node) read(k Kind) (Sample, error) {
	s, err := n.sensors.Read(k)
	if err != nil {
		return Sample{}, fmt.Errorf("read %s: %w", k, err)
	}
	n.Readings.Put(k, s)
	return s, nil
}

// Format renders a reading the way the server expects it.
func Format(v float32) string {
	return fmt.Sprintf("%010.4f", v)
}
