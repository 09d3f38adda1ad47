// Package monitor is the terminal view of a running node: session state,
// the latest module exchanges and statistics over recent sensor values.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gammazero/deque"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"lautenbacher.net/wifinode/at"
	"lautenbacher.net/wifinode/node"
	"lautenbacher.net/wifinode/session"
	"lautenbacher.net/wifinode/util"
)

const (
	maxSensorHistory   = 500
	maxExchangeHistory = 12
	viewerTitle        = " WIFINODE Link Monitor "
)

// ErrClosed is returned by Run when the TUI stopped without a quit key
// and without its context ending, for example on Ctrl-C.
var ErrClosed = errors.New("link monitor closed")

var sensorKinds = []node.Kind{
	node.Accelerometer, node.Gyroscope, node.Magnetometer,
	node.Temperature, node.Humidity, node.Pressure,
}

// LinkViewer is a TUI showing what the node and its module are doing.
type LinkViewer struct {
	tuiApp    *tview.Application
	status    *tview.TextView
	sensors   *tview.TextView
	exchanges *tview.TextView
	ossignal  chan<- os.Signal
	backend   string
	running   atomic.Bool
	keyed     atomic.Bool

	mu           sync.Mutex
	state        session.State
	activity     string
	sensorValues map[node.Kind]*deque.Deque[float64]
	history      *deque.Deque[string]
}

type sensorStats struct {
	min    float64
	max    float64
	mean   float64
	median float64
	stdDev float64
}

// NewLinkViewer creates the viewer. q and r are forwarded to ossignal as
// interrupt and hangup.
func NewLinkViewer(ossignal chan<- os.Signal, backend string) *LinkViewer {
	lv := &LinkViewer{
		tuiApp:       tview.NewApplication(),
		ossignal:     ossignal,
		backend:      backend,
		state:        session.Uninitialized,
		sensorValues: make(map[node.Kind]*deque.Deque[float64]),
		history:      new(deque.Deque[string]),
	}
	for _, k := range sensorKinds {
		lv.sensorValues[k] = new(deque.Deque[float64])
		lv.sensorValues[k].Grow(maxSensorHistory)
	}
	lv.history.Grow(maxExchangeHistory)
	return lv
}

// Run shows the TUI until ctx ends or the user quits. If the TUI goes away
// on its own, Run returns ErrClosed.
func (lv *LinkViewer) Run(ctx context.Context) error {
	lv.setupUI()

	go func() {
		<-ctx.Done()
		slog.Info("Stopping LinkViewer TUI...")
		lv.tuiApp.Stop()
	}()

	lv.running.Store(true)
	defer lv.running.Store(false)
	lv.redraw()
	if err := lv.tuiApp.Run(); err != nil {
		return fmt.Errorf("running LinkViewer TUI: %w", err)
	}
	slog.Info("LinkViewer TUI has stopped.")
	if ctx.Err() == nil && !lv.keyed.Load() {
		return ErrClosed
	}
	return nil
}

// Follow feeds readings and activity changes into the view until ctx ends.
func (lv *LinkViewer) Follow(ctx context.Context, readings *util.Mailbox[node.Kind, node.Sample], activity *util.Latest[string]) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-readings.Changed():
			lv.UpdateReadings(readings.Drain())
		case <-activity.Changed():
			lv.mu.Lock()
			lv.activity = activity.Get()
			lv.mu.Unlock()
			lv.redraw()
		}
	}
}

// OnState records a session transition. It matches session.StateObserver.
func (lv *LinkViewer) OnState(_, to session.State) {
	lv.mu.Lock()
	lv.state = to
	lv.mu.Unlock()
	lv.redraw()
}

// OnExchange records a module exchange. It matches at.Observer.
func (lv *LinkViewer) OnExchange(x at.Exchange) {
	lv.mu.Lock()
	if lv.history.Len() == maxExchangeHistory {
		lv.history.PopFront()
	}
	lv.history.PushBack(formatExchange(x))
	lv.mu.Unlock()
	lv.redraw()
}

// UpdateReadings appends the latest samples. Vector sensors are tracked
// by their magnitude. Safe for concurrent use.
func (lv *LinkViewer) UpdateReadings(latest map[node.Kind]node.Sample) {
	lv.mu.Lock()
	for kind, s := range latest {
		q, ok := lv.sensorValues[kind]
		if !ok {
			continue
		}
		if q.Len() == maxSensorHistory {
			q.PopFront()
		}
		q.PushBack(scalar(s))
	}
	lv.mu.Unlock()
	lv.redraw()
}

func scalar(s node.Sample) float64 {
	if !s.Kind.Vector() {
		return float64(s.Value)
	}
	x, y, z := float64(s.X), float64(s.Y), float64(s.Z)
	return math.Sqrt(x*x + y*y + z*z)
}

func (lv *LinkViewer) redraw() {
	if !lv.running.Load() {
		return
	}
	lv.mu.Lock()
	status, sensors, exchanges := lv.prepareDisplayStrings()
	lv.mu.Unlock()

	lv.tuiApp.QueueUpdateDraw(func() {
		lv.status.SetText(status)
		lv.sensors.SetText(sensors)
		lv.exchanges.SetText(exchanges)
	})
}

func (lv *LinkViewer) setupUI() {
	var introText strings.Builder
	if lv.backend == "sim" {
		introText.WriteString("[#ff0000]Caution:[-] Talking to the simulated module.\n")
	} else {
		introText.WriteString("Talking to the module via " + lv.backend + ".\n")
	}
	introText.WriteString("Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload config file and restart")

	intro := tview.NewTextView()
	intro.SetBorder(true).SetTitle(viewerTitle).SetTitleColor(tcell.ColorLightBlue)
	intro.SetText(introText.String())
	intro.SetTextAlign(tview.AlignCenter)
	intro.SetDynamicColors(true)
	intro.SetBackgroundColor(tcell.ColorDarkSlateGray)

	lv.status = lv.panel(" Session ")
	lv.sensors = lv.panel(" Sensors [min|mean|max] ")
	lv.exchanges = lv.panel(" Exchanges ")

	layout := tview.NewFlex().SetDirection(tview.FlexRow)
	layout.AddItem(intro, 4, 1, false)
	layout.AddItem(lv.status, 3, 1, false)
	layout.AddItem(lv.sensors, len(sensorKinds)+2, 1, false)
	layout.AddItem(lv.exchanges, 0, 1, true)

	lv.tuiApp.SetRoot(layout, true).SetFocus(lv.exchanges)
	lv.tuiApp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q', 'Q':
			lv.keyed.Store(true)
			lv.tuiApp.Stop()
			lv.ossignal <- os.Interrupt
		case 'r', 'R':
			lv.keyed.Store(true)
			lv.tuiApp.Stop()
			lv.ossignal <- syscall.SIGHUP
		}
		return event
	})
}

func (lv *LinkViewer) panel(title string) *tview.TextView {
	v := tview.NewTextView()
	v.SetDynamicColors(true)
	v.SetTextAlign(tview.AlignLeft)
	v.SetBackgroundColor(tcell.ColorDarkSlateGray)
	v.SetBorder(true).SetTitle(title).SetTitleColor(tcell.ColorLightBlue)
	return v
}

// prepareDisplayStrings renders the three panels. Call with mu held.
func (lv *LinkViewer) prepareDisplayStrings() (string, string, string) {
	activity := lv.activity
	if activity == "" {
		activity = "-"
	}
	status := fmt.Sprintf(" [yellow]state:[white] %-14s [yellow]activity:[white] %s", lv.state, activity)

	var sensors strings.Builder
	for _, k := range sensorKinds {
		q := lv.sensorValues[k]
		data := make([]float64, q.Len())
		for i := range q.Len() {
			data[i] = q.At(i)
		}
		st := calculateStats(data)
		fmt.Fprintf(&sensors, " [blue]%-14s[-] [%9.2f|%9.2f|%9.2f]  sd %8.2f\n", k, st.min, st.mean, st.max, st.stdDev)
	}

	var exchanges strings.Builder
	for i := range lv.history.Len() {
		exchanges.WriteString(lv.history.At(i))
		exchanges.WriteByte('\n')
	}
	return status, strings.TrimRight(sensors.String(), "\n"), exchanges.String()
}

func formatExchange(x at.Exchange) string {
	resp := strconv.Quote(x.Response)
	if x.Err != nil {
		resp = "[red]" + tview.Escape(x.Err.Error()) + "[-]"
	} else if at.IsError(x.Response) {
		resp = "[red]" + tview.Escape(resp) + "[-]"
	} else {
		resp = tview.Escape(resp)
	}
	return fmt.Sprintf(" %6s %-24s %s %s", tview.Escape("["+string(x.Kind)+"]"), tview.Escape(strconv.Quote(string(x.Request))), x.Elapsed.Round(10*time.Microsecond), resp)
}

func calculateStats(data []float64) sensorStats {
	if len(data) == 0 {
		return sensorStats{}
	}

	var sum float64
	lo, hi := data[0], data[0]
	for _, v := range data {
		lo = min(lo, v)
		hi = max(hi, v)
		sum += v
	}
	mean := sum / float64(len(data))

	sorted := slices.Clone(data)
	slices.Sort(sorted)
	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2.0
	} else {
		median = sorted[mid]
	}

	var sumOfSquares float64
	for _, v := range data {
		sumOfSquares += (v - mean) * (v - mean)
	}
	stdDev := math.Sqrt(sumOfSquares / float64(len(data)))

	return sensorStats{
		min:    lo,
		max:    hi,
		mean:   mean,
		median: median,
		stdDev: stdDev,
	}
}
