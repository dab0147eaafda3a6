// Package dashboard is the terminal UI for a running session.
package dashboard

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/vitruvian-monitor/internal/autostop"
	"github.com/lowaak/vitruvian-monitor/internal/calibration"
	"github.com/lowaak/vitruvian-monitor/internal/go_func_utils"
	"github.com/lowaak/vitruvian-monitor/internal/handles"
	"github.com/lowaak/vitruvian-monitor/internal/logging"
	"github.com/lowaak/vitruvian-monitor/internal/repcounter"
	"github.com/lowaak/vitruvian-monitor/internal/session"
)

const (
	renderInterval = 100 * time.Millisecond
	commandTimeout = 3 * time.Second
)

// Args holds the arguments for creating a Dashboard
type Args struct {
	Logger  *log.Logger
	App     *tview.Application
	Session *session.Session
	Tail    *logging.Tail // may be nil
	Workout session.Params
}

// model is the latest value of every stream. Guarded by Dashboard.mu.
type model struct {
	metric    session.Metric
	hasMetric bool
	repCount  repcounter.RepCount
	ranges    calibration.RepRanges
	autoStop  autostop.State
	handles   handles.HandleState
	status    session.Status
	stats     session.Stats
	dirty     bool
}

type Dashboard struct {
	logger  *log.Logger
	app     *tview.Application
	session *session.Session
	tail    *logging.Tail
	workout session.Params

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	model model

	root         *tview.Flex
	metricsPanel *tview.TextView
	repsPanel    *tview.TextView
	rangesPanel  *tview.TextView
	workoutPanel *tview.TextView
	statsPanel   *tview.TextView
	logView      *tview.TextView
}

func NewDashboard(args Args) *Dashboard {
	if args.Logger == nil {
		panic("Dashboard: logger cannot be nil")
	}
	if args.App == nil {
		panic("Dashboard: app cannot be nil")
	}
	if args.Session == nil {
		panic("Dashboard: session cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		logger:  args.Logger,
		app:     args.App,
		session: args.Session,
		tail:    args.Tail,
		workout: args.Workout,
		ctx:     ctx,
		cancel:  cancel,
	}
	d.model.status = args.Session.Status()
	d.model.dirty = true

	d.initWidgets()
	d.setupKeyboardHandlers()
	d.setupListeners()

	go_func_utils.SafeGoWait(d.logger, &d.wg, "Dashboard render", d.renderLoop)
	return d
}

func newPanel(title string) *tview.TextView {
	panel := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	panel.SetBorder(true).SetTitle(" " + title + " ")
	return panel
}

func (d *Dashboard) initWidgets() {
	d.metricsPanel = newPanel("Live")
	d.repsPanel = newPanel("Reps")
	d.rangesPanel = newPanel("Range")
	d.workoutPanel = newPanel("Workout")
	d.statsPanel = newPanel("Link")
	d.logView = tview.NewTextView().
		SetDynamicColors(false).
		SetScrollable(false)
	d.logView.SetBorder(true).SetTitle(" Logs ")

	header := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	header.SetText("[yellow]" + d.session.Link().Name() + "[white]  |  " + describeWorkout(d.workout))

	leftColumn := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(d.metricsPanel, 0, 2, false).
		AddItem(d.repsPanel, 0, 2, false).
		AddItem(d.rangesPanel, 5, 0, false)

	rightColumn := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(d.workoutPanel, 0, 3, false).
		AddItem(d.statsPanel, 0, 2, false)

	body := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(leftColumn, 0, 1, false).
		AddItem(rightColumn, 0, 1, false).
		AddItem(d.logView, 0, 1, false)

	d.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 1, 0, false).
		AddItem(body, 0, 1, true)
}

func describeWorkout(p session.Params) string {
	if p.Command == nil {
		return "no workout"
	}
	desc := p.Command.Describe()
	if p.Rep.JustLift {
		desc += ", Just Lift"
	}
	return desc
}

func (d *Dashboard) setupKeyboardHandlers() {
	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			d.app.Stop()
			return nil
		}
		if event.Key() != tcell.KeyRune {
			return event
		}
		switch event.Rune() {
		case ' ':
			d.command("start", func(ctx context.Context) error {
				return d.session.StartWorkout(ctx, d.workout)
			})
			return nil
		case 'x', 'X':
			d.command("stop", d.session.StopWorkout)
			return nil
		case 'n', 'N':
			d.command("next set", d.session.ResetForNextSet)
			return nil
		case 'q', 'Q':
			d.app.Stop()
			return nil
		}
		return event
	})
}

// command runs fn off the UI goroutine, since the session may be busy
func (d *Dashboard) command(name string, fn func(ctx context.Context) error) {
	go_func_utils.SafeGoWait(d.logger, &d.wg, "Dashboard "+name, func() {
		ctx, cancel := context.WithTimeout(d.ctx, commandTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			d.logger.Printf("Dashboard: %s failed: %v", name, err)
		}
	})
}

// listen copies every value from one event stream into the model
func listen[T any](d *Dashboard, name string, register func(chan<- T) func(), apply func(*model, T)) {
	ch := make(chan T, 1)
	unregister := register(ch)
	go_func_utils.SafeGoWait(d.logger, &d.wg, "Dashboard "+name, func() {
		defer unregister()
		for {
			select {
			case <-d.ctx.Done():
				return
			case v := <-ch:
				d.mu.Lock()
				apply(&d.model, v)
				d.model.dirty = true
				d.mu.Unlock()
			}
		}
	})
}

func (d *Dashboard) setupListeners() {
	s := d.session
	listen(d, "metrics", s.ListenToMetrics, func(m *model, v session.Metric) {
		m.metric, m.hasMetric = v, true
	})
	listen(d, "rep count", s.ListenToRepCount, func(m *model, v repcounter.RepCount) { m.repCount = v })
	listen(d, "ranges", s.ListenToRanges, func(m *model, v calibration.RepRanges) { m.ranges = v })
	listen(d, "auto-stop", s.ListenToAutoStop, func(m *model, v autostop.State) { m.autoStop = v })
	listen(d, "handles", s.ListenToHandles, func(m *model, v handles.HandleState) { m.handles = v })
	listen(d, "status", s.ListenToStatus, func(m *model, v session.Status) { m.status = v })
	listen(d, "stats", s.ListenToStats, func(m *model, v session.Stats) { m.stats = v })
	listen(d, "rep events", s.ListenToRepEvents, func(_ *model, v repcounter.RepEvent) {
		d.logger.Printf("Dashboard: %s (warmup %d, working %d)", v.Type, v.WarmupCount, v.WorkingCount)
	})
	if d.tail != nil {
		listen(d, "logs", d.tail.Listen, func(*model, string) {})
	}
}

// renderLoop redraws at most every renderInterval, and only when something changed
func (d *Dashboard) renderLoop() {
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()
	var lastLogHeight int

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			snapshot := d.model
			d.model.dirty = false
			d.mu.Unlock()

			logHeight := d.logHeight()
			if !snapshot.dirty && logHeight == lastLogHeight {
				continue
			}
			lastLogHeight = logHeight
			d.app.QueueUpdateDraw(func() { d.render(snapshot) })
		}
	}
}

func (d *Dashboard) logHeight() int {
	_, _, _, height := d.logView.GetInnerRect()
	return height
}

// render runs on the UI goroutine
func (d *Dashboard) render(m model) {
	d.metricsPanel.SetText(formatMetric(m.metric, m.hasMetric))
	d.repsPanel.SetText(formatRepCount(m.repCount, d.workout.Rep))
	d.rangesPanel.SetText(formatRanges(m.ranges))
	d.workoutPanel.SetText(formatStatus(m.status, m.handles, m.autoStop))
	d.statsPanel.SetText(m.stats.String())

	if d.tail != nil {
		lines := d.tail.Lines()
		if height := d.logHeight(); height > 0 && len(lines) > height {
			lines = lines[len(lines)-height:]
		}
		d.logView.SetText(strings.Join(lines, "\n"))
	}
}

// Run blocks until the user quits
func (d *Dashboard) Run() error {
	return d.app.SetRoot(d.root, true).Run()
}

// Shutdown stops the listeners and waits for them
func (d *Dashboard) Shutdown() {
	d.logger.Println("Dashboard: Shutting down")
	d.cancel()
	d.wg.Wait()
	d.logger.Println("Dashboard: Shutdown complete")
}
