package tui

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/devfleet/devfleet/internal/engine"
)

const (
	tableTitle          = "Processes"
	logsTitle           = "Logs"
	defaultLogRetention = 500
)

// Option configures UI behaviour.
type Option func(*UI)

// WithMaxLogs sets the maximum number of log entries retained per child.
func WithMaxLogs(n int) Option {
	return func(u *UI) {
		if n > 0 {
			u.maxLogs = n
		}
	}
}

// WithFleetName sets the fleet name shown in the table title.
func WithFleetName(name string) Option {
	return func(u *UI) {
		if name != "" {
			u.table.SetTitle(fmt.Sprintf("%s (%s)", tableTitle, name))
		}
	}
}

// UI coordinates the interactive status interface backed by tview.
type UI struct {
	app    *tview.Application
	table  *tview.Table
	logs   *tview.TextView
	events chan engine.Event

	children map[string]*childState

	visible     []string
	selected    string
	logsFocused bool
	maxLogs     int

	mu sync.RWMutex

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

type childState struct {
	label     string
	firstSeen time.Time
	lastEvent time.Time
	state     engine.EventType
	message   string

	logs []string
}

// New constructs a UI configured with the supplied options.
func New(opts ...Option) *UI {
	app := tview.NewApplication()
	table := tview.NewTable().SetFixed(1, 1).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	logs := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	logs.SetBorder(true).SetTitle(logsTitle)
	logs.SetChangedFunc(func() {
		app.Draw()
	})

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 3, true).
		AddItem(logs, 0, 2, false)

	ui := &UI{
		app:      app,
		table:    table,
		logs:     logs,
		events:   make(chan engine.Event, 256),
		children: make(map[string]*childState),
		maxLogs:  defaultLogRetention,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(ui)
	}

	table.SetSelectionChangedFunc(func(row, column int) {
		ui.mu.Lock()
		defer ui.mu.Unlock()
		ui.syncSelection(row)
		ui.renderLogsLocked()
	})

	app.SetRoot(flex, true)
	app.SetInputCapture(ui.handleKey)

	ui.mu.Lock()
	ui.refreshTableLocked()
	ui.mu.Unlock()

	return ui
}

// EventSink exposes the channel where supervisor events should be delivered.
func (u *UI) EventSink() chan<- engine.Event {
	return u.events
}

// CloseEvents releases the event channel, allowing internal goroutines to
// exit cleanly.
func (u *UI) CloseEvents() {
	u.closeOnce.Do(func() {
		close(u.events)
	})
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run starts the tview application and processes incoming events until Stop
// is invoked or the provided context is cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	u.cancelMu.Lock()
	u.cancel = cancel
	u.cancelMu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.consumeEvents(ctx)
	}()

	go func() {
		<-ctx.Done()
		u.Stop()
	}()

	err := u.app.Run()

	u.cancelMu.Lock()
	cancel = u.cancel
	u.cancel = nil
	u.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	u.wg.Wait()
	u.Stop()

	return err
}

// Stop terminates the application loop and releases resources.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.cancelMu.Lock()
		cancel := u.cancel
		u.cancel = nil
		u.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) consumeEvents(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	draining := false
	ctxDone := ctx.Done()

	for {
		var tick <-chan time.Time
		if !draining {
			tick = ticker.C
		}

		select {
		case <-ctxDone:
			if !draining {
				draining = true
				ticker.Stop()
			}
			ctxDone = nil
		case evt, ok := <-u.events:
			if !ok {
				return
			}
			if draining {
				continue
			}
			u.applyEvent(evt)
		case <-tick:
			u.refreshAge()
		}
	}
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEnter:
		u.toggleFocus()
		return nil
	case tcell.KeyUp, tcell.KeyDown:
		return event
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			go u.Stop()
			return nil
		}
	}
	return event
}

func (u *UI) toggleFocus() {
	if u.logsFocused {
		u.app.SetFocus(u.table)
	} else {
		u.app.SetFocus(u.logs)
	}
	u.logsFocused = !u.logsFocused
}

func (u *UI) applyEvent(evt engine.Event) {
	u.mu.Lock()

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	state := u.children[evt.Label]
	if state == nil {
		state = &childState{label: evt.Label, firstSeen: evt.Timestamp}
		u.children[evt.Label] = state
	}
	if evt.Timestamp.After(state.lastEvent) {
		state.lastEvent = evt.Timestamp
	}

	if evt.Type == engine.EventTypeLog {
		line := fmt.Sprintf("%s [%s] %s", evt.Timestamp.Format("15:04:05"), evt.Level, evt.Message)
		state.logs = append(state.logs, line)
		if len(state.logs) > u.maxLogs {
			state.logs = state.logs[len(state.logs)-u.maxLogs:]
		}
	} else {
		state.state = evt.Type
		if evt.Err != nil {
			state.message = evt.Err.Error()
		} else if evt.Message != "" {
			state.message = evt.Message
		}
	}

	u.mu.Unlock()
	u.scheduleRedraw()
}

func (u *UI) refreshAge() {
	u.scheduleRedraw()
}

func (u *UI) scheduleRedraw() {
	select {
	case <-u.done:
		return
	default:
	}
	u.app.QueueUpdateDraw(func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.refreshTableLocked()
		u.renderLogsLocked()
	})
}

func (u *UI) refreshTableLocked() {
	u.table.Clear()

	headers := []string{"PROCESS", "STATE", "AGE", "MESSAGE"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false)
		u.table.SetCell(0, col, cell)
	}

	u.visible = u.visible[:0]
	for label := range u.children {
		u.visible = append(u.visible, label)
	}
	sort.Strings(u.visible)

	for i, label := range u.visible {
		state := u.children[label]
		age := "-"
		if !state.firstSeen.IsZero() {
			age = time.Since(state.firstSeen).Truncate(time.Second).String()
		}
		row := i + 1
		u.table.SetCell(row, 0, tview.NewTableCell(label))
		u.table.SetCell(row, 1, tview.NewTableCell(string(state.state)).SetTextColor(stateColor(state.state)))
		u.table.SetCell(row, 2, tview.NewTableCell(age))
		u.table.SetCell(row, 3, tview.NewTableCell(state.message))
	}

	if u.selected == "" && len(u.visible) > 0 {
		u.selected = u.visible[0]
	}
}

func (u *UI) syncSelection(row int) {
	idx := row - 1
	if idx < 0 || idx >= len(u.visible) {
		return
	}
	u.selected = u.visible[idx]
}

func (u *UI) renderLogsLocked() {
	u.logs.Clear()
	state := u.children[u.selected]
	if state == nil {
		return
	}
	for _, line := range state.logs {
		fmt.Fprintln(u.logs, tview.Escape(line))
	}
	u.logs.ScrollToEnd()
}

func stateColor(state engine.EventType) tcell.Color {
	switch state {
	case engine.EventTypeStarted:
		return tcell.ColorGreen
	case engine.EventTypeExited, engine.EventTypeStopped:
		return tcell.ColorGray
	case engine.EventTypeSpawnFailed, engine.EventTypeError:
		return tcell.ColorRed
	case engine.EventTypeStopping:
		return tcell.ColorOrange
	default:
		return tcell.ColorWhite
	}
}
