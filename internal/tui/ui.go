// Package tui is a terminal front-end for one engine session: the
// conversation on the left, the current plan on the right.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"macro-meal-engine/internal/chat"
	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/session"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Engine is the session the UI drives. *app.Engine implements it.
type Engine interface {
	Snapshot() session.State
	Subscribe(fn session.Subscriber) func()
	SetCalories(calories int) session.State
	SetExclusions(exclusions string) session.State
	Submit(ctx context.Context, message string) (chat.Result, error)
	Retry()
}

// UI is the terminal front-end. Build it with New and start it with Run.
type UI struct {
	app    *tview.Application
	engine Engine
	logger *slog.Logger

	chatView  *tview.TextView
	planView  *tview.TextView
	status    *tview.TextView
	debug     *tview.TextView
	input     *tview.TextArea
	notice    string
	debugShow bool
}

func New() *UI {
	u := &UI{
		app:    tview.NewApplication(),
		logger: slog.Default(),
	}
	u.app.EnablePaste(true)
	u.app.EnableMouse(true)

	u.chatView = u.newTextView("Conversation")
	u.planView = u.newTextView("Meal Plan")
	u.debug = u.newTextView("Debugger")
	u.status = tview.NewTextView().SetDynamicColors(true)

	u.input = tview.NewTextArea()
	u.input.SetTitle("Message (Enter to send, /help)").SetBorder(true)
	return u
}

func (u *UI) newTextView(title string) *tview.TextView {
	v := tview.NewTextView().
		SetChangedFunc(func() {
			u.app.Draw()
		}).
		SetDynamicColors(true).
		SetWordWrap(true)
	v.SetTitle(title).SetBorder(true)
	v.SetScrollable(true)
	return v
}

// LogWriter returns a writer that appends to the debug pane. Route the
// engine's logger here so log lines do not corrupt the screen.
func (u *UI) LogWriter() io.Writer {
	return tview.ANSIWriter(u.debug)
}

// SetLogger sets the logger used for UI events.
func (u *UI) SetLogger(l *slog.Logger) {
	u.logger = l
}

// Run drives engine until the user quits or ctx is cancelled.
func (u *UI) Run(ctx context.Context, engine Engine) error {
	u.engine = engine
	unsubscribe := u.engine.Subscribe(func(_, _ session.State, _ session.Action) {
		// Subscribers run on the dispatching goroutine, which may be the UI's.
		go u.app.QueueUpdateDraw(u.render)
	})
	defer unsubscribe()

	left := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(u.chatView, 0, 1, false).
		AddItem(u.input, 6, 0, true)
	main := tview.NewFlex().
		AddItem(left, 0, 1, true).
		AddItem(u.planView, 0, 1, false)
	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(main, 0, 1, true).
		AddItem(u.status, 1, 0, false)

	u.input.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEnter:
			text := u.input.GetText()
			u.input.SetText("", true)
			u.handleLine(ctx, text, main)
			return nil
		case tcell.KeyCtrlD:
			u.toggleDebug(main)
			return nil
		}
		return event
	})

	go func() {
		<-ctx.Done()
		u.app.Stop()
	}()

	u.render()
	return u.app.SetRoot(root, true).SetFocus(u.input).Run()
}

// handleLine runs on the UI goroutine.
func (u *UI) handleLine(ctx context.Context, line string, main *tview.Flex) {
	cmd, err := parseCommand(line)
	if err != nil {
		u.notice = err.Error()
		u.render()
		return
	}
	u.notice = ""

	switch cmd.kind {
	case cmdChat:
		if cmd.text == "" {
			return
		}
		go func() {
			if _, err := u.engine.Submit(ctx, cmd.text); err != nil && !errors.Is(err, chat.ErrBusy) {
				u.logger.Warn("Chat turn failed", "error", err)
			}
		}()
	case cmdCalories:
		u.engine.SetCalories(cmd.calories)
	case cmdExclude:
		u.engine.SetExclusions(cmd.text)
	case cmdRetry:
		u.engine.Retry()
	case cmdHelp:
		u.notice = "see the debug pane (Ctrl-D)"
		fmt.Fprintf(u.debug, helpText+"\n", planner.MinCalories, planner.MaxCalories)
		if !u.debugShow {
			u.toggleDebug(main)
		}
	case cmdQuit:
		u.app.Stop()
		return
	}
	u.render()
}

func (u *UI) toggleDebug(main *tview.Flex) {
	if u.debugShow {
		main.RemoveItem(u.debug)
	} else {
		main.AddItem(u.debug, 0, 1, false)
	}
	u.debugShow = !u.debugShow
}

// render redraws every pane from a fresh snapshot. It runs on the UI
// goroutine.
func (u *UI) render() {
	s := u.engine.Snapshot()
	u.chatView.SetText(renderChat(s))
	u.chatView.ScrollToEnd()
	u.planView.SetText(renderPlan(s))

	status := renderStatus(s)
	if u.notice != "" {
		status += " | [yellow]" + tview.Escape(u.notice) + "[-]"
	}
	u.status.SetText(status)
	u.input.SetDisabled(s.ChatProcessing)
}
