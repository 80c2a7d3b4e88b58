// Package ui puts run controls in the system tray while the clipper serves
// its local API.
package ui

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/rainyday01/video-cutter/internal/supervisor"
)

//go:embed icon.png
var iconBytes []byte

// Controller is the part of the clip service the tray drives.
type Controller interface {
	Pause() error
	Resume() error
	Stop() error
	Status() supervisor.Status
}

type Tray struct {
	ctrl   Controller
	events *supervisor.Broadcaster
	logger *slog.Logger

	statusItem *systray.MenuItem
	pauseItem  *systray.MenuItem
	stopItem   *systray.MenuItem

	mu sync.Mutex

	onQuit func()
	done   chan struct{}
}

type TrayConfig struct {
	Controller Controller
	Events     *supervisor.Broadcaster // optional; status is also polled
	Logger     *slog.Logger
	OnQuit     func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		ctrl:   cfg.Controller,
		events: cfg.Events,
		logger: cfg.Logger,
		onQuit: cfg.OnQuit,
		done:   make(chan struct{}),
	}
}

// Run blocks on the tray's event loop; it must be called from the main
// goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Clipper")
	systray.SetTooltip("Video Clipper")

	t.statusItem = systray.AddMenuItem("Idle", "Current run")
	t.statusItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause", "Pause the current run")
	t.stopItem = systray.AddMenuItem("Stop", "Stop the current run")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Video Clipper")

	t.refresh()

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-t.stopItem.ClickedCh:
				t.stop()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()
	go t.watch()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	close(t.done)
	t.logger.Info("system tray exiting")
}

// watch refreshes the menu on every run event and once a second.
func (t *Tray) watch() {
	var events <-chan supervisor.Event
	if t.events != nil {
		ch, cancel := t.events.Subscribe()
		defer cancel()
		events = ch
	}
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			t.refresh()
		case <-tick.C:
			t.refresh()
		case <-t.done:
			return
		}
	}
}

func (t *Tray) refresh() {
	st := t.ctrl.Status()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.statusItem.SetTitle(StatusLine(st))
	t.pauseItem.SetTitle(pauseTitle(st.State))
	if st.State.Active() {
		t.pauseItem.Enable()
		t.stopItem.Enable()
	} else {
		t.pauseItem.Disable()
		t.stopItem.Disable()
	}
}

func (t *Tray) togglePause() {
	var err error
	if t.ctrl.Status().State == supervisor.StatePaused {
		err = t.ctrl.Resume()
	} else {
		err = t.ctrl.Pause()
	}
	if err != nil && !errors.Is(err, supervisor.ErrNoActiveRun) {
		t.logger.Error("failed to toggle pause", "error", err)
	}
	t.refresh()
}

func (t *Tray) stop() {
	if err := t.ctrl.Stop(); err != nil && !errors.Is(err, supervisor.ErrNoActiveRun) {
		t.logger.Error("failed to stop run", "error", err)
	}
	t.refresh()
}

func (t *Tray) Quit() {
	systray.Quit()
}

func pauseTitle(state supervisor.State) string {
	if state == supervisor.StatePaused {
		return "Resume"
	}
	return "Pause"
}

// StatusLine renders a one-line summary such as "Task 2/5 40% ETA 00:03:10".
func StatusLine(st supervisor.Status) string {
	switch st.State {
	case supervisor.StateRunning, supervisor.StatePaused:
		line := fmt.Sprintf("Task %d/%d %d%% ETA %s", st.Current+1, st.Total, int(st.Fraction*100), FormatETA(st.ETA))
		if st.Current < 0 {
			line = fmt.Sprintf("Task -/%d ETA %s", st.Total, FormatETA(st.ETA))
		}
		if st.State == supervisor.StatePaused {
			return "Paused: " + line
		}
		return line
	case supervisor.StateCompleted, supervisor.StateStopped:
		line := fmt.Sprintf("%s: %d/%d done", titleCase(string(st.State)), st.Completed, st.Total)
		if st.Failed > 0 {
			line += fmt.Sprintf(", %d failed", st.Failed)
		}
		if st.Skipped > 0 {
			line += fmt.Sprintf(", %d skipped", st.Skipped)
		}
		return line
	default:
		return "Idle"
	}
}

// FormatETA renders d as hh:mm:ss, or --:--:-- when unknown.
func FormatETA(d time.Duration) string {
	if d < 0 {
		return "--:--:--"
	}
	s := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
