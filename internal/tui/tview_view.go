package tui

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// TviewView implements ViewImpl using tview (curses-based terminal UI)
type TviewView struct {
	app *tview.Application

	mu     sync.Mutex
	screen tcell.Screen // set once Run opens the terminal

	mainFlex   *tview.Flex // timer on the left, logs on the right
	timerPanel *tview.TextView
	logView    *tview.TextView
}

func NewTviewView(app *tview.Application) *TviewView {
	return &TviewView{app: app}
}

// Initialize sets up the tview widgets
func (ui *TviewView) Initialize(_ *Controller) {
	// No SetChangedFunc redraws here: updates arrive through QueueUpdateDraw
	ui.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	ui.logView.SetBorder(true).SetTitle(" Logs ")

	ui.timerPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.timerPanel.SetBorder(true).SetTitle(" Training ")
	ui.timerPanel.SetText(renderTimer(TimerState{}))

	instructions := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	instructions.SetText("[yellow]Space[white] Start/Pause  |  [yellow]N[white] Next  |  [yellow]M[white] Silence cue  |  [yellow]F[white] Finish  |  [yellow]X[white] Discard  |  [yellow]Q[white] Quit")

	body := tview.NewFlex().
		AddItem(ui.timerPanel, 0, 1, true).
		AddItem(ui.logView, 0, 1, false)

	ui.mainFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(instructions, 1, 0, false).
		AddItem(body, 0, 1, true)
}

// SetupKeyboardHandlers sets up keyboard event handlers
func (ui *TviewView) SetupKeyboardHandlers(controller *Controller) {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape:
			controller.Quit()
			return nil
		case tcell.KeyRune:
		default:
			return event
		}

		switch event.Rune() {
		case ' ':
			controller.ToggleTimer()
		case 'n', 'N':
			controller.NextStep()
		case 'm', 'M':
			controller.SilenceCue()
		case 'f', 'F':
			controller.FinishTraining()
		case 'x', 'X':
			controller.DiscardTraining()
		case 'q', 'Q':
			controller.Quit()
		default:
			return event
		}
		return nil
	})
}

// UpdateTimer redraws the timer panel from any goroutine
func (ui *TviewView) UpdateTimer(state TimerState) {
	text := renderTimer(state)
	ui.app.QueueUpdateDraw(func() {
		ui.timerPanel.SetText(text)
	})
}

// GetLogViewHeight returns the visible height of the log view
func (ui *TviewView) GetLogViewHeight() int {
	_, _, _, height := ui.logView.GetInnerRect()
	return height
}

// SetLogLines replaces the log view content from any goroutine
func (ui *TviewView) SetLogLines(lines []string) {
	text := tview.Escape(strings.Join(lines, "\n"))
	ui.app.QueueUpdateDraw(func() {
		ui.logView.SetText(text)
	})
}

var errNoScreen = errors.New("terminal not open")

// Beep rings the terminal bell on the UI goroutine without waiting for it
func (ui *TviewView) Beep() error {
	ui.mu.Lock()
	screen := ui.screen
	ui.mu.Unlock()
	if screen == nil {
		return errNoScreen
	}
	go ui.app.QueueUpdate(func() {
		_ = screen.Beep()
	})
	return nil
}

// Run opens the terminal, starts the UI and blocks until it exits
func (ui *TviewView) Run() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("opening terminal: %w", err)
	}
	ui.mu.Lock()
	ui.screen = screen
	ui.mu.Unlock()
	defer func() {
		ui.mu.Lock()
		ui.screen = nil
		ui.mu.Unlock()
	}()
	return ui.app.SetScreen(screen).SetRoot(ui.mainFlex, true).Run()
}

// Stop stops the UI framework
func (ui *TviewView) Stop() {
	ui.app.Stop()
}
