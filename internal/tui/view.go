package tui

// ViewImpl defines the interface for framework-specific UI implementations
type ViewImpl interface {
	// Initialize is called after construction to set up framework-specific widgets
	Initialize(controller *Controller)

	// SetupKeyboardHandlers routes key presses to the controller
	SetupKeyboardHandlers(controller *Controller)

	// Run starts the UI framework and blocks until it exits
	Run() error

	// Stop stops the UI framework
	Stop()

	// UpdateTimer redraws the timer panel
	UpdateTimer(state TimerState)

	// GetLogViewHeight returns the visible height of the log view
	GetLogViewHeight() int

	// SetLogLines replaces the log view content
	SetLogLines(lines []string)
}
