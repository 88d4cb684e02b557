package workflow

// Observer receives engine events, typically to feed metrics.
type Observer interface {
	RunStarted()
	RunClosed(status RunStatus)
	RunRotated()
	RunRecovered()
	SignalHandled(name string, err error)
	ActivityAttempt(name string, err error)
	LiveRuns(n int)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) RunStarted()                   {}
func (NopObserver) RunClosed(RunStatus)           {}
func (NopObserver) RunRotated()                   {}
func (NopObserver) RunRecovered()                 {}
func (NopObserver) SignalHandled(string, error)   {}
func (NopObserver) ActivityAttempt(string, error) {}
func (NopObserver) LiveRuns(int)                  {}
