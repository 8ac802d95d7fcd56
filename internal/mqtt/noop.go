package mqtt

// Noop discards everything. Used when no broker is configured.
type Noop struct{}

func (Noop) PublishSession(SessionEvent) error { return nil }
func (Noop) PublishStatus(StatusEvent) error   { return nil }
func (Noop) PublishSystem(SystemEvent) error   { return nil }
func (Noop) Close() error                      { return nil }
func (Noop) IsConnected() bool                 { return false }
