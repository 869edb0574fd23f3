package ports

type Metrics interface {
	NotificationGated(outcome string)
	StreamConnectAttempt()
	StreamConnected()
	StreamReconnect(reason string)
	TaskStarted(kind string)
	TaskFinished(kind, outcome string)
	PostCycle(status string)
}

type NopMetrics struct{}

func (NopMetrics) NotificationGated(string)    {}
func (NopMetrics) StreamConnectAttempt()       {}
func (NopMetrics) StreamConnected()            {}
func (NopMetrics) StreamReconnect(string)      {}
func (NopMetrics) TaskStarted(string)          {}
func (NopMetrics) TaskFinished(string, string) {}
func (NopMetrics) PostCycle(string)            {}
