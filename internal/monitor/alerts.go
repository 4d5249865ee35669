package monitor

import "log"

// AlertSink is a pluggable, fire-and-forget alert delivery target.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts to the process log.
type LogSink struct{}

func (LogSink) Send(message string) error {
	log.Printf("[alert] %s", message)
	return nil
}
