package logging

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stamp writes progress messages with the time elapsed since the last
// reset. Messages go to the logger and, when set, to a plain text sink
// such as a task log file.
type Stamp struct {
	mu      sync.Mutex
	logger  *zap.Logger
	verbose Verbosity
	start   time.Time
	sink    io.Writer
	now     func() time.Time
}

// NewStamp creates a stamp that shows messages up to the given verbosity
func NewStamp(logger *zap.Logger, verbose Verbosity) *Stamp {
	s := &Stamp{logger: logger, verbose: verbose, now: time.Now}
	s.start = s.now()
	return s
}

// SetSink directs a copy of all shown messages to w; nil disables the copy
func (s *Stamp) SetSink(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = w
}

// SetVerbosity changes the verbosity
func (s *Stamp) SetVerbosity(v Verbosity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verbose = v
}

// Reset restarts the clock
func (s *Stamp) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = s.now()
}

// Elapsed returns the time since the last reset
func (s *Stamp) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.start)
}

// Emsg reports an error
func (s *Stamp) Emsg(format string, args ...interface{}) { s.emit(Error, format, args...) }

// Wmsg reports a warning
func (s *Stamp) Wmsg(format string, args ...interface{}) { s.emit(Warning, format, args...) }

// Imsg reports normal progress
func (s *Stamp) Imsg(format string, args ...interface{}) { s.emit(Normal, format, args...) }

// Dmsg reports details
func (s *Stamp) Dmsg(format string, args ...interface{}) { s.emit(Detail, format, args...) }

// Xmsg reports debugging output
func (s *Stamp) Xmsg(format string, args ...interface{}) { s.emit(Debug, format, args...) }

func (s *Stamp) emit(level Verbosity, format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if level > s.verbose {
		return
	}
	msg := fmt.Sprintf(format, args...)
	elapsed := s.now().Sub(s.start)

	if s.sink != nil {
		fmt.Fprintf(s.sink, "%s %s\n", FormatElapsed(elapsed), msg)
	}

	fields := []zap.Field{zap.String("elapsed", FormatElapsed(elapsed))}
	switch level {
	case Error:
		s.logger.Error(msg, fields...)
	case Warning:
		s.logger.Warn(msg, fields...)
	case Debug:
		s.logger.Debug(msg, fields...)
	default:
		s.logger.Info(msg, fields...)
	}
}

// FormatElapsed renders a duration the way progress lines show it:
// seconds below a minute, m/s below an hour, h/m above
func FormatElapsed(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%6.2fs", d.Seconds())
	case d < time.Hour:
		m := int(d / time.Minute)
		return fmt.Sprintf("%2dm %02ds", m, int((d-time.Duration(m)*time.Minute)/time.Second))
	default:
		h := int(d / time.Hour)
		return fmt.Sprintf("%2dh %02dm", h, int((d-time.Duration(h)*time.Hour)/time.Minute))
	}
}
