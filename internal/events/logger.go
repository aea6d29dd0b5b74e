package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of stream event.
type EventType string

const (
	EventStarted      EventType = "started"
	EventPaused       EventType = "paused"
	EventStopped      EventType = "stopped"
	EventDeviceLost   EventType = "device_lost"
	EventSilenceStart EventType = "silence_start"
	EventSilenceEnd   EventType = "silence_end"
	EventBargeIn      EventType = "barge_in"
	EventUnderrun     EventType = "underrun"
)

// StreamEvent represents a single stream event.
type StreamEvent struct {
	Timestamp   time.Time `json:"ts"`
	StreamID    string    `json:"stream_id"`
	RouteName   string    `json:"route_name,omitempty"`
	Event       EventType `json:"event"`
	Message     string    `json:"msg,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms,omitempty"` // Silence duration (silence_end only)
	Count       int64     `json:"count,omitempty"`       // Underrun total (underrun only)
	Interrupted []string  `json:"interrupted,omitempty"` // Paused playback streams (barge_in only)
}

// DefaultMaxLogSize is the size at which the event log rotates. The
// previous log is kept once, as <path>.old.
const DefaultMaxLogSize = 5 << 20

// Logger writes stream events to a JSON lines file, rotating it when it
// grows past maxSize.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	size     int64
	maxSize  int64
}

// NewLogger creates a new event logger.
func NewLogger(filePath string) (*Logger, error) {
	// Ensure directory exists
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	// Open file for appending
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		size:     info.Size(),
		maxSize:  DefaultMaxLogSize,
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *StreamEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	if l.size+int64(len(line)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.file.Write(line)
	l.size += int64(n)
	return err
}

// rotate moves the current log aside and starts a fresh one. Caller must
// hold l.mu.
func (l *Logger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.filePath, l.filePath+".old"); err != nil {
		return err
	}
	file, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	l.file = file
	l.size = 0
	return nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// ReadLast reads the last n events from the log file.
func ReadLast(filePath string, n int) ([]StreamEvent, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []StreamEvent{}, nil
		}
		return nil, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	// Read all lines (for simplicity; could optimize with reverse reading for large files)
	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Take last n lines
	start := 0
	if len(lines) > n {
		start = len(lines) - n
	}
	lines = lines[start:]

	// Parse events (newest first)
	events := make([]StreamEvent, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		var event StreamEvent
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	return events, nil
}
