package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventIngest     EventType = "ingest"
	EventRefresh    EventType = "refresh"
	EventPlay       EventType = "play"
	EventPostAction EventType = "post_action"
	EventDuplicate  EventType = "duplicate"
	EventDownload   EventType = "download"
	EventError      EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event is one line of the audit trail
type Event struct {
	Timestamp time.Time         `json:"ts"`
	RunID     string            `json:"run_id"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	MediaID   int64             `json:"media_id,omitempty"`
	Path      string            `json:"path,omitempty"`
	DestPath  string            `json:"dest_path,omitempty"`
	Action    string            `json:"action,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Size      int64             `json:"size,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"`
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file. A nil logger discards.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates events-<timestamp>.jsonl in outputDir
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		runID:    uuid.NewString(),
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.RunID = l.runID

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

func errorLevel(err error, ok EventLevel) (EventLevel, string) {
	if err != nil {
		return LevelError, err.Error()
	}
	return ok, ""
}

// LogIngest logs one upserted media row
func (l *EventLogger) LogIngest(mediaID int64, path, source string) error {
	return l.Log(&Event{
		Level:   LevelInfo,
		Event:   EventIngest,
		MediaID: mediaID,
		Path:    path,
		Extra:   map[string]string{"source": source},
	})
}

// LogRefresh logs a playlist refresh and its new back-off delay
func (l *EventLogger) LogRefresh(playlist string, newMedia, delayHours int, err error) error {
	level, msg := errorLevel(err, LevelInfo)
	return l.Log(&Event{
		Level: level,
		Event: EventRefresh,
		Path:  playlist,
		Error: msg,
		Extra: map[string]string{
			"new_media":   strconv.Itoa(newMedia),
			"delay_hours": strconv.Itoa(delayHours),
		},
	})
}

// LogPlay logs a finished playback
func (l *EventLogger) LogPlay(mediaID int64, path string, playhead int64, done bool, exitCode int, elapsed time.Duration) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventPlay,
		MediaID:  mediaID,
		Path:     path,
		Duration: elapsed.Milliseconds(),
		Extra: map[string]string{
			"playhead":  strconv.FormatInt(playhead, 10),
			"done":      strconv.FormatBool(done),
			"exit_code": strconv.Itoa(exitCode),
		},
	})
}

// LogPostAction logs the action taken on a media row
func (l *EventLogger) LogPostAction(path, destPath, action, reason string, err error) error {
	level, msg := errorLevel(err, LevelInfo)
	return l.Log(&Event{
		Level:    level,
		Event:    EventPostAction,
		Path:     path,
		DestPath: destPath,
		Action:   action,
		Reason:   reason,
		Error:    msg,
	})
}

// LogDuplicate logs a duplicate and the copy that was kept
func (l *EventLogger) LogDuplicate(keepPath, duplicatePath string, size int64, method string) error {
	return l.Log(&Event{
		Level:    LevelWarning,
		Event:    EventDuplicate,
		Path:     duplicatePath,
		DestPath: keepPath,
		Size:     size,
		Reason:   method,
	})
}

// LogDownload logs a download attempt
func (l *EventLogger) LogDownload(webpath, localPath string, err error) error {
	level, msg := errorLevel(err, LevelInfo)
	return l.Log(&Event{
		Level:    level,
		Event:    EventDownload,
		Path:     webpath,
		DestPath: localPath,
		Error:    msg,
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, path string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: event,
		Path:  path,
		Error: err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// RunID identifies every event written by this logger
func (l *EventLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
