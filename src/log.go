package expctrl

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Logger is the package-wide structured logger, written to stderr. All
// engine code logs through this variable; callers that want a
// differently-configured logger (level, output) can assign one built with
// log.New to it. This default exists so library code has something
// sensible to log to without every caller threading one through.
var Logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      time.RFC3339,
})

// ErrorLogSink records hardware errors (HardwareError) for later
// inspection, independent of whatever the caller wants printed to the
// console. A stream that fails is not obligated to block on slow or full
// disks, so every sink method tolerates its own write failures by folding
// them back into the console logger rather than propagating.
type ErrorLogSink interface {
	LogHardwareError(device string, err *HardwareError)
	Close() error
}

// FileErrorLogSink appends CSV rows (timestamp, device, kind, detail) to a
// single long-lived file handle, kept open across the run rather than
// reopened per write.
type FileErrorLogSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileErrorLogSink opens (creating if necessary, appending otherwise)
// the hardware error log at path, conventionally nidaqmx_error.logs.
func NewFileErrorLogSink(path string) (*FileErrorLogSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("expctrl: open error log %s: %w", path, err)
	}
	return &FileErrorLogSink{file: f}, nil
}

func (s *FileErrorLogSink) LogHardwareError(device string, err *HardwareError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := fmt.Sprintf("%s,%s,%s,%s\n", time.Now().Format(time.RFC3339), device, err.Kind, err.Detail)
	if _, writeErr := s.file.WriteString(line); writeErr != nil {
		Logger.Error("failed to append hardware error log entry", "path", s.file.Name(), "err", writeErr)
	}
}

func (s *FileErrorLogSink) Close() error {
	return s.file.Close()
}

// MemoryErrorLogSink accumulates hardware errors in memory, for tests that
// want to assert on what was logged without touching the filesystem.
type MemoryErrorLogSink struct {
	mu      sync.Mutex
	Entries []MemoryLogEntry
}

// MemoryLogEntry is one recorded hardware error.
type MemoryLogEntry struct {
	Device string
	Err    *HardwareError
}

// NewMemoryErrorLogSink constructs an empty in-memory sink.
func NewMemoryErrorLogSink() *MemoryErrorLogSink {
	return &MemoryErrorLogSink{}
}

func (s *MemoryErrorLogSink) LogHardwareError(device string, err *HardwareError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Entries = append(s.Entries, MemoryLogEntry{Device: device, Err: err})
}

func (s *MemoryErrorLogSink) Close() error { return nil }
