package calllog

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	dirPermMode = 0744

	rollingMaxSize    = 10 // megabytes
	rollingMaxBackups = 5
)

// Sink receives finished records.
type Sink interface {
	WriteRecord(line string) error
}

// Writer appends records, one per line, to an io.Writer.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) WriteRecord(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := io.WriteString(w.out, line+"\n")
	return err
}

// Close closes the underlying writer when it can be closed.
func (w *Writer) Close() error {
	if c, ok := w.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewFileSink stores the records of one bus name in <dir>/<name>.csv,
// rotating the file when it grows too large.
func NewFileSink(dir, busName string) (*Writer, error) {
	if err := os.MkdirAll(dir, dirPermMode); err != nil {
		return nil, errors.Wrapf(err, "unable to create call log directory %s", dir)
	}
	name := busName
	if name == "" {
		name = "calls"
	}
	return NewWriter(&lumberjack.Logger{
		Filename:   filepath.Join(dir, name+".csv"),
		MaxSize:    rollingMaxSize,
		MaxBackups: rollingMaxBackups,
	}), nil
}
