package logger

import (
	"bytes"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// consoleWriter re-encodes every JSON event before writing it. zerolog appends fields without looking at
// the ones already present, so an event can carry the same key twice; decoding into a map keeps the last
// value only.
type consoleWriter struct {
	out io.Writer
}

func (c *consoleWriter) Write(p []byte) (n int, err error) {
	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	if err := d.Decode(&evt); err != nil {
		return 0, errors.Wrap(err, "cannot decode event")
	}
	return len(p), json.NewEncoder(c.out).Encode(evt)
}
