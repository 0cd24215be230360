// Package logging builds the prefixed gommon loggers shared by the server and echo.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
)

// Header is the JSON line layout used for every component logger.
const Header = `{"time":"${time_rfc3339}","level":"${level}","component":"${prefix}","file":"${short_file}","line":"${line}"}`

var (
	level  = log.INFO
	output io.Writer = os.Stdout
)

// Configure sets the level and output applied to loggers created afterwards.
func Configure(lvl string, w io.Writer) {
	level = ParseLevel(lvl)
	if w != nil {
		output = w
	}
}

// ParseLevel maps a config string to a gommon level. Unknown values fall back to info.
func ParseLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

// New returns a logger for one component.
func New(component string) *log.Logger {
	l := log.New(component)
	l.SetHeader(Header)
	l.SetLevel(level)
	l.SetOutput(output)
	return l
}

// Discard returns a logger that writes nothing, for tests.
func Discard() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	l.SetLevel(log.OFF)
	return l
}
