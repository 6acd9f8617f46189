// Package logging provides the dataflow engine's structured logging setup.
// It routes error-level output to stderr and everything else to stdout, so
// container orchestrators and log aggregators can treat the two streams
// differently.
package logging

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// streamSplitter is an io.Writer that inspects formatted logrus output and
// sends error-level lines to stderr, everything else to stdout.
type streamSplitter struct{}

func (streamSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the process-wide logger used by every engine package. Services
// embedding the engine may further customize formatter and level after
// import; the default routing via streamSplitter always applies.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(streamSplitter{})
}
