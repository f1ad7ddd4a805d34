// Package common provides centralized logging infrastructure for the memory
// graph service. It implements output routing that sends error-level log
// entries to stderr and everything else to stdout, so containerized
// deployments can treat the two streams differently.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines to stdout or stderr based on
// the logrus level marker present in the line.
type OutputSplitter struct{}

// Write implements io.Writer, sending lines containing "level=error" to
// stderr and everything else to stdout.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is a package-level logrus instance writing through OutputSplitter.
// The service's components log through the logger they are constructed
// with, not through this one.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
