// Package logging builds the loggers handed to long-running components.
//
// CLI invocations log to stderr only. The watcher daemon additionally
// writes to a size-rotated file under the base directory so ghost
// decisions and watcher errors survive terminal sessions.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewCLILogger returns a stderr logger for short-lived commands.
func NewCLILogger(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}

// NewDaemonLogger returns a logger that tees to stderr and a rotating
// file. The returned closer flushes and closes the file sink.
func NewDaemonLogger(prefix, file string) (*log.Logger, io.Closer) {
	sink := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
		Compress:   true,
	}
	return log.New(io.MultiWriter(os.Stderr, sink), prefix, log.LstdFlags), sink
}
