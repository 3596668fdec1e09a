// Package nlog is xddmcp's logger: timestamped, severity-gated, writes to
// stderr and (once SetLogFile has been called) to a rotating-free append
// log. Adapted from aistore's cmn/nlog call-site idiom
// (Infof/Warningf/Errorf) with the buffering/rotation machinery trimmed
// down to what a one-shot CLI transfer needs.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var (
	mu       sync.Mutex
	sink     io.Writer = os.Stderr
	file     *os.File
	toStderr           = true
)

// SetOutput directs subsequent log lines to w in addition to stderr
// (stderr is never silenced, since the CLI's own progress line lives
// there too and users expect ERROR/WARNING lines alongside it).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	sink = w
}

// SetLogFile opens path for appending and routes all subsequent writes
// there as well as to stderr. Returns the open file so the caller can
// Close it on teardown.
func SetLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	file = f
	sink = f
	mu.Unlock()
	return f, nil
}

func prefix(sev severity) string {
	var c byte
	switch sev {
	case sevInfo:
		c = 'I'
	case sevWarn:
		c = 'W'
	case sevErr:
		c = 'E'
	}
	return fmt.Sprintf("%c%s ", c, time.Now().Format("0102 15:04:05.000000"))
}

func log(sev severity, format string, args ...any) {
	var line string
	if format == "" {
		line = prefix(sev) + fmt.Sprintln(args...)
	} else {
		line = prefix(sev) + fmt.Sprintf(format, args...) + "\n"
	}
	mu.Lock()
	defer mu.Unlock()
	if toStderr && sink != io.Writer(os.Stderr) {
		os.Stderr.WriteString(line)
	}
	io.WriteString(sink, line)
}

func Infof(format string, args ...any)    { log(sevInfo, format, args...) }
func Infoln(args ...any)                  { log(sevInfo, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, format, args...) }
func Warningln(args ...any)               { log(sevWarn, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, format, args...) }
func Errorln(args ...any)                 { log(sevErr, "", args...) }

// Flush syncs the log file to disk, if one is open.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Sync()
	}
}
