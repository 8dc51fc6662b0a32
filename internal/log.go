// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.



package internal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// Singleton log writer. Writes to stdout, and optionally to a file.
// Does not add prefixes, or force newlines.

// The optional additional file to log into
var logFile   *bufio.Writer
var logFileOS *os.File

// Serializes writes from concurrently materializing operators
var logMutex  sync.Mutex

// Enables logging to file. Closes any previously opened log file
func LogAlsoToFile(fileName string) (err error) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile!=nil {
		if err=logFile.Flush();   err!=nil { return err }
		if err=logFileOS.Close(); err!=nil { return err }
		logFile, logFileOS=nil, nil
	}
	f, err:=os.OpenFile(fileName, os.O_CREATE | os.O_TRUNC | os.O_WRONLY, 0666)
	if err!=nil { return fmt.Errorf("%w: opening log file %s: %v", ErrIOFailure, fileName, err) }
	logFileOS=f
	logFile=bufio.NewWriter(logFileOS)
	return nil
}

func LogPrint(args ...interface{}) (n int, err error) {
	logMutex.Lock()
	defer logMutex.Unlock()
	n, err=fmt.Print(args...)
	if err!=nil || logFile==nil { return n, err }
	return fmt.Fprint(logFile, args...)
}

func LogPrintln(args ...interface{}) (n int, err error) {
	logMutex.Lock()
	defer logMutex.Unlock()
	n, err=fmt.Println(args...)
	if err!=nil || logFile==nil { return n, err }
	return fmt.Fprintln(logFile, args...)
}

func LogPrintf(format string, args ...interface{}) (n int, err error) {
	logMutex.Lock()
	defer logMutex.Unlock()
	n, err=fmt.Printf(format, args...)
	if err!=nil || logFile==nil { return n, err }
	return fmt.Fprintf(logFile, format, args...)
}

func LogFatal(args ...interface{}) {
	fmt.Println(args...)
	if logFile!=nil {
		fmt.Fprintln(logFile, args...)
		logFile.Flush()
		logFileOS.Close()
	}
	os.Exit(1)
}

func LogFatalf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
	if logFile!=nil {
		fmt.Fprintf(logFile, format, args...)
		logFile.Flush()
		logFileOS.Close()
	}
	os.Exit(1)
}

// Flushes the log file, if any, to disk
func LogSync() {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile==nil { return }
	logFile.Flush()
	logFileOS.Sync()
}

// Returns an io.Writer that goes through the singleton log, for use in operator contexts
func LogWriter() io.Writer {
	return logWriter{}
}

type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	logMutex.Lock()
	defer logMutex.Unlock()
	n, err=os.Stdout.Write(p)
	if err!=nil || logFile==nil { return n, err }
	return logFile.Write(p)
}

// Wraps a writer so concurrent writes are serialized, flushing after each write if the writer supports it
func NewSyncWriter(w io.Writer) io.Writer {
	return &syncWriter{w: w}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err=s.w.Write(p)
	if f, ok:=s.w.(interface{ Flush() }); ok && err==nil { f.Flush() }
	return n, err
}
