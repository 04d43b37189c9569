/*
 * shift: terminal-tunneled bidirectional file transfer
 * Copyright 2019-2026 Daniel Selifonov
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package log is a thin wrapper over the standard library's log package,
// giving the two cmd/ binaries a consistent "shift: " prefix without
// pulling a structured logging library into packages that must stay
// deterministic and side-effect-free.
package log

import (
	"io"
	stdlog "log"
	"os"
)

var logger = stdlog.New(os.Stderr, "shift: ", 0)

// SetOutput redirects where messages are written.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Infof logs an informational message.
func Infof(format string, args ...any) {
	logger.Printf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...any) {
	logger.Printf("error: "+format, args...)
}

// Fatalf logs an error message and exits with status 1.
func Fatalf(format string, args ...any) {
	logger.Printf("fatal: "+format, args...)
	os.Exit(1)
}
