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

package ptyglue

import (
	"os"

	"golang.org/x/term"
)

// RawMode puts fd's terminal into raw mode and returns a restore function.
// Restore is idempotent: calling it more than once (e.g. once from a
// signal handler and once from a deferred cleanup) is safe.
func RawMode(fd int) (restore func(), err error) {
	state, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, err
	}
	var done bool
	return func() {
		if done {
			return
		}
		done = true
		_ = term.Restore(fd, state)
	}, nil
}

// StdinFd is a convenience accessor for toggling the local terminal.
func StdinFd() int {
	return int(os.Stdin.Fd())
}
