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
	"os/signal"
	"syscall"

	"github.com/creack/pty"
)

// WatchResize installs a SIGWINCH handler that mirrors this process's
// controlling terminal size onto session's PTY master, for as long as
// stop is not closed. It applies the current size once immediately so
// the child starts out correctly sized.
func WatchResize(session *Session, stop <-chan struct{}) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	go func() {
		defer signal.Stop(ch)
		applySize(session)
		for {
			select {
			case <-stop:
				return
			case <-ch:
				applySize(session)
			}
		}
	}()
}

func applySize(session *Session) {
	size, err := pty.GetsizeFull(os.Stdin)
	if err != nil {
		return
	}
	_ = pty.Setsize(session.Master, size)
}
