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

// Package ptyglue spawns a child process under a pseudo-terminal. The PTY
// master is the spawned shell's own terminal stream, pumped separately
// from whatever carries the shift protocol between host and client; it is
// not itself the carrier.
package ptyglue

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// Session holds the spawned child and its PTY master.
type Session struct {
	Cmd    *exec.Cmd
	Master *os.File
}

// Spawn starts prog (with args) in dir under a new PTY, returning the
// master end of that PTY. The child's stdio is entirely the PTY slave; the
// caller owns Master and must Close it (which also signals the child's
// controlling terminal has gone away).
func Spawn(dir, prog string, args []string, env []string) (*Session, error) {
	cmd := exec.Command(prog, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	if env != nil {
		cmd.Env = env
	}

	master, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}
	return &Session{Cmd: cmd, Master: master}, nil
}

// Wait blocks until the child exits, releasing the PTY master.
func (s *Session) Wait() error {
	defer s.Master.Close()
	return s.Cmd.Wait()
}

// Close releases the PTY master without waiting for the child.
func (s *Session) Close() error {
	return s.Master.Close()
}
