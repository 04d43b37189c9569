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

// Command shift-host is the remote half of shift: it spawns a program
// under a PTY, forwards the PTY's own traffic as ordinary passthrough
// bytes, and runs the transfer orchestrator on the same stream so a
// shift-client on the other end can multiplex file transfers into it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/dselifonov/shift/internal/log"
	"github.com/dselifonov/shift/internal/proto"
	"github.com/dselifonov/shift/internal/ptyglue"
	"github.com/dselifonov/shift/internal/transfer"
	"github.com/dselifonov/shift/internal/wire"
	"github.com/dselifonov/shift/pkg/fsutil"
)

const version = "shift-host 1.0"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	directory := flag.String("directory", "", "transfer root: source for outbound offers, destination for inbound files")
	bufferSize := flag.Int("buffer-size", transfer.DefaultBufferSize, "sender chunk size in bytes")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	args := flag.Args()
	dashIdx := -1
	for i, a := range args {
		if a == "--" {
			dashIdx = i
			break
		}
	}
	if *directory == "" || dashIdx == -1 || dashIdx+1 >= len(args) {
		fmt.Fprintf(os.Stderr, "usage: shift-host -directory DIR -- PROG ARGS...\n")
		os.Exit(1)
	}
	prog := args[dashIdx+1]
	progArgs := args[dashIdx+2:]

	dir, err := filepath.Abs(*directory)
	if err != nil {
		log.Fatalf("resolve directory: %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("create directory: %v", err)
	}

	session, err := ptyglue.Spawn(dir, prog, progArgs, os.Environ())
	if err != nil {
		log.Fatalf("spawn %s: %v", prog, err)
	}

	stop := make(chan struct{})
	ptyglue.WatchResize(session, stop)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	// The carrier is this process's own stdio: whatever already connects
	// it to a shift-client on the other end (an outer SSH channel, or a
	// plain pipe). The PTY master is the spawned shell, kept entirely
	// separate from the carrier.
	client := transfer.NewClient(os.Stdout, *bufferSize)
	delegate := &hostDelegate{dir: dir}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, rerr := session.Master.Read(buf)
			if n > 0 {
				if werr := client.WriteRaw(buf[:n]); werr != nil {
					return
				}
			}
			if rerr != nil {
				cancel()
				return
			}
		}
	}()

	err = client.Run(ctx, true, os.Stdin, delegate, func(b []byte) {
		_, _ = session.Master.Write(b)
	})
	close(stop)
	_ = session.Close()
	if !isCleanExit(err) {
		log.Errorf("%v", err)
		os.Exit(1)
	}

	if waitErr := session.Wait(); waitErr != nil {
		os.Exit(1)
	}
}

// isCleanExit reports whether err represents an ordinary end of the
// session rather than a failure: the carrier closing (io.EOF) or the
// process being interrupted with SIGINT (proto.Canceled).
func isCleanExit(err error) bool {
	if err == nil || err == io.EOF {
		return true
	}
	var perr *proto.Error
	if errors.As(err, &perr) && perr.Kind == proto.Canceled {
		return true
	}
	return false
}

// hostDelegate accepts any inbound offer into dir, and is asked by the
// remote side of a ReceiveRequest to supply outbound files from dir.
type hostDelegate struct {
	dir string
}

func (d *hostDelegate) OnIdle(c *transfer.Client) {}

func (d *hostDelegate) OnInboundTransferRequest(req wire.SendRequest) bool { return true }

func (d *hostDelegate) OnInboundTransferFile(open wire.OpenFile) (string, bool) {
	path, err := fsutil.JoinUnderRoot(d.dir, open.FileInfo.Name)
	if err != nil {
		log.Errorf("%v", err)
		return "", false
	}
	return path, true
}

func (d *hostDelegate) OnOutboundTransferRequest(req wire.ReceiveRequest, c *transfer.Client) {
	if err := c.Send(d.dir, nil); err != nil {
		log.Errorf("send %s: %v", d.dir, err)
	}
}

func (d *hostDelegate) OnTransferClosed() {}

func (d *hostDelegate) OnDisconnect() {}
