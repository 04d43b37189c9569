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

// Command shift-client is the user-facing half of shift: it multiplexes
// file-transfer packets into the same byte stream as an ordinary terminal
// session, alongside whatever carrier already connects the user to a
// shift-host on the far end.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/dselifonov/shift/internal/carrier"
	"github.com/dselifonov/shift/internal/log"
	"github.com/dselifonov/shift/internal/proto"
	"github.com/dselifonov/shift/internal/ptyglue"
	"github.com/dselifonov/shift/internal/transfer"
	"github.com/dselifonov/shift/internal/wire"
	"github.com/dselifonov/shift/pkg/fsutil"
)

const version = "shift-client 1.0"

// arrayFlags collects repeated occurrences of the same flag, for -i.
type arrayFlags []string

func (a *arrayFlags) String() string     { return "" }
func (a *arrayFlags) Set(v string) error { *a = append(*a, v); return nil }

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	bufferSize := flag.Int("buffer-size", transfer.DefaultBufferSize, "sender chunk size in bytes")
	sshTarget := flag.String("ssh", "", "dial host:port over SSH instead of using stdio as the carrier")
	sshUser := flag.String("ssh-user", "", "SSH username (with -ssh)")
	strictHostKeys := flag.Bool("strict-host-keys", true, "verify the SSH host key against known_hosts (with -ssh)")
	knownHosts := flag.String("known-hosts", defaultKnownHosts(), "known_hosts path (with -ssh)")
	noAgent := flag.Bool("no-agent", false, "disable SSH agent key lookup (with -ssh)")
	var identities arrayFlags
	flag.Var(&identities, "i", "SSH identity file `path` (repeatable, with -ssh)")
	allowDirs := flag.Bool("allow-directories", false, "receive: accept directory trees, not just single files")
	allowMultiple := flag.Bool("allow-multiple", false, "receive: keep accepting transfers after the first")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	subcommand, paths := args[0], args[1:]

	rwc, closeCarrier, err := openCarrier(*sshTarget, *sshUser, *strictHostKeys, *knownHosts, *noAgent, identities)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeCarrier()

	restore, err := ptyglue.RawMode(ptyglue.StdinFd())
	if err != nil {
		log.Fatalf("raw mode: %v", err)
	}
	defer restore()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		restore()
		cancel()
	}()

	client := transfer.NewClient(rwc, *bufferSize)

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if werr := client.WriteRaw(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	switch subcommand {
	case "send":
		runSend(ctx, client, rwc, paths)
	case "receive":
		if len(paths) != 1 {
			log.Fatalf("receive takes exactly one destination directory")
		}
		runReceive(ctx, client, rwc, paths[0], *allowDirs, *allowMultiple)
	default:
		flag.Usage()
		os.Exit(1)
	}
}

func defaultKnownHosts() string {
	if home, ok := os.LookupEnv("HOME"); ok {
		return home + "/.ssh/known_hosts"
	}
	return ""
}

func openCarrier(target, user string, strict bool, knownHosts string, noAgent bool, identities arrayFlags) (io.ReadWriteCloser, func() error, error) {
	if target == "" {
		return stdioCarrier{}, func() error { return nil }, nil
	}
	rwc, closeFn, err := carrier.Dial(target, carrier.SSHOptions{
		User:                  user,
		IdentityFiles:         identities,
		DisableAgent:          noAgent,
		StrictHostKeyChecking: strict,
		KnownHostsFile:        knownHosts,
	})
	if err != nil {
		return nil, nil, err
	}
	return rwc, closeFn, nil
}

// stdioCarrier treats the process's own stdio as the carrier: the normal
// case where an outer SSH client has already connected this process's
// stdin/stdout to a shift-host on the far end.
type stdioCarrier struct{}

func (stdioCarrier) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioCarrier) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioCarrier) Close() error                { return nil }

func runSend(ctx context.Context, client *transfer.Client, carrierIn io.Reader, paths []string) {
	delegate := &senderDelegate{client: client, paths: paths, progress: newProgressRenderer()}
	err := client.Run(ctx, true, carrierIn, delegate, passthroughToStdout)
	delegate.progress.finish()
	if !isCleanExit(err) {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	if delegate.lastErr != nil {
		log.Errorf("%v", delegate.lastErr)
		os.Exit(1)
	}
}

func runReceive(ctx context.Context, client *transfer.Client, carrierIn io.Reader, destDir string, allowDirs, allowMultiple bool) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		log.Fatalf("create destination directory: %v", err)
	}
	delegate := &receiverDelegate{destDir: destDir, allowDirs: allowDirs, allowMultiple: allowMultiple}
	err := client.Run(ctx, true, carrierIn, delegate, passthroughToStdout)
	if !isCleanExit(err) {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

// isCleanExit reports whether err represents an ordinary end of the
// session rather than a failure: the carrier closing (io.EOF) or the
// user interrupting with SIGINT (proto.Canceled).
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

func passthroughToStdout(b []byte) {
	_, _ = os.Stdout.Write(b)
}

// senderDelegate drives one or more outbound transfers in sequence, one
// per path on the command line.
type senderDelegate struct {
	client   *transfer.Client
	paths    []string
	progress *progressRenderer
	index    int
	lastErr  error
}

func (d *senderDelegate) OnIdle(c *transfer.Client) {
	if d.index >= len(d.paths) {
		_ = c.Disconnect()
		return
	}
	path := d.paths[d.index]
	d.index++
	if err := c.Send(path, d.progress.onProgress); err != nil {
		d.lastErr = err
		_ = c.Disconnect()
	}
}

func (d *senderDelegate) OnInboundTransferRequest(req wire.SendRequest) bool { return false }

func (d *senderDelegate) OnInboundTransferFile(open wire.OpenFile) (string, bool) { return "", false }

func (d *senderDelegate) OnOutboundTransferRequest(req wire.ReceiveRequest, c *transfer.Client) {}

func (d *senderDelegate) OnTransferClosed() {}

func (d *senderDelegate) OnDisconnect() {}

// receiverDelegate accepts every inbound offer within the configured
// allow_directories/allow_multiple bounds, placing files beneath destDir
// using the sender-announced relative path (guarded against traversal).
type receiverDelegate struct {
	destDir       string
	allowDirs     bool
	allowMultiple bool
	received      bool
}

func (d *receiverDelegate) OnIdle(c *transfer.Client) {
	if d.received && !d.allowMultiple {
		_ = c.Disconnect()
		return
	}
	if err := c.Receive(d.allowDirs, d.allowMultiple); err != nil {
		log.Errorf("request inbound transfer: %v", err)
		_ = c.Disconnect()
	}
}

func (d *receiverDelegate) OnInboundTransferRequest(req wire.SendRequest) bool {
	return true
}

func (d *receiverDelegate) OnInboundTransferFile(open wire.OpenFile) (string, bool) {
	path, err := fsutil.JoinUnderRoot(d.destDir, open.FileInfo.Name)
	if err != nil {
		log.Errorf("%v", err)
		return "", false
	}
	d.received = true
	return path, true
}

func (d *receiverDelegate) OnOutboundTransferRequest(req wire.ReceiveRequest, c *transfer.Client) {}

func (d *receiverDelegate) OnTransferClosed() {}

func (d *receiverDelegate) OnDisconnect() {}
