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

// Package carrier supplies optional byte-stream carriers for a shift
// session. Besides a bare pipe or PTY master, a shift session can be
// tunneled over an interactive SSH session's stdio, dialed here.
package carrier

import (
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHOptions configures an outbound SSH dial. When StrictHostKeyChecking
// is true, KnownHostsFile must name a readable file.
type SSHOptions struct {
	User                  string
	IdentityFiles         []string
	DisableAgent          bool
	StrictHostKeyChecking bool
	KnownHostsFile        string
}

// Dial opens addr over SSH and starts an interactive shell, returning the
// session's combined stdio as the shift carrier plus a close function
// that tears down both the channel and the underlying connection.
func Dial(addr string, opts SSHOptions) (io.ReadWriteCloser, func() error, error) {
	auth, err := authMethods(opts)
	if err != nil {
		return nil, nil, err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if opts.StrictHostKeyChecking {
		if opts.KnownHostsFile == "" {
			return nil, nil, fmt.Errorf("carrier: strict host key checking requires a known_hosts file")
		}
		hostKeyCallback, err = knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("carrier: loading known_hosts: %w", err)
		}
	}

	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("carrier: dial %s: %w", addr, err)
	}

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("carrier: new session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, nil, err
	}
	if err := session.Shell(); err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, nil, fmt.Errorf("carrier: start shell: %w", err)
	}

	rwc := &sessionStream{in: stdin, out: stdout}
	closeFn := func() error {
		_ = session.Close()
		return client.Close()
	}
	return rwc, closeFn, nil
}

// sessionStream adapts an ssh.Session's split stdin/stdout pipes into a
// single io.ReadWriteCloser, the shape the orchestrator's Run expects.
type sessionStream struct {
	in  io.WriteCloser
	out io.Reader
}

func (s *sessionStream) Read(p []byte) (int, error)  { return s.out.Read(p) }
func (s *sessionStream) Write(p []byte) (int, error) { return s.in.Write(p) }
func (s *sessionStream) Close() error                { return s.in.Close() }

// authMethods collects signers from the SSH agent and from any identity
// files that parse as unencrypted private keys, deduping by public key
// fingerprint. shift-client is a one-shot CLI with no channel to relay an
// interactive passphrase prompt back through, so password-protected
// identities are skipped rather than deferred.
func authMethods(opts SSHOptions) ([]ssh.AuthMethod, error) {
	var signers []ssh.Signer
	seen := map[string]bool{}

	add := func(s ssh.Signer) {
		fp := string(s.PublicKey().Marshal())
		if seen[fp] {
			return
		}
		seen[fp] = true
		signers = append(signers, s)
	}

	if !opts.DisableAgent {
		if sock, ok := os.LookupEnv("SSH_AUTH_SOCK"); ok {
			if conn, err := net.Dial("unix", sock); err == nil {
				ag := agent.NewClient(conn)
				if agentSigners, err := ag.Signers(); err == nil {
					for _, s := range agentSigners {
						add(s)
					}
				}
			}
		}
	}

	for _, path := range opts.IdentityFiles {
		keyBytes, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			continue // encrypted or malformed: skip, per the doc comment above
		}
		add(signer)
	}

	if len(signers) == 0 {
		return nil, fmt.Errorf("carrier: no usable SSH keys (agent disabled or empty, no identity files parsed)")
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signers...)}, nil
}
