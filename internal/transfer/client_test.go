package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dselifonov/shift/internal/wire"
)

// pipePair returns two io.ReadWriteClosers, each end's writes visible to
// the other's reads, for wiring two Clients back to back in tests.
type pipeEnd struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pipeEnd) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeEnd) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p pipeEnd) Close() error                { _ = p.w.Close(); return p.r.Close() }

func pipePair() (pipeEnd, pipeEnd) {
	ar, aw := io.Pipe()
	br, bw := io.Pipe()
	return pipeEnd{r: ar, w: bw}, pipeEnd{r: br, w: aw}
}

// recordingDelegate accepts every offer and writes inbound files beneath
// dir, preserving the relative path the peer announced.
type recordingDelegate struct {
	dir           string
	allowDirs     bool
	allowMultiple bool
	closed        chan struct{}
	idleCount     int
}

func newRecordingDelegate(dir string) *recordingDelegate {
	return &recordingDelegate{dir: dir, closed: make(chan struct{}, 8)}
}

func (d *recordingDelegate) OnIdle(c *Client) { d.idleCount++ }

func (d *recordingDelegate) OnInboundTransferRequest(req wire.SendRequest) bool { return true }

func (d *recordingDelegate) OnInboundTransferFile(open wire.OpenFile) (string, bool) {
	return filepath.Join(d.dir, filepath.FromSlash(open.FileInfo.Name)), true
}

func (d *recordingDelegate) OnOutboundTransferRequest(req wire.ReceiveRequest, c *Client) {}

func (d *recordingDelegate) OnTransferClosed() {
	select {
	case d.closed <- struct{}{}:
	default:
	}
}

func (d *recordingDelegate) OnDisconnect() {}

func TestClient_SingleFileEndToEnd(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	srcPath := filepath.Join(srcDir, "greeting.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("hello, shift"), 0o644))

	endA, endB := pipePair()
	defer endA.Close()
	defer endB.Close()

	sender := NewClient(endA, 0)
	receiver := NewClient(endB, 0)

	senderDelegate := newRecordingDelegate(srcDir)
	receiverDelegate := newRecordingDelegate(dstDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	senderDone := make(chan error, 1)
	receiverDone := make(chan error, 1)
	go func() { senderDone <- sender.Run(ctx, true, endA, senderDelegate, nil) }()
	go func() { receiverDone <- receiver.Run(ctx, false, endB, receiverDelegate, nil) }()

	require.Eventually(t, func() bool {
		return receiverDelegate.idleCount >= 1 && senderDelegate.idleCount >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, receiver.Receive(false, false))
	require.Eventually(t, func() bool { return senderDelegate.idleCount >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, sender.Send(srcPath, nil))

	select {
	case <-receiverDelegate.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("transfer never closed")
	}

	got, err := os.ReadFile(filepath.Join(dstDir, "greeting.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello, shift", string(got))

	require.NoError(t, sender.Disconnect())
	cancel()
}

func TestClient_DirectoryTreeEndToEnd(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "tree", "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "tree", "a.txt"), []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "tree", "nested", "b.txt"), []byte("bbbbb"), 0o644))

	endA, endB := pipePair()
	defer endA.Close()
	defer endB.Close()

	sender := NewClient(endA, 0)
	receiver := NewClient(endB, 0)

	senderDelegate := newRecordingDelegate(srcDir)
	receiverDelegate := newRecordingDelegate(dstDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = sender.Run(ctx, true, endA, senderDelegate, nil) }()
	go func() { _ = receiver.Run(ctx, false, endB, receiverDelegate, nil) }()

	require.Eventually(t, func() bool {
		return receiverDelegate.idleCount >= 1 && senderDelegate.idleCount >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, receiver.Receive(true, false))
	require.Eventually(t, func() bool { return senderDelegate.idleCount >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, sender.Send(filepath.Join(srcDir, "tree"), nil))

	select {
	case <-receiverDelegate.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("transfer never closed")
	}

	got, err := os.ReadFile(filepath.Join(dstDir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "aaa", string(got))

	got, err = os.ReadFile(filepath.Join(dstDir, "nested", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "bbbbb", string(got))

	cancel()
}

func TestClient_DirectoryRejectedWhenNotAllowed(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(srcDir, "tree"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "tree", "a.txt"), []byte("x"), 0o644))

	endA, endB := pipePair()
	defer endA.Close()
	defer endB.Close()

	sender := NewClient(endA, 0)
	receiver := NewClient(endB, 0)

	senderDelegate := newRecordingDelegate(srcDir)
	receiverDelegate := newRecordingDelegate(dstDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = sender.Run(ctx, true, endA, senderDelegate, nil) }()
	go func() { _ = receiver.Run(ctx, false, endB, receiverDelegate, nil) }()

	require.Eventually(t, func() bool {
		return receiverDelegate.idleCount >= 1 && senderDelegate.idleCount >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, receiver.Receive(false, false))
	require.Eventually(t, func() bool { return senderDelegate.idleCount >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, sender.Send(filepath.Join(srcDir, "tree"), nil))

	time.Sleep(200 * time.Millisecond)

	_, err := os.Stat(filepath.Join(dstDir, "a.txt"))
	require.True(t, os.IsNotExist(err))

	cancel()
}

func TestClient_ResumeFromExistingPartialFile(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	full := make([]byte, 4096)
	for i := range full {
		full[i] = byte(i)
	}
	srcPath := filepath.Join(srcDir, "blob.bin")
	require.NoError(t, os.WriteFile(srcPath, full, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dstDir, "blob.bin"), full[:2048], 0o644))

	endA, endB := pipePair()
	defer endA.Close()
	defer endB.Close()

	sender := NewClient(endA, 256)
	receiver := NewClient(endB, 256)

	senderDelegate := newRecordingDelegate(srcDir)
	receiverDelegate := newRecordingDelegate(dstDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = sender.Run(ctx, true, endA, senderDelegate, nil) }()
	go func() { _ = receiver.Run(ctx, false, endB, receiverDelegate, nil) }()

	require.Eventually(t, func() bool {
		return receiverDelegate.idleCount >= 1 && senderDelegate.idleCount >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, receiver.Receive(false, false))
	require.Eventually(t, func() bool { return senderDelegate.idleCount >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, sender.Send(srcPath, nil))

	select {
	case <-receiverDelegate.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("transfer never closed")
	}

	got, err := os.ReadFile(filepath.Join(dstDir, "blob.bin"))
	require.NoError(t, err)
	require.Equal(t, full, got)

	cancel()
}
