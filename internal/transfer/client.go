// Package transfer implements the event-driven orchestrator that couples
// the protocol state machine to filesystem I/O: directory walking, resume
// by byte offset, and chunked streaming of files in either direction.
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dselifonov/shift/internal/log"
	"github.com/dselifonov/shift/internal/proto"
	"github.com/dselifonov/shift/internal/wire"
)

// DefaultBufferSize is the sender's chunk size when none is configured.
const DefaultBufferSize = 512 * 1024

// Client runs a single connection: drives the protocol machine, performs
// filesystem work, and surfaces progress through a Delegate.
type Client struct {
	machine    *proto.Machine
	bufferSize int

	delegate Delegate

	mu               sync.Mutex
	sending          bool
	worklist         []workItem
	baseDir          string
	pendingRelPath   string
	totalBytesToSend uint64
	totalBytesSent   uint64
	progressCb       ProgressFunc

	activeReceiveReq *wire.ReceiveRequest

	recvFile *os.File
	recvPos  uint64

	senderWG sync.WaitGroup
	notify   chan struct{}
}

// NewClient returns a Client that writes framed packets to carrierOut.
// bufferSize <= 0 selects DefaultBufferSize.
func NewClient(carrierOut io.Writer, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Client{
		machine:    proto.New(wire.NewWriter(carrierOut)),
		bufferSize: bufferSize,
	}
}

// Send initiates an outbound transfer of path, a single file or a
// directory tree, reporting progress through cb (which may be nil).
func (c *Client) Send(path string, cb ProgressFunc) error {
	info, isDir, err := rootFileInfo(path)
	if err != nil {
		return err
	}

	var items []workItem
	var baseDir string
	var total uint64
	if isDir {
		items, err = walkTree(path)
		if err != nil {
			return err
		}
		baseDir = path
		for _, it := range items {
			if !it.info.IsDir() {
				total += it.info.Size
			}
		}
	} else {
		baseDir = filepath.Dir(path)
		items = []workItem{{relPath: filepath.Base(path), info: info}}
		total = info.Size
	}

	c.mu.Lock()
	c.sending = true
	c.worklist = items
	c.baseDir = baseDir
	c.totalBytesToSend = total
	c.totalBytesSent = 0
	c.progressCb = cb
	c.mu.Unlock()

	return c.machine.RequestOutboundTransfer(wire.SendRequest{FileInfo: info})
}

// Receive asks the peer for permission to send us files. allowDirectories
// and allowMultiple are enforced locally against each subsequent offer.
func (c *Client) Receive(allowDirectories, allowMultiple bool) error {
	req := wire.ReceiveRequest{AllowDirectories: allowDirectories, AllowMultiple: allowMultiple}
	c.mu.Lock()
	c.activeReceiveReq = &req
	c.mu.Unlock()
	return c.machine.RequestInboundTransfer(req)
}

// Disconnect announces departure and tears the connection down.
func (c *Client) Disconnect() error {
	return c.machine.Disconnect()
}

// WriteRaw forwards data to the carrier unframed, for a front-end
// multiplexing ordinary terminal traffic onto the same carrier as shift
// packets (see proto.Machine.WriteRaw).
func (c *Client) WriteRaw(data []byte) error {
	return c.machine.WriteRaw(data)
}

// Run enters the event loop: if announce, it initiates the handshake,
// then pumps carrierIn through the framer/codec into the machine (reader
// actor) while draining machine events on the calling goroutine (main
// loop actor), until ctx is canceled or the carrier ends. passthrough, if
// non-nil, receives carrier bytes outside any packet envelope, in order.
func (c *Client) Run(ctx context.Context, announce bool, carrierIn io.Reader, delegate Delegate, passthrough func([]byte)) error {
	c.delegate = delegate

	frameReader := wire.NewReader()
	notify := make(chan struct{}, 1)
	c.notify = notify
	stopped := make(chan struct{})
	var readErr error

	go func() {
		defer close(stopped)
		buf := make([]byte, 32*1024)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, err := carrierIn.Read(buf)
			if n > 0 {
				for _, ev := range frameReader.Feed(buf[:n]) {
					switch ev.Kind {
					case wire.Packet:
						if content, ok := wire.Decode(ev.Data); ok {
							if err := c.machine.HandleIncoming(content); err != nil {
								// a message invalid for the current state: log
								// and tear the connection down rather than let
								// the peer and this side drift out of sync
								log.Errorf("%v", err)
								_ = c.Disconnect()
							}
						}
					case wire.Passthrough:
						if passthrough != nil {
							passthrough(ev.Data)
						}
					}
				}
				select {
				case notify <- struct{}{}:
				default:
				}
			}
			if err != nil {
				if err != io.EOF {
					err = &proto.Error{Kind: proto.CarrierIO, Err: err}
				}
				readErr = err
				return
			}
		}
	}()

	if announce {
		if err := c.machine.Start(); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			c.senderWG.Wait()
			return &proto.Error{Kind: proto.Canceled, Err: ctx.Err()}
		case <-notify:
			c.dispatchPending()
			if c.machine.State().Kind == proto.Disconnected {
				c.senderWG.Wait()
				return nil
			}
		case <-stopped:
			c.dispatchPending()
			c.senderWG.Wait()
			return readErr
		}
	}
}

// dispatchPending drains the machine's event queue until it is empty, so
// events pushed by the handlers themselves are dispatched too.
func (c *Client) dispatchPending() {
	for {
		events := c.machine.TakeEvents()
		if len(events) == 0 {
			return
		}
		for _, e := range events {
			c.dispatch(e)
		}
	}
}

func (c *Client) dispatch(e proto.Event) {
	switch e.Kind {
	case proto.EvConnected:
		c.delegate.OnIdle(c)

	case proto.EvDisconnected:
		c.delegate.OnDisconnect()

	case proto.EvInboundTransferOffered:
		c.handleInboundTransferOffered(e)

	case proto.EvInboundFileOpening:
		c.handleInboundFileOpening(e)

	case proto.EvChunk:
		c.handleChunk(e)

	case proto.EvFileClosed:
		c.handleFileClosed(e)

	case proto.EvTransferAccepted:
		c.maybeSendNextFile()

	case proto.EvTransferRejected:
		// nothing further to do; a later OnIdle callback already fired
		// from the prior Idle->OutboundTransferRequested round trip

	case proto.EvOutboundTransferOffered:
		c.delegate.OnOutboundTransferRequest(*e.ReceiveRequest, c)

	case proto.EvFileTransferStarted:
		c.handleFileTransferStarted(e)

	case proto.EvTransferClosed:
		c.handleTransferClosed()
	}
}

func (c *Client) handleInboundTransferOffered(e proto.Event) {
	c.mu.Lock()
	activeReq := c.activeReceiveReq
	c.mu.Unlock()

	allow := c.delegate.OnInboundTransferRequest(*e.SendRequest)
	if allow && activeReq != nil && e.SendRequest.FileInfo.IsDir() && !activeReq.AllowDirectories {
		allow = false
	}
	if allow {
		_ = c.machine.AcceptTransfer()
	} else {
		_ = c.machine.RejectTransfer()
	}
}

func (c *Client) handleInboundFileOpening(e proto.Event) {
	path, ok := c.delegate.OnInboundTransferFile(*e.OpenFile)
	if !ok {
		_ = c.machine.CloseTransfer()
		return
	}

	if e.OpenFile.FileInfo.IsDir() {
		if err := os.MkdirAll(path, 0o755); err != nil {
			c.failFilesystem("mkdir "+path, err)
			return
		}
		_ = c.machine.ConfirmFileOpened(0)
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.failFilesystem("mkdir "+filepath.Dir(path), err)
		return
	}
	mode := os.FileMode(e.OpenFile.FileInfo.Mode & 0o777)
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, mode)
	if err != nil {
		c.failFilesystem("open "+path, err)
		return
	}
	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		c.failFilesystem("seek "+path, err)
		return
	}

	c.mu.Lock()
	c.recvFile = f
	c.recvPos = uint64(pos)
	c.mu.Unlock()

	_ = c.machine.ConfirmFileOpened(uint64(pos))
}

// failFilesystem logs a FilesystemIO error for the receiver's local file
// I/O and closes the current transfer.
func (c *Client) failFilesystem(action string, err error) {
	log.Errorf("%v", &proto.Error{Kind: proto.FilesystemIO, Err: fmt.Errorf("%s: %w", action, err)})
	_ = c.machine.CloseTransfer()
}

func (c *Client) handleChunk(e proto.Event) {
	c.mu.Lock()
	f := c.recvFile
	pos := c.recvPos
	c.mu.Unlock()

	if f == nil {
		return
	}
	if e.Chunk.Offset != pos {
		// a chunk's offset must equal the receiver's current file position:
		// protocol violation or disk tampering, treated as a hard error
		log.Errorf("%v", &proto.Error{Kind: proto.ProtocolViolation, Err: fmt.Errorf("chunk offset %d, expected %d", e.Chunk.Offset, pos)})
		c.closeReceiverFile()
		_ = c.machine.CloseTransfer()
		return
	}

	n, err := f.Write(e.Chunk.Data)
	if err != nil {
		c.closeReceiverFile()
		c.failFilesystem("write chunk", err)
		return
	}

	c.mu.Lock()
	c.recvPos += uint64(n)
	c.mu.Unlock()
}

func (c *Client) closeReceiverFile() {
	c.mu.Lock()
	f := c.recvFile
	c.recvFile = nil
	c.mu.Unlock()
	if f != nil {
		_ = f.Close()
	}
}

func (c *Client) handleFileClosed(e proto.Event) {
	c.closeReceiverFile()

	c.mu.Lock()
	sending := c.sending
	if e.FileInfo != nil && !e.FileInfo.IsDir() {
		c.totalBytesSent += e.FileInfo.Size
	}
	c.mu.Unlock()

	if sending {
		c.maybeSendNextFile()
	}
}

// maybeSendNextFile pops the next entry off the worklist and requests it
// be opened, or closes the transfer once the worklist is exhausted.
func (c *Client) maybeSendNextFile() {
	c.mu.Lock()
	if len(c.worklist) == 0 {
		c.mu.Unlock()
		_ = c.machine.CloseTransfer()
		return
	}
	item := c.worklist[0]
	c.worklist = c.worklist[1:]
	c.pendingRelPath = item.relPath
	c.mu.Unlock()

	_ = c.machine.OpenFile(item.info)
}

func (c *Client) handleFileTransferStarted(e proto.Event) {
	c.mu.Lock()
	rel := c.pendingRelPath
	base := c.baseDir
	continueFrom := e.FileOpened.ContinueFrom
	progressCb := c.progressCb
	total := c.totalBytesToSend
	sentSoFar := c.totalBytesSent
	c.mu.Unlock()

	if e.OpenFile.FileInfo.IsDir() {
		_ = c.machine.CloseFile()
		return
	}

	fullPath := filepath.Join(base, rel)
	c.senderWG.Add(1)
	go func() {
		defer c.senderWG.Done()
		err := sendFile(c.machine, continueFrom, fullPath, c.bufferSize, func(position, size uint64) {
			if progressCb == nil {
				return
			}
			progressCb(TransferProgress{
				File:  FileProgress{Position: position, Size: size},
				Sent:  sentSoFar + position,
				Total: total,
			})
		})
		if err != nil {
			log.Errorf("send %s: %v", fullPath, err)
			_ = c.machine.CloseTransfer()
		}
		// wake the main loop to dispatch the events just queued
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}()
}

func (c *Client) handleTransferClosed() {
	c.mu.Lock()
	c.worklist = nil
	c.sending = false
	reissue := c.activeReceiveReq != nil && c.activeReceiveReq.AllowMultiple
	allowDirs := false
	if c.activeReceiveReq != nil {
		allowDirs = c.activeReceiveReq.AllowDirectories
	}
	c.activeReceiveReq = nil
	c.mu.Unlock()

	c.delegate.OnTransferClosed()

	if reissue {
		_ = c.Receive(allowDirs, true)
		return
	}
	c.delegate.OnIdle(c)
}
