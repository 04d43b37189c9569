// Package proto implements the deterministic peer protocol state machine:
// given the same ordered sequence of local calls and incoming messages, it
// produces the same state, outbound messages, and events, every time.
package proto

import (
	"sync"

	"github.com/dselifonov/shift/internal/wire"
)

// ProtocolVersion is sent in the initial handshake.
const ProtocolVersion = 1

// Machine is a symmetric peer state machine. All mutation is serialized
// through mu; the write side of the carrier lives inside the Machine so
// that control messages (from the orchestrator's main loop) and chunk
// streams (from a sender task) can never interleave mid-envelope.
type Machine struct {
	mu     sync.Mutex
	state  State
	events []Event
	writer *wire.Writer
}

// New returns a Machine in the Initial state, writing outbound packets
// through w.
func New(w *wire.Writer) *Machine {
	return &Machine{state: State{Kind: Initial}, writer: w}
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TakeEvents atomically drains and returns the accumulated event queue, in
// the exact order transitions produced them.
func (m *Machine) TakeEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events
	m.events = nil
	return events
}

func (m *Machine) push(e Event) {
	m.events = append(m.events, e)
}

func (m *Machine) write(c wire.Content) error {
	return m.writer.Write(wire.Encode(c))
}

func (m *Machine) invalid(input string) error {
	return &Error{Kind: InvalidTransition, State: m.state.String(), Input: input}
}

// Start begins the handshake by announcing this side's Init.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Kind != Initial {
		return m.invalid("Start")
	}
	if err := m.write(wire.Init{Version: ProtocolVersion}); err != nil {
		return err
	}
	m.state = State{Kind: Connecting}
	return nil
}

// RequestInboundTransfer asks the peer for permission to receive files.
func (m *Machine) RequestInboundTransfer(r wire.ReceiveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Kind != Idle {
		return m.invalid("RequestInboundTransfer")
	}
	if err := m.write(r); err != nil {
		return err
	}
	m.state = State{Kind: InboundTransferRequested, recvReq: &r}
	return nil
}

// RequestOutboundTransfer offers to send the file/tree described by s.
func (m *Machine) RequestOutboundTransfer(s wire.SendRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Kind != Idle {
		return m.invalid("RequestOutboundTransfer")
	}
	if err := m.write(s); err != nil {
		return err
	}
	m.state = State{Kind: OutboundTransferRequested, sendReq: &s}
	return nil
}

// AcceptTransfer accepts a peer's SendRequest offer.
func (m *Machine) AcceptTransfer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Kind != InboundTransferOffered {
		return m.invalid("AcceptTransfer")
	}
	if err := m.write(wire.AcceptTransfer{}); err != nil {
		return err
	}
	m.state = State{Kind: InboundTransfer, sendReq: m.state.sendReq}
	return nil
}

// RejectTransfer declines a peer's SendRequest offer.
func (m *Machine) RejectTransfer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Kind != InboundTransferOffered {
		return m.invalid("RejectTransfer")
	}
	if err := m.write(wire.RejectTransfer{}); err != nil {
		return err
	}
	m.state = State{Kind: Idle}
	return nil
}

// OpenFile requests the peer open the next file/directory entry f, while
// this side is sending.
func (m *Machine) OpenFile(f wire.FileInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Kind != OutboundTransfer {
		return m.invalid("OpenFile")
	}
	msg := wire.OpenFile{FileInfo: f}
	if err := m.write(msg); err != nil {
		return err
	}
	m.state = State{Kind: OutboundTransfer, sendReq: m.state.sendReq, openReq: &msg}
	return nil
}

// ConfirmFileOpened acknowledges a peer's OpenFile request (this side is
// receiving), reporting the byte offset to resume from.
func (m *Machine) ConfirmFileOpened(continueFrom uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Kind != InboundTransfer || m.state.openReq == nil {
		return m.invalid("ConfirmFileOpened")
	}
	if err := m.write(wire.FileOpened{ContinueFrom: continueFrom}); err != nil {
		return err
	}
	info := m.state.openReq.FileInfo
	m.state = State{Kind: InboundFileTransfer, sendReq: m.state.sendReq, openFile: &info}
	return nil
}

// SendChunk streams one chunk of the currently open outbound file.
func (m *Machine) SendChunk(c wire.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Kind != OutboundFileTransfer {
		return m.invalid("SendChunk")
	}
	return m.write(c)
}

// CloseFile ends the currently open outbound file. Called while receiving,
// or while neither side has a file open, it is silently ignored: the peer
// may have already closed out its own end of the current file.
func (m *Machine) CloseFile() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Kind != OutboundFileTransfer {
		return nil
	}
	if err := m.write(wire.CloseFile{}); err != nil {
		return err
	}
	m.push(Event{Kind: EvFileClosed, FileInfo: m.state.openFile})
	m.state = State{Kind: OutboundTransfer, sendReq: m.state.sendReq}
	return nil
}

// CloseTransfer tears down the active transfer, returning both sides to
// Idle. Called outside an active transfer, it is silently ignored.
func (m *Machine) CloseTransfer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.Kind {
	case InboundTransfer, InboundFileTransfer, OutboundTransfer, OutboundFileTransfer:
	default:
		return nil
	}
	if err := m.write(wire.CloseTransfer{}); err != nil {
		return err
	}
	m.push(Event{Kind: EvTransferClosed})
	m.state = State{Kind: Idle}
	return nil
}

// Disconnect announces departure and tears the connection down
// unconditionally, from any state.
func (m *Machine) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.write(wire.Disconnect{}); err != nil {
		return err
	}
	m.push(Event{Kind: EvDisconnected})
	m.state = State{Kind: Disconnected}
	return nil
}

// WriteRaw forwards data directly to the carrier, unframed, alongside
// this machine's own packet writes (see wire.Writer.WriteRaw). Used by a
// CLI front-end that multiplexes ordinary terminal traffic onto the same
// carrier as the protocol.
func (m *Machine) WriteRaw(data []byte) error {
	return m.writer.WriteRaw(data)
}

// HandleIncoming feeds one decoded remote message through the machine.
func (m *Machine) HandleIncoming(c wire.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := c.(wire.Disconnect); ok {
		m.push(Event{Kind: EvDisconnected})
		m.state = State{Kind: Disconnected}
		return nil
	}

	switch msg := c.(type) {
	case wire.Init:
		switch m.state.Kind {
		case Initial:
			if err := m.write(wire.Init{Version: ProtocolVersion}); err != nil {
				return err
			}
			m.push(Event{Kind: EvConnected})
			m.state = State{Kind: Idle}
			return nil
		case Connecting:
			m.push(Event{Kind: EvConnected})
			m.state = State{Kind: Idle}
			return nil
		default:
			return m.invalid("Incoming Init")
		}

	case wire.SendRequest:
		switch m.state.Kind {
		case Idle, InboundTransferRequested:
			m.push(Event{Kind: EvInboundTransferOffered, SendRequest: &msg})
			m.state = State{Kind: InboundTransferOffered, sendReq: &msg}
			return nil
		default:
			return m.invalid("Incoming SendRequest")
		}

	case wire.OpenFile:
		if m.state.Kind != InboundTransfer {
			return m.invalid("Incoming OpenFile")
		}
		m.push(Event{Kind: EvInboundFileOpening, SendRequest: m.state.sendReq, OpenFile: &msg})
		m.state = State{Kind: InboundTransfer, sendReq: m.state.sendReq, openReq: &msg}
		return nil

	case wire.Chunk:
		if m.state.Kind != InboundFileTransfer {
			return m.invalid("Incoming Chunk")
		}
		m.push(Event{Kind: EvChunk, Chunk: &msg})
		return nil

	case wire.CloseFile:
		if m.state.Kind != InboundFileTransfer {
			return nil // silently ignored per the late-close tolerance rule
		}
		m.push(Event{Kind: EvFileClosed, FileInfo: m.state.openFile})
		m.state = State{Kind: InboundTransfer, sendReq: m.state.sendReq}
		return nil

	case wire.AcceptTransfer:
		if m.state.Kind != OutboundTransferRequested {
			return m.invalid("Incoming AcceptTransfer")
		}
		m.push(Event{Kind: EvTransferAccepted})
		m.state = State{Kind: OutboundTransfer, sendReq: m.state.sendReq}
		return nil

	case wire.RejectTransfer:
		if m.state.Kind != OutboundTransferRequested {
			return m.invalid("Incoming RejectTransfer")
		}
		m.push(Event{Kind: EvTransferRejected})
		m.state = State{Kind: Idle}
		return nil

	case wire.ReceiveRequest:
		if m.state.Kind != Idle {
			return m.invalid("Incoming ReceiveRequest")
		}
		m.push(Event{Kind: EvOutboundTransferOffered, ReceiveRequest: &msg})
		m.state = State{Kind: Idle}
		return nil

	case wire.FileOpened:
		if m.state.Kind != OutboundTransfer || m.state.openReq == nil {
			return m.invalid("Incoming FileOpened")
		}
		openReq := m.state.openReq
		m.push(Event{Kind: EvFileTransferStarted, OpenFile: openReq, FileOpened: &msg})
		info := openReq.FileInfo
		m.state = State{Kind: OutboundFileTransfer, sendReq: m.state.sendReq, openFile: &info}
		return nil

	case wire.CloseTransfer:
		switch m.state.Kind {
		case InboundTransfer, InboundFileTransfer, OutboundTransfer, OutboundFileTransfer:
			m.push(Event{Kind: EvTransferClosed})
			m.state = State{Kind: Idle}
			return nil
		default:
			return nil // silently ignored
		}

	default:
		return m.invalid("Incoming Unknown")
	}
}
