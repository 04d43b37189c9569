package proto

import "github.com/dselifonov/shift/internal/wire"

// StateKind enumerates the machine's states. Fields on State that aren't
// meaningful for a given Kind are left zero.
type StateKind int

const (
	Initial StateKind = iota
	Connecting
	Idle
	InboundTransferRequested
	InboundTransferOffered
	InboundTransfer
	InboundFileTransfer
	OutboundTransferRequested
	OutboundTransfer
	OutboundFileTransfer
	Disconnected
)

func (k StateKind) String() string {
	names := [...]string{
		"Initial", "Connecting", "Idle",
		"InboundTransferRequested", "InboundTransferOffered", "InboundTransfer", "InboundFileTransfer",
		"OutboundTransferRequested", "OutboundTransfer", "OutboundFileTransfer",
		"Disconnected",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "Unknown"
	}
	return names[k]
}

// State is the machine's current position plus whatever context that
// position carries (the offered/requested SendRequest or ReceiveRequest,
// a pending open-file request, a confirmed open file binding).
type State struct {
	Kind StateKind

	// recvReq is set in InboundTransferRequested: the ReceiveRequest this
	// side sent, describing what it's willing to accept.
	recvReq *wire.ReceiveRequest

	// sendReq is set for every Inbound/Outbound transfer state: the
	// SendRequest describing the root of the transfer in progress,
	// regardless of which side is sending.
	sendReq *wire.SendRequest

	// openReq is the OpenFile request currently awaiting confirmation
	// (Inbound: received from peer, not yet confirmed locally. Outbound:
	// sent to peer, not yet confirmed by peer).
	openReq *wire.OpenFile

	// openFile is the confirmed open file/directory entry, once a
	// FileOpened exchange has completed in either direction.
	openFile *wire.FileInfo
}

func (s State) String() string {
	return s.Kind.String()
}
