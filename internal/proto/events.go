package proto

import "github.com/dselifonov/shift/internal/wire"

// EventKind discriminates the observable events the machine pushes to the
// orchestrator's event queue.
type EventKind int

const (
	EvConnected EventKind = iota
	EvDisconnected
	EvInboundTransferOffered
	EvInboundFileOpening
	EvChunk
	EvFileClosed
	EvTransferAccepted
	EvTransferRejected
	EvOutboundTransferOffered
	EvFileTransferStarted
	EvTransferClosed
)

func (k EventKind) String() string {
	names := [...]string{
		"Connected", "Disconnected", "InboundTransferOffered", "InboundFileOpening",
		"Chunk", "FileClosed", "TransferAccepted", "TransferRejected",
		"OutboundTransferOffered", "FileTransferStarted", "TransferClosed",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "Unknown"
	}
	return names[k]
}

// Event carries whichever payload its Kind implies; only the relevant
// field is populated.
type Event struct {
	Kind EventKind

	SendRequest    *wire.SendRequest    // InboundTransferOffered, InboundFileOpening (s)
	ReceiveRequest *wire.ReceiveRequest // OutboundTransferOffered
	OpenFile       *wire.OpenFile       // InboundFileOpening, FileTransferStarted (the open request)
	FileOpened     *wire.FileOpened     // FileTransferStarted (the peer's confirmation)
	Chunk          *wire.Chunk          // Chunk
	FileInfo       *wire.FileInfo       // FileClosed (the file/dir that was open)
}
