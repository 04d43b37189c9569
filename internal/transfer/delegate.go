package transfer

import "github.com/dselifonov/shift/internal/wire"

// Delegate is the orchestrator's user-supplied collaborator. All methods
// are invoked on the Client's event-loop goroutine (never concurrently
// with each other).
type Delegate interface {
	// OnIdle fires when the connection reaches Idle: initially, and after
	// every transfer closes. The delegate decides whether to start a new
	// transfer or disconnect.
	OnIdle(c *Client)

	// OnInboundTransferRequest is asked whether to accept an incoming
	// SendRequest offer.
	OnInboundTransferRequest(req wire.SendRequest) bool

	// OnInboundTransferFile is asked to choose a local destination path
	// for an incoming OpenFile request. Returning ok=false aborts the
	// whole transfer.
	OnInboundTransferFile(open wire.OpenFile) (path string, ok bool)

	// OnOutboundTransferRequest announces that the peer is asking us to
	// send; the delegate typically calls c.Send(...) in response.
	OnOutboundTransferRequest(req wire.ReceiveRequest, c *Client)

	// OnTransferClosed and OnDisconnect are housekeeping hooks.
	OnTransferClosed()
	OnDisconnect()
}
