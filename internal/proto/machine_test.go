package proto

import (
	"bytes"
	"testing"

	"github.com/dselifonov/shift/internal/wire"
	"github.com/stretchr/testify/require"
)

func newMachine() (*Machine, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(wire.NewWriter(buf)), buf
}

func TestMachine_HandshakeInitiator(t *testing.T) {
	m, _ := newMachine()
	require.NoError(t, m.Start())
	require.Equal(t, Connecting, m.State().Kind)

	require.NoError(t, m.HandleIncoming(wire.Init{Version: 1}))
	require.Equal(t, Idle, m.State().Kind)

	events := m.TakeEvents()
	require.Len(t, events, 1)
	require.Equal(t, EvConnected, events[0].Kind)
}

func TestMachine_HandshakeResponder(t *testing.T) {
	m, buf := newMachine()
	require.NoError(t, m.HandleIncoming(wire.Init{Version: 1}))
	require.Equal(t, Idle, m.State().Kind)
	require.NotZero(t, buf.Len(), "responder must echo Init")

	events := m.TakeEvents()
	require.Len(t, events, 1)
	require.Equal(t, EvConnected, events[0].Kind)
}

func TestMachine_RejectReturnsToIdle(t *testing.T) {
	m, _ := newMachine()
	require.NoError(t, m.HandleIncoming(wire.Init{}))
	m.TakeEvents()

	require.NoError(t, m.HandleIncoming(wire.SendRequest{FileInfo: wire.FileInfo{Name: "a"}}))
	require.Equal(t, InboundTransferOffered, m.State().Kind)

	require.NoError(t, m.RejectTransfer())
	require.Equal(t, Idle, m.State().Kind)

	events := m.TakeEvents()
	require.Len(t, events, 1)
	require.Equal(t, EvInboundTransferOffered, events[0].Kind)
}

func TestMachine_FullInboundFileTransfer(t *testing.T) {
	m, _ := newMachine()
	require.NoError(t, m.HandleIncoming(wire.Init{}))
	m.TakeEvents()

	require.NoError(t, m.HandleIncoming(wire.SendRequest{FileInfo: wire.FileInfo{Name: "root"}}))
	m.TakeEvents()
	require.NoError(t, m.AcceptTransfer())
	require.Equal(t, InboundTransfer, m.State().Kind)

	require.NoError(t, m.HandleIncoming(wire.OpenFile{FileInfo: wire.FileInfo{Name: "a.txt", Size: 3}}))
	require.Equal(t, InboundTransfer, m.State().Kind)
	events := m.TakeEvents()
	require.Len(t, events, 1)
	require.Equal(t, EvInboundFileOpening, events[0].Kind)

	require.NoError(t, m.ConfirmFileOpened(0))
	require.Equal(t, InboundFileTransfer, m.State().Kind)

	require.NoError(t, m.HandleIncoming(wire.Chunk{Offset: 0, Data: []byte("hi\n")}))
	events = m.TakeEvents()
	require.Len(t, events, 1)
	require.Equal(t, EvChunk, events[0].Kind)
	require.Equal(t, uint64(0), events[0].Chunk.Offset)

	require.NoError(t, m.HandleIncoming(wire.CloseFile{}))
	require.Equal(t, InboundTransfer, m.State().Kind)

	require.NoError(t, m.HandleIncoming(wire.CloseTransfer{}))
	require.Equal(t, Idle, m.State().Kind)
}

func TestMachine_FullOutboundFileTransfer(t *testing.T) {
	m, _ := newMachine()
	require.NoError(t, m.HandleIncoming(wire.Init{}))
	m.TakeEvents()

	require.NoError(t, m.RequestOutboundTransfer(wire.SendRequest{FileInfo: wire.FileInfo{Name: "root"}}))
	require.NoError(t, m.HandleIncoming(wire.AcceptTransfer{}))
	require.Equal(t, OutboundTransfer, m.State().Kind)

	require.NoError(t, m.OpenFile(wire.FileInfo{Name: "a.txt", Size: 3}))
	require.NoError(t, m.HandleIncoming(wire.FileOpened{ContinueFrom: 0}))
	require.Equal(t, OutboundFileTransfer, m.State().Kind)

	require.NoError(t, m.SendChunk(wire.Chunk{Offset: 0, Data: []byte("hi\n")}))
	require.NoError(t, m.CloseFile())
	require.Equal(t, OutboundTransfer, m.State().Kind)

	require.NoError(t, m.CloseTransfer())
	require.Equal(t, Idle, m.State().Kind)
}

func TestMachine_LateCloseMessagesAreIgnored(t *testing.T) {
	m, _ := newMachine()
	require.NoError(t, m.HandleIncoming(wire.Init{}))
	m.TakeEvents()

	require.NoError(t, m.HandleIncoming(wire.CloseFile{}))
	require.Equal(t, Idle, m.State().Kind)
	require.NoError(t, m.HandleIncoming(wire.CloseTransfer{}))
	require.Equal(t, Idle, m.State().Kind)
	require.Empty(t, m.TakeEvents())
}

func TestMachine_InvalidTransitionErrors(t *testing.T) {
	m, _ := newMachine()
	err := m.AcceptTransfer()
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, InvalidTransition, perr.Kind)
}

func TestMachine_NoTransitionOutOfDisconnected(t *testing.T) {
	m, _ := newMachine()
	require.NoError(t, m.Disconnect())
	require.Equal(t, Disconnected, m.State().Kind)

	require.NoError(t, m.Disconnect())
	require.Equal(t, Disconnected, m.State().Kind)

	require.Error(t, m.Start())
	require.Equal(t, Disconnected, m.State().Kind)
}

func TestMachine_Determinism(t *testing.T) {
	script := func(m *Machine) {
		_ = m.HandleIncoming(wire.Init{})
		m.TakeEvents()
		_ = m.HandleIncoming(wire.SendRequest{FileInfo: wire.FileInfo{Name: "root"}})
		m.TakeEvents()
		_ = m.AcceptTransfer()
		_ = m.HandleIncoming(wire.OpenFile{FileInfo: wire.FileInfo{Name: "a", Size: 1}})
		m.TakeEvents()
		_ = m.ConfirmFileOpened(0)
	}

	m1, buf1 := newMachine()
	m2, buf2 := newMachine()
	script(m1)
	script(m2)

	require.Equal(t, m1.State(), m2.State())
	require.Equal(t, buf1.Bytes(), buf2.Bytes())
}

func TestMachine_MutualExclusionOfFileTransferStates(t *testing.T) {
	m, _ := newMachine()
	require.NoError(t, m.HandleIncoming(wire.Init{}))
	m.TakeEvents()
	require.NoError(t, m.HandleIncoming(wire.SendRequest{FileInfo: wire.FileInfo{Name: "root"}}))
	m.TakeEvents()
	require.NoError(t, m.AcceptTransfer())
	require.NoError(t, m.HandleIncoming(wire.OpenFile{FileInfo: wire.FileInfo{Name: "a", Size: 1}}))
	m.TakeEvents()
	require.NoError(t, m.ConfirmFileOpened(0))

	st := m.State().Kind
	require.True(t, st == InboundFileTransfer || st != OutboundFileTransfer)
	require.False(t, st == InboundFileTransfer && st == OutboundFileTransfer)
}
