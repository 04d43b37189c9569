package transfer

import (
	"io"
	"os"

	"github.com/dselifonov/shift/internal/proto"
	"github.com/dselifonov/shift/internal/wire"
)

// sendFile streams path through machine starting at startOffset, in
// bufferSize chunks, calling onProgress after every chunk with the new
// position and the file's total size. The sender makes no assumption
// about write backpressure beyond the synchronous write inside the
// machine.
func sendFile(m *proto.Machine, startOffset uint64, path string, bufferSize int, onProgress func(position, total uint64)) error {
	f, err := os.Open(path)
	if err != nil {
		return &proto.Error{Kind: proto.FilesystemIO, Err: err}
	}
	defer f.Close()

	total, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return &proto.Error{Kind: proto.FilesystemIO, Err: err}
	}
	if _, err := f.Seek(int64(startOffset), io.SeekStart); err != nil {
		return &proto.Error{Kind: proto.FilesystemIO, Err: err}
	}

	position := startOffset
	buf := make([]byte, bufferSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if err := m.SendChunk(wire.Chunk{Offset: position, Data: data}); err != nil {
				return &proto.Error{Kind: proto.CarrierIO, Err: err}
			}
			position += uint64(n)
			if onProgress != nil {
				onProgress(position, uint64(total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &proto.Error{Kind: proto.FilesystemIO, Err: readErr}
		}
	}
	return m.CloseFile()
}
