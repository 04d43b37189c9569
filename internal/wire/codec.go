package wire

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Encode serializes c into one packet payload: a single tag byte followed
// by the message's fields. Variable-length fields (strings, byte slices,
// the feature list) are varint-length-prefixed; fixed-width fields use
// big-endian encoding.
func Encode(c Content) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(c.contentTag())

	switch m := c.(type) {
	case Init:
		writeUint32(buf, m.Version)
		writeUvarint(buf, uint64(len(m.Features)))
		for _, f := range m.Features {
			writeString(buf, f)
		}
	case Disconnect:
	case ReceiveRequest:
		writeBool(buf, m.AllowDirectories)
		writeBool(buf, m.AllowMultiple)
	case SendRequest:
		writeFileInfo(buf, m.FileInfo)
	case AcceptTransfer:
	case RejectTransfer:
	case OpenFile:
		writeFileInfo(buf, m.FileInfo)
	case FileOpened:
		writeUint64(buf, m.ContinueFrom)
	case Chunk:
		writeUint64(buf, m.Offset)
		writeBytes(buf, m.Data)
	case CloseFile:
	case CloseTransfer:
	default:
		return nil
	}
	return buf.Bytes()
}

// Decode parses one packet payload into its typed Content. An unknown tag
// or a malformed/truncated buffer yields (nil, false): the caller drops the
// packet silently, the same policy as malformed base64 at the framing
// layer.
func Decode(data []byte) (Content, bool) {
	if len(data) == 0 {
		return nil, false
	}
	r := bytes.NewReader(data[1:])
	switch data[0] {
	case tagInit:
		version, ok := readUint32(r)
		if !ok {
			return nil, false
		}
		count, ok := readUvarint(r)
		if !ok {
			return nil, false
		}
		features := make([]string, 0, count)
		for i := uint64(0); i < count; i++ {
			s, ok := readString(r)
			if !ok {
				return nil, false
			}
			features = append(features, s)
		}
		return Init{Version: version, Features: features}, true
	case tagDisconnect:
		return Disconnect{}, true
	case tagReceiveRequest:
		allowDirs, ok := readBool(r)
		if !ok {
			return nil, false
		}
		allowMulti, ok := readBool(r)
		if !ok {
			return nil, false
		}
		return ReceiveRequest{AllowDirectories: allowDirs, AllowMultiple: allowMulti}, true
	case tagSendRequest:
		fi, ok := readFileInfo(r)
		if !ok {
			return nil, false
		}
		return SendRequest{FileInfo: fi}, true
	case tagAcceptTransfer:
		return AcceptTransfer{}, true
	case tagRejectTransfer:
		return RejectTransfer{}, true
	case tagOpenFile:
		fi, ok := readFileInfo(r)
		if !ok {
			return nil, false
		}
		return OpenFile{FileInfo: fi}, true
	case tagFileOpened:
		cf, ok := readUint64(r)
		if !ok {
			return nil, false
		}
		return FileOpened{ContinueFrom: cf}, true
	case tagChunk:
		offset, ok := readUint64(r)
		if !ok {
			return nil, false
		}
		data, ok := readBytes(r)
		if !ok {
			return nil, false
		}
		return Chunk{Offset: offset, Data: data}, true
	case tagCloseFile:
		return CloseFile{}, true
	case tagCloseTransfer:
		return CloseTransfer{}, true
	default:
		return nil, false
	}
}

func writeFileInfo(buf *bytes.Buffer, fi FileInfo) {
	writeString(buf, fi.Name)
	writeUint64(buf, fi.Size)
	writeUint32(buf, fi.Mode)
}

func readFileInfo(r *bytes.Reader) (FileInfo, bool) {
	name, ok := readString(r)
	if !ok {
		return FileInfo{}, false
	}
	size, ok := readUint64(r)
	if !ok {
		return FileInfo{}, false
	}
	mode, ok := readUint32(r)
	if !ok {
		return FileInfo{}, false
	}
	return FileInfo{Name: name, Size: size, Mode: mode}, true
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, bool) {
	b, err := r.ReadByte()
	if err != nil {
		return false, false
	}
	return b != 0, true
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	_ = binary.Write(buf, binary.BigEndian, v)
}

func readUint32(r *bytes.Reader) (uint32, bool) {
	var v uint32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, false
	}
	return v, true
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	_ = binary.Write(buf, binary.BigEndian, v)
}

func readUint64(r *bytes.Reader) (uint64, bool) {
	var v uint64
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, false
	}
	return v, true
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r *bytes.Reader) (uint64, bool) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, false
	}
	return v, true
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, bool) {
	n, ok := readUvarint(r)
	if !ok {
		return nil, false
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, false
	}
	return out, true
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func readString(r *bytes.Reader) (string, bool) {
	b, ok := readBytes(r)
	if !ok {
		return "", false
	}
	return string(b), true
}
