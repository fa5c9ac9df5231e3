package volcengine

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// Binary frame layout: a 4-byte header, an optional big-endian i32 sequence
// (audio/full-client frames, flags bit 0), an error code on error frames, then
// a big-endian u32 payload length and the payload. JSON payloads from the
// client side are gzip-compressed; audio payloads are raw PCM.
const (
	protocolVersion = 0x1
	headerUnits     = 0x1

	msgFullClient = 0x1
	msgAudioOnly  = 0x2
	msgFullServer = 0x9
	msgError      = 0xF

	flagSequence = 0x1
	flagTerminal = 0x2

	serializationNone = 0x0
	serializationJSON = 0x1

	compressionNone = 0x0
	compressionGzip = 0x1
)

type message struct {
	Type          byte
	Flags         byte
	Serialization byte
	Compression   byte
	Sequence      int32
	ErrorCode     uint32
	Payload       []byte
}

func (m message) hasSequence() bool { return m.Flags&flagSequence != 0 }
func (m message) terminal() bool    { return m.Flags&flagTerminal != 0 }

// encodeMessage serializes a client-side frame. The payload is compressed
// here when the compression field says gzip.
func encodeMessage(m message) ([]byte, error) {
	payload := m.Payload
	if m.Compression == compressionGzip {
		compressed, err := gzipBytes(payload)
		if err != nil {
			return nil, fmt.Errorf("compress payload: %w", err)
		}
		payload = compressed
	}

	var buf bytes.Buffer
	buf.Grow(12 + len(payload))
	buf.WriteByte(protocolVersion<<4 | headerUnits)
	buf.WriteByte(m.Type<<4 | m.Flags)
	buf.WriteByte(m.Serialization<<4 | m.Compression)
	buf.WriteByte(0x00)

	if m.hasSequence() {
		var seq [4]byte
		binary.BigEndian.PutUint32(seq[:], uint32(m.Sequence))
		buf.Write(seq[:])
	}

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(payload)))
	buf.Write(size[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// decodeMessage parses a server frame, decompressing the payload when
// indicated. Malformed frames are protocol defects.
func decodeMessage(frame []byte) (message, error) {
	if len(frame) < 4 {
		return message{}, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	if version := frame[0] >> 4; version != protocolVersion {
		return message{}, fmt.Errorf("unsupported protocol version %d", version)
	}
	headerLen := int(frame[0]&0x0F) * 4
	if headerLen < 4 || len(frame) < headerLen {
		return message{}, fmt.Errorf("invalid header size %d", headerLen)
	}

	m := message{
		Type:          frame[1] >> 4,
		Flags:         frame[1] & 0x0F,
		Serialization: frame[2] >> 4,
		Compression:   frame[2] & 0x0F,
	}
	switch m.Serialization {
	case serializationNone, serializationJSON:
	default:
		return message{}, fmt.Errorf("unsupported serialization method %d", m.Serialization)
	}
	switch m.Compression {
	case compressionNone, compressionGzip:
	default:
		return message{}, fmt.Errorf("unsupported compression method %d", m.Compression)
	}

	rest := frame[headerLen:]
	if m.Type == msgError {
		if len(rest) < 4 {
			return message{}, fmt.Errorf("truncated error code")
		}
		m.ErrorCode = binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
	} else if m.hasSequence() {
		if len(rest) < 4 {
			return message{}, fmt.Errorf("truncated sequence number")
		}
		m.Sequence = int32(binary.BigEndian.Uint32(rest[:4]))
		rest = rest[4:]
	}

	if len(rest) < 4 {
		return message{}, fmt.Errorf("truncated payload size")
	}
	size := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) < size {
		return message{}, fmt.Errorf("truncated payload: want %d bytes, have %d", size, len(rest))
	}
	m.Payload = rest[:size]

	if m.Compression == compressionGzip && len(m.Payload) > 0 {
		payload, err := gunzipBytes(m.Payload)
		if err != nil {
			return message{}, fmt.Errorf("decompress payload: %w", err)
		}
		m.Payload = payload
	}
	return m, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
