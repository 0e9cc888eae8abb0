// Package feed implements the broker's binary websocket market feed: the
// frame codec, the auth/subscribe handshake and the reconnecting tick
// stream behind the ports.TickStream contract.
package feed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Wire format: each frame is a 2-byte big-endian length followed by a
// 1-byte message type and the payload. The length counts the type byte
// plus the payload. Tick frames (type 6) carry the LTP as a 4-byte
// big-endian float at payload offset 0, optionally followed by the
// instrument token as raw bytes.
const (
	MsgAuth      byte = 1
	MsgSubscribe byte = 2
	MsgHeartbeat byte = 3
	MsgTick      byte = 6

	frameLenBytes = 2
	maxFrameLen   = math.MaxUint16
)

var (
	errShortFrame   = errors.New("frame shorter than declared length")
	errEmptyFrame   = errors.New("frame declares zero length")
	errShortTick    = errors.New("tick payload shorter than 4 bytes")
	errFrameTooBig  = errors.New("frame payload exceeds 16-bit length field")
	errTrailingData = errors.New("trailing bytes after last frame")
)

// Frame is one decoded message off the wire.
type Frame struct {
	Type    byte
	Payload []byte
}

// EncodeFrame serializes one frame.
func EncodeFrame(typ byte, payload []byte) ([]byte, error) {
	if len(payload)+1 > maxFrameLen {
		return nil, errFrameTooBig
	}
	buf := make([]byte, frameLenBytes+1+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(1+len(payload)))
	buf[2] = typ
	copy(buf[3:], payload)
	return buf, nil
}

// DecodeFrame reads one frame from the front of buf and returns it with
// the number of bytes consumed.
func DecodeFrame(buf []byte) (Frame, int, error) {
	if len(buf) < frameLenBytes {
		return Frame{}, 0, fmt.Errorf("%w: %d bytes", errShortFrame, len(buf))
	}
	declared := int(binary.BigEndian.Uint16(buf[0:2]))
	if declared == 0 {
		return Frame{}, 0, errEmptyFrame
	}
	total := frameLenBytes + declared
	if len(buf) < total {
		return Frame{}, 0, fmt.Errorf("%w: declared %d, have %d", errShortFrame, declared, len(buf)-frameLenBytes)
	}
	return Frame{Type: buf[2], Payload: buf[3:total]}, total, nil
}

// DecodeAll splits a websocket message into its frames. The broker
// batches multiple frames into one message under load.
func DecodeAll(buf []byte) ([]Frame, error) {
	var frames []Frame
	for len(buf) > 0 {
		if len(buf) < frameLenBytes {
			return frames, errTrailingData
		}
		frame, n, err := DecodeFrame(buf)
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
		buf = buf[n:]
	}
	return frames, nil
}

// EncodeTick builds a tick frame for the given price and token. Used by
// tests and the feed simulator.
func EncodeTick(ltp float64, token string) ([]byte, error) {
	payload := make([]byte, 4+len(token))
	binary.BigEndian.PutUint32(payload[0:4], math.Float32bits(float32(ltp)))
	copy(payload[4:], token)
	return EncodeFrame(MsgTick, payload)
}

// TickLTP extracts the last traded price from a tick payload.
func TickLTP(payload []byte) (float64, error) {
	if len(payload) < 4 {
		return 0, fmt.Errorf("%w: %d bytes", errShortTick, len(payload))
	}
	bits := binary.BigEndian.Uint32(payload[0:4])
	return float64(math.Float32frombits(bits)), nil
}

// TickToken extracts the instrument token from a tick payload, empty when
// the broker omitted it.
func TickToken(payload []byte) string {
	if len(payload) <= 4 {
		return ""
	}
	return string(payload[4:])
}
