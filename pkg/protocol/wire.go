// Package protocol implements the Casino Blackjack Protocol wire codec and
// the protocol state machine shared by the server and the client.
//
// Every multi-byte integer is big-endian. Short ASCII fields end in a single
// newline; multiline blocks end in a blank line (double newline).
package protocol

import (
	"bufio"
	"encoding/binary"
	"io"
)

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}

func readUint16(r *bufio.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func readUint32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// readLine consumes bytes through the next newline and returns them without
// the terminator. Fields longer than max are consumed in full (so the stream
// stays framed) but reported as ErrFieldTooLong.
func readLine(r *bufio.Reader, max int) (string, error) {
	line := make([]byte, 0, 32)
	tooLong := false
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if c == '\n' {
			break
		}
		if len(line) == max {
			tooLong = true
			continue
		}
		line = append(line, c)
	}
	if tooLong {
		return "", ErrFieldTooLong
	}
	return string(line), nil
}

// readBlock consumes bytes through the next blank line and returns everything
// before it, with each content line keeping its newline. A bare blank line
// yields the empty string.
func readBlock(r *bufio.Reader, max int) (string, error) {
	block := make([]byte, 0, 128)
	tooLong := false
	// The block begins at a line start, so a leading '\n' is the blank
	// line that ends an empty block.
	sawNewline := true
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if c == '\n' && sawNewline {
			break
		}
		sawNewline = c == '\n'
		if len(block) == max {
			tooLong = true
			continue
		}
		block = append(block, c)
	}
	if tooLong {
		return "", ErrFieldTooLong
	}
	return string(block), nil
}
