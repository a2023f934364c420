package network

import (
	"bufio"
	"errors"
	"io"
)

const DefaultMaxLineLength = 64 * 1024

// Framer splits a byte stream into newline-terminated lines.
// A trailing line without a terminator at EOF is discarded.
type Framer struct {
	r   *bufio.Reader
	max int
}

func NewFramer(r io.Reader, max int) *Framer {
	if max <= 0 {
		max = DefaultMaxLineLength
	}
	return &Framer{r: bufio.NewReader(r), max: max}
}

// Next returns the next line without its terminator. The returned slice is
// owned by the caller.
func (f *Framer) Next() ([]byte, error) {
	var line []byte
	for {
		chunk, err := f.r.ReadSlice('\n')
		line = append(line, chunk...)

		n := len(line)
		if err == nil {
			n--
		}
		if n > f.max {
			return nil, ErrLineTooLong
		}

		switch {
		case err == nil:
			return line[:n], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, err
		}
	}
}

// NextMessage reads and decodes the next line.
func (f *Framer) NextMessage() (*Message, error) {
	line, err := f.Next()
	if err != nil {
		return nil, err
	}
	return Decode(line)
}
