package events

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/fioncat/csync/pkg/secret"
)

const (
	// readBufferSize is the buffered-reader size for the framed stream.
	// Frames larger than this are assembled across multiple fills.
	readBufferSize = 32 * 1024

	// maxFrameSize caps a single frame payload. The largest legitimate
	// frame is an event carrying blob metadata, far below this; anything
	// bigger is a corrupt or hostile peer.
	maxFrameSize = 64 * 1024 * 1024
)

// Conn wraps a net.Conn with length-prefixed framing and optional
// AES-256-GCM payload encryption.
//
// A frame on the wire is a u64 big-endian payload length followed by
// that many payload bytes. Once a cipher is attached, the payload is
// nonce-prefixed ciphertext and the length covers the sealed form.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	cipher *secret.Cipher
}

// NewConn wraps conn for framed I/O.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, readBufferSize),
	}
}

// AttachCipher switches the connection to encrypted framing. Frames
// written or read before the attach are plaintext; everything after is
// sealed with cipher.
func (c *Conn) AttachCipher(cipher *secret.Cipher) {
	c.cipher = cipher
}

// WriteFrame writes one frame.
func (c *Conn) WriteFrame(payload []byte) error {
	if c.cipher != nil {
		sealed, err := c.cipher.Encrypt(payload)
		if err != nil {
			return err
		}
		payload = sealed
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(payload))
	}

	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(buf[:8], uint64(len(payload)))
	copy(buf[8:], payload)
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame, decrypting it when a cipher is attached.
func (c *Conn) ReadFrame() ([]byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(c.reader, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint64(header[:])
	if length > maxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.reader, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	if c.cipher != nil {
		return c.cipher.Decrypt(payload)
	}
	return payload, nil
}

// SetReadDeadline bounds the next read.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
