// Package dataencryption wraps encrypted message text in a self-describing
// envelope and routes decryption to the provider that wrote it.
//
// Wire format:
//
//	[4 bytes: 0x43 0x53 0x45 0x48]  "CSEH" magic
//	[BSON document {v, p, n}]        version, provider ID, nonce
//	[ciphertext bytes]
package dataencryption

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var magic = [4]byte{0x43, 0x53, 0x45, 0x48} // "CSEH"

// maxHeaderLen bounds the BSON header a reader will allocate for.
const maxHeaderLen = 4096

// Header is the decoded envelope header.
type Header struct {
	Version    uint32 `bson:"v"`
	ProviderID string `bson:"p"`
	Nonce      []byte `bson:"n"`
}

// HasMagic reports whether b starts with the envelope magic bytes.
func HasMagic(b []byte) bool {
	return len(b) >= 4 &&
		b[0] == magic[0] && b[1] == magic[1] && b[2] == magic[2] && b[3] == magic[3]
}

// WriteHeader encodes h as an envelope prefix and writes it to w.
func WriteHeader(w io.Writer, h Header) error {
	doc, err := bson.Marshal(h)
	if err != nil {
		return fmt.Errorf("envelope: encoding header: %w", err)
	}
	buf := make([]byte, 0, len(magic)+len(doc))
	buf = append(buf, magic[:]...)
	buf = append(buf, doc...)
	_, err = w.Write(buf)
	return err
}

// ReadHeader reads the magic and BSON header from r.
// Returns (header, true, nil) on success, (nil, false, nil) if magic is absent,
// or (nil, true, err) when the magic is present but the header is unreadable.
func ReadHeader(r io.Reader) (*Header, bool, error) {
	var mgc [4]byte
	if _, err := io.ReadFull(r, mgc[:]); err != nil {
		return nil, false, nil
	}
	if mgc != magic {
		return nil, false, nil
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, true, fmt.Errorf("envelope: reading header length: %w", err)
	}
	docLen := binary.LittleEndian.Uint32(lenBuf[:])
	if docLen < 5 || docLen > maxHeaderLen {
		return nil, true, fmt.Errorf("envelope: header length %d out of range", docLen)
	}
	doc := make([]byte, docLen)
	copy(doc, lenBuf[:])
	if _, err := io.ReadFull(r, doc[4:]); err != nil {
		return nil, true, fmt.Errorf("envelope: reading header: %w", err)
	}
	var h Header
	if err := bson.Unmarshal(doc, &h); err != nil {
		return nil, true, fmt.Errorf("envelope: decoding header: %w", err)
	}
	return &h, true, nil
}

// Seal writes the header for providerID and nonce followed by ciphertext.
func Seal(providerID string, nonce, ciphertext []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteHeader(&buf, Header{Version: 1, ProviderID: providerID, Nonce: nonce}); err != nil {
		return nil, err
	}
	buf.Write(ciphertext)
	return buf.Bytes(), nil
}

// Open parses an envelope and returns its header and the ciphertext payload.
func Open(data []byte) (*Header, []byte, error) {
	r := bytes.NewReader(data)
	h, ok, err := ReadHeader(r)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("envelope: missing header")
	}
	return h, data[len(data)-r.Len():], nil
}
