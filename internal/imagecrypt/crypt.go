// Package imagecrypt fetches AES-GCM encrypted avatar blobs, decrypts them
// and hands the plaintext out through revocable object references.
package imagecrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/starford/evolve/internal/apperr"
)

// Blob framing.
const (
	IVSize  = 12
	TagSize = 16

	minPayload = IVSize + TagSize
)

// Layout is the order of IV, ciphertext and tag inside a blob.
type Layout string

// Known layouts, in the order they are tried.
const (
	LayoutIVCipherTag Layout = "iv|cipher|tag"
	LayoutIVTagCipher Layout = "iv|tag|cipher"
)

// DecodeKey decodes a hex AES key and checks it is 16, 24 or 32 bytes long.
func DecodeKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidKey, err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, fmt.Errorf("%w: key must be 16, 24 or 32 bytes, got %d", apperr.ErrInvalidKey, len(key))
}

// Open decrypts payload, first as iv|cipher|tag and, only if that fails
// authentication, as iv|tag|cipher. It reports which layout succeeded.
func Open(payload, key []byte) ([]byte, Layout, error) {
	if len(payload) < minPayload {
		return nil, "", fmt.Errorf("%w: %d bytes, need at least %d", apperr.ErrMalformedPayload, len(payload), minPayload)
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, "", err
	}
	for _, layout := range []Layout{LayoutIVCipherTag, LayoutIVTagCipher} {
		plain, err := openLayout(aead, payload, layout)
		if err == nil {
			return plain, layout, nil
		}
	}
	return nil, "", fmt.Errorf("%w: authentication failed for both layouts", apperr.ErrDecryption)
}

// Seal encrypts plain with a random IV and returns iv|cipher|tag.
func Seal(plain, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("imagecrypt: read iv: %w", err)
	}
	return aead.Seal(iv, iv, plain, nil), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("imagecrypt: gcm: %w", err)
	}
	return aead, nil
}

// openLayout rearranges payload into the ciphertext||tag form crypto/cipher
// expects and opens it.
func openLayout(aead cipher.AEAD, payload []byte, layout Layout) ([]byte, error) {
	iv := payload[:IVSize]
	var sealed []byte
	switch layout {
	case LayoutIVCipherTag:
		sealed = payload[IVSize:]
	case LayoutIVTagCipher:
		tag := payload[IVSize:minPayload]
		ct := payload[minPayload:]
		sealed = make([]byte, 0, len(ct)+TagSize)
		sealed = append(sealed, ct...)
		sealed = append(sealed, tag...)
	default:
		return nil, fmt.Errorf("imagecrypt: unknown layout %q", layout)
	}
	return aead.Open(nil, iv, sealed, nil)
}

// Image MIME types recognised by DetectMIME.
const (
	MIMEPNG     = "image/png"
	MIMEJPEG    = "image/jpeg"
	MIMEUnknown = "application/octet-stream"
)

// DetectMIME classifies plaintext by its leading signature bytes.
func DetectMIME(b []byte) string {
	switch {
	case len(b) >= 4 && b[0] == 0x89 && b[1] == 0x50 && b[2] == 0x4E && b[3] == 0x47:
		return MIMEPNG
	case len(b) >= 3 && b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return MIMEJPEG
	}
	return MIMEUnknown
}
