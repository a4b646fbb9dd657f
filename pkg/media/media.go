// Package media turns binary assets into self-describing inline references
// that can be embedded into prompts or carried across a request boundary.
//
// A reference is rendered as a data URI:
//
//	data:<mime type>;base64,<payload>
package media

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const (
	scheme         = "data:"
	encodingMarker = ";base64"
)

// ErrMalformedReference is returned when a string is not a well-formed media reference.
var ErrMalformedReference = errors.New("malformed media reference")

// UnsupportedError is returned when a declared MIME type is empty or malformed.
type UnsupportedError struct {
	MIMEType string
	Reason   string
}

func (e *UnsupportedError) Error() string {
	if e.MIMEType == "" {
		return "unsupported media: empty MIME type"
	}

	return fmt.Sprintf("unsupported media %q: %s", e.MIMEType, e.Reason)
}

// Reference is an immutable MIME type plus payload pair.
type Reference struct {
	mimeType string
	data     []byte
}

// Encode builds a Reference for data declared as mimeType. The bytes are not
// inspected; only the MIME type is checked.
func Encode(data []byte, mimeType string) (Reference, error) {
	if err := checkMIMEType(mimeType); err != nil {
		return Reference{}, err
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	return Reference{mimeType: mimeType, data: buf}, nil
}

// EncodeFile reads path and encodes it. An empty mimeType is derived from
// the file extension.
func EncodeFile(path, mimeType string) (Reference, error) {
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	}
	if err := checkMIMEType(mimeType); err != nil {
		return Reference{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Reference{}, fmt.Errorf("reading media file: %w", err)
	}

	return Reference{mimeType: mimeType, data: data}, nil
}

// Parse reads a reference from its string form.
func Parse(s string) (Reference, error) {
	if !strings.HasPrefix(s, scheme) {
		return Reference{}, fmt.Errorf("%w: missing %q scheme", ErrMalformedReference, scheme)
	}

	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return Reference{}, fmt.Errorf("%w: missing payload separator", ErrMalformedReference)
	}

	header := s[len(scheme):comma]
	if !strings.HasSuffix(header, encodingMarker) {
		return Reference{}, fmt.Errorf("%w: only base64 payloads are supported", ErrMalformedReference)
	}

	mimeType := strings.TrimSuffix(header, encodingMarker)
	if err := checkMIMEType(mimeType); err != nil {
		return Reference{}, fmt.Errorf("%w: %w", ErrMalformedReference, err)
	}

	data, err := base64.StdEncoding.DecodeString(s[comma+1:])
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %w", ErrMalformedReference, err)
	}

	return Reference{mimeType: mimeType, data: data}, nil
}

// Decode returns the bytes and MIME type carried by a reference string.
func Decode(s string) ([]byte, string, error) {
	ref, err := Parse(s)
	if err != nil {
		return nil, "", err
	}

	return ref.Data(), ref.MIMEType(), nil
}

// MIMEType returns the declared MIME type, parameters included.
func (r Reference) MIMEType() string { return r.mimeType }

// MediaType returns the MIME type without parameters, lower-cased.
func (r Reference) MediaType() string {
	mt, _, err := mime.ParseMediaType(r.mimeType)
	if err != nil {
		return strings.ToLower(r.mimeType)
	}

	return mt
}

// Data returns a copy of the payload.
func (r Reference) Data() []byte {
	buf := make([]byte, len(r.data))
	copy(buf, r.data)
	return buf
}

// Size is the payload length in bytes.
func (r Reference) Size() int { return len(r.data) }

// IsZero reports whether r was never encoded.
func (r Reference) IsZero() bool { return r.mimeType == "" }

// Base64 returns the encoded payload without the data URI header.
func (r Reference) Base64() string {
	return base64.StdEncoding.EncodeToString(r.data)
}

// String renders the data URI form.
func (r Reference) String() string {
	return scheme + r.mimeType + encodingMarker + "," + r.Base64()
}

// Digest is the hex SHA-256 of the payload.
func (r Reference) Digest() string {
	h := sha256.Sum256(r.data)
	return hex.EncodeToString(h[:])
}

// IsImage reports whether the reference carries an image.
func (r Reference) IsImage() bool { return strings.HasPrefix(r.MediaType(), "image/") }

// IsAudio reports whether the reference carries audio.
func (r Reference) IsAudio() bool { return strings.HasPrefix(r.MediaType(), "audio/") }

// IsPDF reports whether the reference carries a PDF document.
func (r Reference) IsPDF() bool { return r.MediaType() == "application/pdf" }

// MarshalJSON writes the data URI, or null for a zero Reference.
func (r Reference) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte("null"), nil
	}

	return json.Marshal(r.String())
}

func (r *Reference) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = Reference{}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	ref, err := Parse(s)
	if err != nil {
		return err
	}

	*r = ref
	return nil
}

func checkMIMEType(mimeType string) error {
	if strings.TrimSpace(mimeType) == "" {
		return &UnsupportedError{}
	}
	if strings.ContainsAny(mimeType, ",\r\n") {
		return &UnsupportedError{MIMEType: mimeType, Reason: "contains a separator or line break"}
	}

	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return &UnsupportedError{MIMEType: mimeType, Reason: err.Error()}
	}

	typ, sub, ok := strings.Cut(mt, "/")
	if !ok || typ == "" || sub == "" {
		return &UnsupportedError{MIMEType: mimeType, Reason: "expected type/subtype"}
	}

	return nil
}
