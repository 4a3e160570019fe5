package dataurl

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

const (
	scheme      = "data:"
	imagePrefix = "data:image/"
	base64Tag   = ";base64"
)

var (
	// ErrNotImage is returned for values that are not data:image/ URLs
	ErrNotImage = errors.New("not an image data URL")
	// ErrMalformed is returned when the data URL has no base64 payload
	ErrMalformed = errors.New("malformed data URL")
	// ErrUndecodable is returned when the payload is not valid base64 image bytes
	ErrUndecodable = errors.New("image payload could not be decoded")
)

// Image is a parsed data:image/<subtype>;base64,<payload> URL
type Image struct {
	MIMEType string
	Payload  string
}

// Info describes a decoded image payload
type Info struct {
	MIMEType string
	Size     int
	Width    int
	Height   int
}

// Parse validates s as an image data URL. Only the prefix and the
// ";base64," separator are checked; use Verify to inspect the payload.
func Parse(s string) (Image, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(strings.ToLower(s), imagePrefix) {
		return Image{}, ErrNotImage
	}

	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return Image{}, fmt.Errorf("%w: missing payload separator", ErrMalformed)
	}

	meta := s[len(scheme):comma]
	if !strings.HasSuffix(strings.ToLower(meta), base64Tag) {
		return Image{}, fmt.Errorf("%w: payload is not base64 encoded", ErrMalformed)
	}
	mime := strings.ToLower(meta[:len(meta)-len(base64Tag)])
	// Drop parameters such as ";name=scan.png"
	if semi := strings.IndexByte(mime, ';'); semi >= 0 {
		mime = mime[:semi]
	}
	if mime == "image/" {
		return Image{}, fmt.Errorf("%w: empty image subtype", ErrMalformed)
	}

	payload := s[comma+1:]
	if payload == "" {
		return Image{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	return Image{MIMEType: mime, Payload: payload}, nil
}

// String re-encodes the image as a data URL
func (i Image) String() string {
	return scheme + i.MIMEType + base64Tag + "," + i.Payload
}

// Decode returns the raw image bytes
func (i Image) Decode() ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(i.Payload); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(i.Payload, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return b, nil
}

// Verify decodes the payload and checks that its bytes are an image.
// Dimensions are reported when the format is one the standard decoders
// (plus webp) understand, and left at zero otherwise.
func Verify(i Image) (Info, error) {
	data, err := i.Decode()
	if err != nil {
		return Info{}, err
	}

	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return Info{}, fmt.Errorf("%w: payload is %s", ErrUndecodable, detected.String())
	}

	info := Info{MIMEType: detected.String(), Size: len(data)}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		info.Width = cfg.Width
		info.Height = cfg.Height
	}
	return info, nil
}

// Encode builds a data URL from raw bytes. The MIME type is sniffed when
// mime is empty.
func Encode(mime string, data []byte) string {
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	if semi := strings.IndexByte(mime, ';'); semi >= 0 {
		mime = mime[:semi]
	}
	return scheme + mime + base64Tag + "," + base64.StdEncoding.EncodeToString(data)
}
