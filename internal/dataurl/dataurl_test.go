package dataurl

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantMIME string
		wantErr  error
	}{
		{"png", "data:image/png;base64,iVBORw0KGgo=", "image/png", nil},
		{"jpeg upper case", "DATA:IMAGE/JPEG;BASE64,/9j/4AAQ", "image/jpeg", nil},
		{"with parameter", "data:image/webp;name=scan.webp;base64,UklGRg==", "image/webp", nil},
		{"surrounding space", "  data:image/gif;base64,R0lGOD==  ", "image/gif", nil},
		{"text data url", "data:text/plain;base64,aGk=", "", ErrNotImage},
		{"http url", "https://example.com/a.png", "", ErrNotImage},
		{"empty", "", "", ErrNotImage},
		{"no comma", "data:image/png;base64", "", ErrMalformed},
		{"not base64", "data:image/png,rawbytes", "", ErrMalformed},
		{"empty subtype", "data:image/;base64,AAAA", "", ErrMalformed},
		{"empty payload", "data:image/png;base64,", "", ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Parse(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if img.MIMEType != tt.wantMIME {
				t.Errorf("Expected MIME %s, got %s", tt.wantMIME, img.MIMEType)
			}
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	in := "data:image/png;base64,iVBORw0KGgo="
	img, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if img.String() != in {
		t.Errorf("Expected %s, got %s", in, img.String())
	}
}

func TestDecode(t *testing.T) {
	raw := []byte("hello world!")
	padded := base64.StdEncoding.EncodeToString(raw)
	unpadded := base64.RawStdEncoding.EncodeToString([]byte("hello"))

	for _, payload := range []string{padded, unpadded} {
		if _, err := (Image{MIMEType: "image/png", Payload: payload}).Decode(); err != nil {
			t.Errorf("Decode(%q) failed: %v", payload, err)
		}
	}

	if _, err := (Image{MIMEType: "image/png", Payload: "not*base64"}).Decode(); !errors.Is(err, ErrUndecodable) {
		t.Errorf("Expected ErrUndecodable, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	data := pngBytes(t, 3, 2)
	img, err := Parse(Encode("", data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	info, err := Verify(img)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if info.MIMEType != "image/png" || info.Width != 3 || info.Height != 2 || info.Size != len(data) {
		t.Errorf("Unexpected info %+v", info)
	}

	text := Image{MIMEType: "image/png", Payload: base64.StdEncoding.EncodeToString([]byte("just some text"))}
	if _, err := Verify(text); !errors.Is(err, ErrUndecodable) {
		t.Errorf("Expected ErrUndecodable for text payload, got %v", err)
	}
}

func TestEncode(t *testing.T) {
	data := pngBytes(t, 1, 1)

	if got := Encode("", data); !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("Expected sniffed png prefix, got %s", got[:30])
	}
	if got := Encode("image/jpeg; charset=binary", data); !strings.HasPrefix(got, "data:image/jpeg;base64,") {
		t.Errorf("Expected parameters stripped, got %s", got[:30])
	}
}
