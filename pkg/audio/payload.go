package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPayload is returned by Decode when the input is neither valid
// base64 nor a base64 data URI.
var ErrInvalidPayload = errors.New("audio: invalid payload")

// EncodeBase64 returns the standard base64 encoding of data.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DataURI wraps data in a "data:<mime>;base64,..." URI.
func DataURI(data []byte, mime string) string {
	return "data:" + mime + ";base64," + EncodeBase64(data)
}

// Decode accepts either a raw base64 string or a complete data URI and returns
// the decoded bytes together with the MIME type (empty for raw base64).
// Empty input, non-base64 data URIs, and undecodable text wrap ErrInvalidPayload.
func Decode(src string) ([]byte, string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, "", fmt.Errorf("%w: empty", ErrInvalidPayload)
	}

	var mime string
	if rest, ok := strings.CutPrefix(src, "data:"); ok {
		meta, body, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("%w: data URI has no payload", ErrInvalidPayload)
		}
		params := strings.Split(meta, ";")
		if params[len(params)-1] != "base64" {
			return nil, "", fmt.Errorf("%w: data URI is not base64", ErrInvalidPayload)
		}
		mime = params[0]
		src = body
	}

	data, err := base64.StdEncoding.DecodeString(src)
	if err != nil {
		// Some encoders drop the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(src, "="))
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty", ErrInvalidPayload)
	}
	return data, mime, nil
}
