package webhooks

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

const DefaultMaxDecodedBytes int64 = 256 << 20

const (
	EncodingIdentity = "identity"
	EncodingGzip     = "gzip"
	EncodingDeflate  = "deflate"
	EncodingZstd     = "zstd"
)

// Decoder undoes the Content-Encoding of a delivery body. The decoded size is
// capped so a small compressed body cannot expand without bound.
type Decoder struct {
	MaxDecodedBytes int64
}

func NewDecoder(maxDecodedBytes int64) *Decoder {
	return &Decoder{MaxDecodedBytes: maxDecodedBytes}
}

// Decode applies the codings listed in encoding in reverse order, as they
// were applied by the sender.
func (d *Decoder) Decode(encoding string, body []byte) ([]byte, error) {
	codings := parseEncodings(encoding)
	out := body
	for i := len(codings) - 1; i >= 0; i-- {
		decoded, err := d.decodeOne(codings[i], out)
		if err != nil {
			return nil, err
		}
		out = decoded
	}
	if int64(len(out)) > d.limit() {
		return nil, core.NewPayloadTooLargeError(d.limit())
	}
	return out, nil
}

func (d *Decoder) decodeOne(coding string, body []byte) ([]byte, error) {
	switch coding {
	case EncodingIdentity:
		return body, nil
	case EncodingGzip, "x-gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, core.NewPayloadError("corrupt gzip stream", err)
		}
		defer reader.Close()
		return d.readAll(coding, reader)
	case EncodingDeflate:
		// HTTP deflate is zlib framed, but raw deflate streams are common.
		if reader, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			decoded, readErr := d.readAll(coding, reader)
			_ = reader.Close()
			if readErr == nil || isTooLarge(readErr) {
				return decoded, readErr
			}
		}
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return d.readAll(coding, reader)
	case EncodingZstd:
		reader, err := zstd.NewReader(
			bytes.NewReader(body),
			zstd.WithDecoderMaxMemory(uint64(d.limit())+1),
			zstd.WithDecoderConcurrency(1),
		)
		if err != nil {
			return nil, core.NewPayloadError("corrupt zstd stream", err)
		}
		defer reader.Close()
		return d.readAll(coding, reader)
	default:
		return nil, core.NewUnsupportedEncodingError(coding)
	}
}

func (d *Decoder) readAll(coding string, reader io.Reader) ([]byte, error) {
	limit := d.limit()
	decoded, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return nil, core.NewPayloadTooLargeError(limit)
		}
		return nil, core.NewPayloadError(fmt.Sprintf("corrupt %s stream", coding), err)
	}
	if int64(len(decoded)) > limit {
		return nil, core.NewPayloadTooLargeError(limit)
	}
	return decoded, nil
}

func isTooLarge(err error) bool {
	mapped := core.MapError(err)
	return mapped != nil && mapped.TextCode == core.ErrorPayloadTooLarge
}

func (d *Decoder) limit() int64 {
	if d != nil && d.MaxDecodedBytes > 0 {
		return d.MaxDecodedBytes
	}
	return DefaultMaxDecodedBytes
}

func parseEncodings(encoding string) []string {
	var out []string
	for _, part := range strings.Split(encoding, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || part == EncodingIdentity {
			continue
		}
		out = append(out, part)
	}
	return out
}
