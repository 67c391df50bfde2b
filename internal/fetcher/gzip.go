package fetcher

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/rotisserie/eris"
)

// Gunzip decompresses a gzip payload. Concatenated gzip members are read as
// one stream.
func Gunzip(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, eris.New("gunzip: empty input")
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "gunzip: read header")
	}
	defer zr.Close() //nolint:errcheck

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, eris.Wrap(err, "gunzip: read body")
	}
	return out, nil
}
