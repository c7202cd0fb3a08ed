// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wsn

import (
	"io"
	"strings"
)

// DefaultChunkLines is the number of payload lines packed into one chunk.
const DefaultChunkLines = 100

// Chunks splits payload on newlines and joins every n lines into one chunk.
// Line separators are dropped, so the concatenated chunks equal payload with
// every '\n' removed.
func Chunks(payload string, n int) []string {
	if n <= 0 {
		n = DefaultChunkLines
	}
	lines := strings.Split(payload, "\n")
	chunks := make([]string, 0, (len(lines)+n-1)/n)
	for i := 0; i < len(lines); i += n {
		end := min(i+n, len(lines))
		chunks = append(chunks, strings.Join(lines[i:end], ""))
	}
	return chunks
}

// ChunkReader streams the chunks of a payload one Read at a time. It never
// reports a length, so an HTTP client sends it with chunked transfer encoding.
type ChunkReader struct {
	chunks []string
	cur    *strings.Reader
}

// NewChunkReader returns a reader over Chunks(payload, n).
func NewChunkReader(payload string, n int) *ChunkReader {
	return &ChunkReader{chunks: Chunks(payload, n)}
}

func (r *ChunkReader) Read(p []byte) (int, error) {
	for {
		if r.cur != nil && r.cur.Len() > 0 {
			return r.cur.Read(p)
		}
		if len(r.chunks) == 0 {
			return 0, io.EOF
		}
		r.cur = strings.NewReader(r.chunks[0])
		r.chunks = r.chunks[1:]
	}
}
