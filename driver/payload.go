// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/absmach/bullrider/config"
	"github.com/klauspost/compress/gzip"
)

// Base64 line width used by MIME encoders.
const lineWidth = 76

var words = []string{"why", "are", "snakes", "people", "from", "orderly", "beer", "goose", "travel"}

// LoadLargeData returns the filler carried by a large notify. A configured asset
// is read in full, gunzipped when its name ends in ".gz". Without an asset,
// SynthesizeBytes of wrapped base64 is generated.
func LoadLargeData(cfg config.LargeConfig) (string, error) {
	if cfg.AssetFile == "" {
		return synthesize(cfg.SynthesizeBytes), nil
	}

	f, err := os.Open(cfg.AssetFile)
	if err != nil {
		return "", fmt.Errorf("failed to open large payload asset: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(cfg.AssetFile, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("failed to open gzip asset %s: %w", cfg.AssetFile, err)
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read large payload asset: %w", err)
	}
	return string(data), nil
}

// synthesize returns exactly size base64 characters before line wrapping. A
// size that is not a multiple of 4 ends in a partial quantum.
func synthesize(size int) string {
	if size <= 0 {
		return ""
	}
	raw := make([]byte, (size+3)/4*3)
	for i := range raw {
		raw[i] = byte(i)
	}
	enc := base64.StdEncoding.EncodeToString(raw)[:size]

	var b strings.Builder
	b.Grow(len(enc) + len(enc)/lineWidth + 1)
	for len(enc) > lineWidth {
		b.WriteString(enc[:lineWidth])
		b.WriteByte('\n')
		enc = enc[lineWidth:]
	}
	b.WriteString(enc)
	return b.String()
}
