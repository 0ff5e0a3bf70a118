// Package compression provides the codecs used for opaque object payloads
// stored in ntuple containers. The algorithm name is recorded as the codec of
// each manifest key, so a payload can always be decoded by name.
//
// # Algorithm Selection
//
//   - Snappy/S2: fastest, moderate ratio
//   - LZ4: very fast, decent ratio
//   - Zstd: best ratio, good speed
//   - Gzip: widest compatibility
//
// Every Compressor is safe for concurrent use.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None stores payloads as they are.
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{None, Gzip, Snappy, S2, LZ4, Zstd}

// ParseAlgorithm resolves an algorithm name case-insensitively. Empty means
// None.
func ParseAlgorithm(s string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(s)))
	if a == "" {
		return None, nil
	}
	for _, known := range Algorithms {
		if a == known {
			return a, nil
		}
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unsupported compression algorithm %q", s)
}

// Level represents compression level.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

func (l Level) String() string {
	switch l {
	case Fastest:
		return "fastest"
	case Default:
		return "default"
	case Better:
		return "better"
	case Best:
		return "best"
	}
	return fmt.Sprintf("level-%d", int(l))
}

// Compressor compresses and decompresses whole payloads.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() Algorithm
	Level() Level
}

// Config represents compressor configuration.
type Config struct {
	Algorithm Algorithm
	Level     Level
}

// DefaultConfig returns the default configuration: zstd at default level.
func DefaultConfig() *Config {
	return &Config{Algorithm: Zstd, Level: Default}
}

// NewCompressor creates a new compressor. A nil config means DefaultConfig;
// a zero level means Default.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	alg, err := ParseAlgorithm(string(config.Algorithm))
	if err != nil {
		return nil, err
	}
	level := config.Level
	if level == 0 {
		level = Default
	}

	c := &codec{algorithm: alg, level: level}
	switch alg {
	case None:
		c.enc, c.dec = copyBytes, copyBytes
	case Gzip:
		c.enc = func(data []byte) ([]byte, error) { return gzipEncode(data, level) }
		c.dec = gzipDecode
	case Snappy:
		c.enc = func(data []byte) ([]byte, error) { return snappy.Encode(nil, data), nil }
		c.dec = func(data []byte) ([]byte, error) { return snappy.Decode(nil, data) }
	case S2:
		c.enc = func(data []byte) ([]byte, error) { return s2.Encode(nil, data), nil }
		c.dec = func(data []byte) ([]byte, error) { return s2.Decode(nil, data) }
	case LZ4:
		lvl := lz4Level(level)
		c.enc = func(data []byte) ([]byte, error) { return lz4Encode(data, lvl) }
		c.dec = lz4Decode
	case Zstd:
		z := newZstdPools(zstdLevel(level))
		c.enc, c.dec = z.encode, z.decode
	}
	return c, nil
}

var (
	cacheMu sync.Mutex
	cache   = make(map[Algorithm]Compressor)
)

// For returns a shared default-level compressor for a.
func For(a Algorithm) (Compressor, error) {
	alg, err := ParseAlgorithm(string(a))
	if err != nil {
		return nil, err
	}
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if c, ok := cache[alg]; ok {
		return c, nil
	}
	c, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
	if err != nil {
		return nil, err
	}
	cache[alg] = c
	return c, nil
}

type codec struct {
	algorithm Algorithm
	level     Level
	enc       func([]byte) ([]byte, error)
	dec       func([]byte) ([]byte, error)
}

func (c *codec) Algorithm() Algorithm { return c.algorithm }
func (c *codec) Level() Level         { return c.level }

func (c *codec) Compress(data []byte) ([]byte, error) {
	out, err := c.enc(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, string(c.algorithm)+" compress")
	}
	return out, nil
}

func (c *codec) Decompress(data []byte) ([]byte, error) {
	out, err := c.dec(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, string(c.algorithm)+" decompress")
	}
	return out, nil
}

func copyBytes(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func gzipEncode(data []byte, level Level) ([]byte, error) {
	gl := gzip.DefaultCompression
	switch level {
	case Fastest:
		gl = gzip.BestSpeed
	case Best:
		gl = gzip.BestCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gl)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecode(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func lz4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	}
	return lz4.Level5
}

func lz4Encode(data []byte, level lz4.CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(level)); err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4Decode(data []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}

func zstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	}
	return zstd.SpeedDefault
}

// zstdPools reuses encoders and decoders, which are costly to build.
type zstdPools struct {
	encoders sync.Pool
	decoders sync.Pool
}

func newZstdPools(level zstd.EncoderLevel) *zstdPools {
	z := &zstdPools{}
	z.encoders.New = func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		return enc
	}
	z.decoders.New = func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	}
	return z
}

func (z *zstdPools) encode(data []byte) ([]byte, error) {
	enc := z.encoders.Get().(*zstd.Encoder)
	defer z.encoders.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

func (z *zstdPools) decode(data []byte) ([]byte, error) {
	dec := z.decoders.Get().(*zstd.Decoder)
	defer z.decoders.Put(dec)
	return dec.DecodeAll(data, nil)
}
