package columnar

import (
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

func writeArrow(w io.Writer, schema *arrow.Schema, records []arrow.Record, config *WriterConfig) error {
	opts := []ipc.Option{ipc.WithSchema(schema), ipc.WithAllocator(memory.DefaultAllocator)}
	switch strings.ToLower(config.Compression) {
	case "", "none":
	case "lz4":
		opts = append(opts, ipc.WithLZ4())
	case "zstd":
		opts = append(opts, ipc.WithZstd())
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unsupported Arrow compression %q", config.Compression)
	}

	fw, err := ipc.NewFileWriter(w, opts...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "create Arrow writer")
	}
	for _, rec := range records {
		if err := fw.Write(rec); err != nil {
			_ = fw.Close()
			return errors.Wrap(err, errors.ErrorTypeFile, "write record batch to Arrow")
		}
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "close Arrow writer")
	}
	return nil
}
