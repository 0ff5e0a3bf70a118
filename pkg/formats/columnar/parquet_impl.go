package columnar

import (
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

func writeParquet(w io.Writer, schema *arrow.Schema, records []arrow.Record, config *WriterConfig) error {
	codec, err := parquetCompression(config.Compression)
	if err != nil {
		return err
	}
	opts := []parquet.WriterProperty{
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(config.EnableDictionary),
		parquet.WithStats(config.EnableStatistics),
	}
	if config.RowGroupSize > 0 {
		opts = append(opts, parquet.WithMaxRowGroupLength(config.RowGroupSize))
	}
	props := parquet.NewWriterProperties(opts...)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(memory.DefaultAllocator),
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(schema, w, props, arrowProps)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "create Parquet writer")
	}
	for _, rec := range records {
		if err := fw.Write(rec); err != nil {
			_ = fw.Close()
			return errors.Wrap(err, errors.ErrorTypeFile, "write record batch to Parquet")
		}
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "close Parquet writer")
	}
	return nil
}

func parquetCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	}
	return compress.Codecs.Uncompressed, errors.Newf(errors.ErrorTypeConfig, "unsupported Parquet compression %q", name)
}
