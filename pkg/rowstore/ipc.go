package rowstore

import (
	"bytes"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

const (
	metaTreeName  = "ntuple.tree.name"
	metaTreeTitle = "ntuple.tree.title"
	metaLeafList  = "ntuple.leaflist"
	metaTitle     = "ntuple.title"
	metaDeclared  = "ntuple.declared"
)

// TreeCompression selects the Arrow IPC body compression of stored trees.
type TreeCompression string

const (
	TreeCompressionNone TreeCompression = "none"
	TreeCompressionLZ4  TreeCompression = "lz4"
	TreeCompressionZstd TreeCompression = "zstd"
)

// ParseTreeCompression validates a tree compression name. Empty means none.
func ParseTreeCompression(s string) (TreeCompression, error) {
	switch TreeCompression(strings.ToLower(s)) {
	case "", TreeCompressionNone:
		return TreeCompressionNone, nil
	case TreeCompressionLZ4:
		return TreeCompressionLZ4, nil
	case TreeCompressionZstd:
		return TreeCompressionZstd, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unsupported tree compression %q", s)
}

func (c TreeCompression) ipcOptions() []ipc.Option {
	switch c {
	case TreeCompressionLZ4:
		return []ipc.Option{ipc.WithLZ4()}
	case TreeCompressionZstd:
		return []ipc.Option{ipc.WithZstd()}
	}
	return nil
}

func (b *Branch) field() arrow.Field {
	md := arrow.NewMetadata(
		[]string{metaLeafList, metaTitle, metaDeclared},
		[]string{b.desc.String(), b.title, b.declared.Code()},
	)
	return arrow.Field{Name: b.desc.Name, Type: b.desc.ArrowType(), Nullable: false, Metadata: md}
}

// Schema returns the Arrow schema of the tree, including the leaf-list
// descriptors as field metadata.
func (t *Tree) Schema() *arrow.Schema { return t.schema() }

// MarshalIPC serializes the tree as an Arrow IPC file.
func (t *Tree) MarshalIPC(compression TreeCompression) ([]byte, error) {
	t.cut()
	schema := t.schema()

	var buf bytes.Buffer
	opts := append([]ipc.Option{ipc.WithSchema(schema), ipc.WithAllocator(t.mem)}, compression.ipcOptions()...)
	w, err := ipc.NewFileWriter(&buf, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "create IPC writer")
	}
	for _, rec := range t.batches {
		if err := w.Write(rec); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "write record batch").WithDetail("tree", t.name)
		}
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "close IPC writer")
	}
	return buf.Bytes(), nil
}

// UnmarshalTree loads a tree from an Arrow IPC file produced by MarshalIPC.
func UnmarshalTree(data []byte) (*Tree, error) {
	mem := memory.DefaultAllocator
	r, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(mem))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "open IPC reader")
	}
	defer r.Close()

	schema := r.Schema()
	name, _ := lookupMeta(schema.Metadata(), metaTreeName)
	title, _ := lookupMeta(schema.Metadata(), metaTreeTitle)
	t := NewTree(name, title)
	t.mem = mem

	for _, f := range schema.Fields() {
		desc, declared, err := descriptorFromField(f)
		if err != nil {
			return nil, err
		}
		fieldTitle, _ := lookupMeta(f.Metadata, metaTitle)
		t.addBranch(desc, declared, nil, fieldTitle)
	}

	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "read record batch").WithDetail("tree", name)
		}
		rec.Retain()
		t.batches = append(t.batches, rec)
		t.entries += rec.NumRows()
	}
	return t, nil
}

func descriptorFromField(f arrow.Field) (Descriptor, ElementType, error) {
	if leaflist, ok := lookupMeta(f.Metadata, metaLeafList); ok {
		desc, err := ParseDescriptor(leaflist)
		if err != nil {
			return Descriptor{}, 0, err
		}
		declared := desc.Type
		if code, ok := lookupMeta(f.Metadata, metaDeclared); ok {
			if dt, err := ParseElementType(code); err == nil {
				declared = dt
			}
		}
		return desc, declared, nil
	}

	// Trees written by other producers carry no leaf lists. Only scalars and
	// fixed-size lists can be described without a count branch.
	switch dt := f.Type.(type) {
	case *arrow.FixedSizeListType:
		et, ok := elementTypeFromArrow(dt.Elem())
		if ok {
			return Descriptor{Name: f.Name, Type: et, Len: int(dt.Len())}, et, nil
		}
	default:
		et, ok := elementTypeFromArrow(f.Type)
		if ok {
			return Descriptor{Name: f.Name, Type: et, Len: 1}, et, nil
		}
	}
	return Descriptor{}, 0, errors.Newf(errors.ErrorTypeData, "field %s has unsupported type %s", f.Name, f.Type)
}

func lookupMeta(md arrow.Metadata, key string) (string, bool) {
	idx := md.FindKey(key)
	if idx < 0 {
		return "", false
	}
	return md.Values()[idx], true
}
