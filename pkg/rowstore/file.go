package rowstore

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-ntuple/pkg/blobstore"
	"github.com/ajitpratap0/nebula-ntuple/pkg/compression"
	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/logger"
	"github.com/ajitpratap0/nebula-ntuple/pkg/metrics"
	"github.com/ajitpratap0/nebula-ntuple/pkg/observability"
)

const (
	manifestVersion = 1
	manifestBlob    = "manifest.json"
	treesDir        = "trees"
	objectsDir      = "objects"
)

// Key describes one stored entry of a container.
type Key struct {
	Name  string `json:"name"`
	Class string `json:"class"`
	Blob  string `json:"blob"`
	Codec string `json:"codec"`
	Size  int64  `json:"size"`
}

// IsTree reports whether the key holds a row tree.
func (k Key) IsTree() bool { return k.Class == ClassTree }

type manifest struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Keys    []Key  `json:"keys"`
}

// Options configure how a writable container encodes its entries.
type Options struct {
	TreeCompression   TreeCompression
	ObjectCompression compression.Algorithm
}

// Option mutates Options.
type Option func(*Options)

// WithTreeCompression sets the Arrow IPC body compression of stored trees.
func WithTreeCompression(c TreeCompression) Option {
	return func(o *Options) { o.TreeCompression = c }
}

// WithObjectCompression sets the codec of opaque object payloads.
func WithObjectCompression(a compression.Algorithm) Option {
	return func(o *Options) { o.ObjectCompression = a }
}

// File is a named container of trees and opaque objects kept in a blob
// store under the prefix "<name>/". Entries are staged in memory by
// WriteTree and WriteObject and uploaded together by Close.
type File struct {
	mu sync.Mutex

	store    blobstore.Store
	name     string
	opts     Options
	writable bool
	closed   bool

	keys    []Key
	index   map[string]int
	trees   map[string]*Tree
	objects map[string]*Object
	staged  map[string][]byte

	log *zap.Logger
}

func newFile(store blobstore.Store, name string, writable bool, opts Options) *File {
	return &File{
		store:    store,
		name:     strings.Trim(name, "/"),
		opts:     opts,
		writable: writable,
		index:    make(map[string]int),
		trees:    make(map[string]*Tree),
		objects:  make(map[string]*Object),
		staged:   make(map[string][]byte),
		log:      logger.With(logger.Container(name)),
	}
}

// Create returns an empty writable container. Nothing is written to the
// store until Close; an existing container of the same name is replaced then.
func Create(ctx context.Context, store blobstore.Store, name string, opts ...Option) (*File, error) {
	if store == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "blob store is required")
	}
	if strings.Trim(name, "/") == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "container name is required")
	}
	o := Options{TreeCompression: TreeCompressionZstd, ObjectCompression: compression.Zstd}
	for _, opt := range opts {
		opt(&o)
	}
	if _, err := compression.For(o.ObjectCompression); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "object compression")
	}
	if _, err := ParseTreeCompression(string(o.TreeCompression)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f := newFile(store, name, true, o)
	f.log.Debug("container created")
	return f, nil
}

// Open reads the manifest and every entry of an existing container. The
// returned container is read-only.
func Open(ctx context.Context, store blobstore.Store, name string) (f *File, err error) {
	if store == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "blob store is required")
	}
	ctx, span := observability.StartContainerSpan(ctx, "container.open", name)
	timer := metrics.NewTimer("open")
	defer func() {
		metrics.ContainerIODuration.WithLabelValues("open").Observe(timer.Stop().Seconds())
		span.Finish(err)
	}()

	f = newFile(store, name, false, Options{})
	raw, err := store.Get(ctx, f.blobPath(manifestBlob))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, errors.Newf(errors.ErrorTypeNotFound, "container %s does not exist", name)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "read manifest").WithDetail("container", name)
	}
	var m manifest
	if err := gojson.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "decode manifest").WithDetail("container", name)
	}
	if m.Version != manifestVersion {
		return nil, errors.Newf(errors.ErrorTypeData, "container %s has manifest version %d", name, m.Version)
	}

	for _, k := range m.Keys {
		if err := validKeyName(k.Name); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid manifest key").WithDetail("container", name)
		}
		if !f.ownedBlob(f.blobPath(k.Blob)) {
			return nil, errors.Newf(errors.ErrorTypeData, "key %s points outside container %s: %s", k.Name, name, k.Blob)
		}
		data, err := store.Get(ctx, f.blobPath(k.Blob))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "read entry").WithDetail("key", k.Name)
		}
		if k.IsTree() {
			t, err := UnmarshalTree(data)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeData, "decode tree").WithDetail("key", k.Name)
			}
			t.file = f
			f.trees[k.Name] = t
		} else {
			obj, err := decodeObject(k, data)
			if err != nil {
				return nil, err
			}
			f.objects[k.Name] = obj
		}
		f.index[k.Name] = len(f.keys)
		f.keys = append(f.keys, k)
	}
	span.SetAttribute(observability.AttrKeys, len(f.keys))
	f.log.Debug("container opened", zap.Int("keys", len(f.keys)))
	return f, nil
}

// Name returns the container name.
func (f *File) Name() string { return f.name }

// Writable reports whether the container was created rather than opened.
func (f *File) Writable() bool { return f.writable }

// Keys returns the container's entries in write order.
func (f *File) Keys() []Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Key, len(f.keys))
	copy(out, f.keys)
	return out
}

// Get returns the named entry: a *Tree or an *Object.
func (f *File) Get(name string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.trees[name]; ok {
		return t, nil
	}
	if o, ok := f.objects[name]; ok {
		return o.Clone(), nil
	}
	return nil, errors.Newf(errors.ErrorTypeNotFound, "container %s has no key %s", f.name, name)
}

// GetTree returns the named tree.
func (f *File) GetTree(name string) (*Tree, error) {
	v, err := f.Get(name)
	if err != nil {
		return nil, err
	}
	t, ok := v.(*Tree)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeData, "key %s in container %s is not a tree", name, f.name)
	}
	return t, nil
}

// GetObject returns a copy of the named opaque object.
func (f *File) GetObject(name string) (*Object, error) {
	v, err := f.Get(name)
	if err != nil {
		return nil, err
	}
	o, ok := v.(*Object)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeData, "key %s in container %s is not an object", name, f.name)
	}
	return o, nil
}

// WriteTree stages the tree's current content under its name, replacing an
// earlier write of the same name. The tree is attached to the container.
func (f *File) WriteTree(t *Tree) error {
	if err := validKeyName(t.name); err != nil {
		return err
	}
	data, err := t.MarshalIPC(f.opts.TreeCompression)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWritable(); err != nil {
		return err
	}
	t.file = f
	f.trees[t.name] = t
	delete(f.objects, t.name)
	f.stage(Key{
		Name:  t.name,
		Class: ClassTree,
		Blob:  path.Join(treesDir, t.name+".arrow"),
		Codec: string(f.opts.TreeCompression),
		Size:  int64(len(data)),
	}, data)
	f.log.Debug("tree staged", logger.Tree(t.name), zap.Int64("entries", t.entries), zap.Int("bytes", len(data)))
	return nil
}

// WriteObject stages an opaque object under name.
func (f *File) WriteObject(name string, obj *Object) error {
	if err := validKeyName(name); err != nil {
		return err
	}
	if obj == nil {
		return errors.Newf(errors.ErrorTypeConfig, "object %s is nil", name)
	}
	c, err := compression.For(f.opts.ObjectCompression)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "object compression")
	}
	data, err := c.Compress(obj.Data)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "compress object").WithDetail("key", name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkWritable(); err != nil {
		return err
	}
	f.objects[name] = obj.Clone()
	delete(f.trees, name)
	f.stage(Key{
		Name:  name,
		Class: obj.Class,
		Blob:  path.Join(objectsDir, name+".bin"),
		Codec: string(c.Algorithm()),
		Size:  int64(len(obj.Data)),
	}, data)
	f.log.Debug("object staged", zap.String("key", name), zap.String("class", obj.Class))
	return nil
}

// validKeyName rejects names that would place a blob outside the
// container's trees/ and objects/ directories.
func validKeyName(name string) error {
	switch {
	case name == "":
		return errors.New(errors.ErrorTypeConfig, "key name is required")
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."):
		return errors.Newf(errors.ErrorTypeConfig, "key name %q must not contain path separators or \"..\"", name)
	}
	return nil
}

// ownedBlob reports whether blob is a tree or object blob of this container,
// as opposed to a blob of a container nested under its name.
func (f *File) ownedBlob(blob string) bool {
	for _, dir := range []struct{ prefix, ext string }{
		{f.blobPath(treesDir) + "/", ".arrow"},
		{f.blobPath(objectsDir) + "/", ".bin"},
	} {
		if rest, ok := strings.CutPrefix(blob, dir.prefix); ok {
			return !strings.Contains(rest, "/") && strings.HasSuffix(rest, dir.ext)
		}
	}
	return false
}

func (f *File) checkWritable() error {
	if !f.writable {
		return errors.Newf(errors.ErrorTypeState, "container %s is read-only", f.name)
	}
	if f.closed {
		return errors.Newf(errors.ErrorTypeState, "container %s is closed", f.name)
	}
	return nil
}

func (f *File) stage(k Key, data []byte) {
	if i, ok := f.index[k.Name]; ok {
		old := f.keys[i]
		if old.Blob != k.Blob {
			delete(f.staged, old.Blob)
		}
		f.keys[i] = k
	} else {
		f.index[k.Name] = len(f.keys)
		f.keys = append(f.keys, k)
	}
	f.staged[k.Blob] = data
}

func (f *File) blobPath(rel string) string {
	return path.Join(f.name, rel)
}

// Close uploads all staged entries and the manifest of a writable container,
// then removes blobs of a previous container of the same name that are no
// longer referenced. Closing twice is a no-op.
func (f *File) Close(ctx context.Context) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	if !f.writable {
		f.closed = true
		return nil
	}

	ctx, span := observability.StartContainerSpan(ctx, "container.close", f.name)
	span.SetAttribute(observability.AttrKeys, len(f.keys))
	timer := metrics.NewTimer("close")
	defer func() {
		metrics.ContainerIODuration.WithLabelValues("close").Observe(timer.Stop().Seconds())
		span.Finish(err)
	}()

	var written int64
	blobs := make([]string, 0, len(f.staged))
	for blob := range f.staged {
		blobs = append(blobs, blob)
	}
	sort.Strings(blobs)
	kinds := make(map[string]string, len(f.keys))
	for _, k := range f.keys {
		if k.IsTree() {
			kinds[k.Blob] = "tree"
		} else {
			kinds[k.Blob] = "object"
		}
	}
	for _, blob := range blobs {
		data := f.staged[blob]
		if err := f.store.Put(ctx, f.blobPath(blob), data); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "upload entry").WithDetail("blob", blob)
		}
		metrics.BytesPersisted.WithLabelValues(kinds[blob]).Add(float64(len(data)))
		written += int64(len(data))
	}

	raw, err := gojson.MarshalIndent(manifest{Version: manifestVersion, Name: f.name, Keys: f.keys}, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "encode manifest")
	}
	if err := f.store.Put(ctx, f.blobPath(manifestBlob), raw); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "upload manifest").WithDetail("container", f.name)
	}
	metrics.BytesPersisted.WithLabelValues("manifest").Add(float64(len(raw)))
	span.SetAttribute(observability.AttrBytes, written+int64(len(raw)))

	if err := f.removeStale(ctx); err != nil {
		f.log.Warn("failed to remove stale blobs", errors.Field(err))
	}

	f.closed = true
	f.staged = nil
	f.log.Info("container written", zap.Int("keys", len(f.keys)), zap.Int("blobs", len(blobs)))
	return nil
}

func (f *File) removeStale(ctx context.Context) error {
	live := map[string]bool{f.blobPath(manifestBlob): true}
	for _, k := range f.keys {
		live[f.blobPath(k.Blob)] = true
	}
	var names []string
	for _, dir := range []string{treesDir, objectsDir} {
		listed, err := f.store.List(ctx, f.blobPath(dir)+"/")
		if err != nil {
			return err
		}
		names = append(names, listed...)
	}
	for _, n := range names {
		if live[n] || !f.ownedBlob(n) {
			continue
		}
		if err := f.store.Delete(ctx, n); err != nil {
			return fmt.Errorf("delete %s: %w", n, err)
		}
		f.log.Debug("removed stale blob", zap.String("blob", n))
	}
	return nil
}

func decodeObject(k Key, data []byte) (*Object, error) {
	c, err := compression.For(compression.Algorithm(k.Codec))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "object codec").WithDetail("key", k.Name)
	}
	payload, err := c.Decompress(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "decompress object").WithDetail("key", k.Name)
	}
	return &Object{Class: k.Class, Data: payload}, nil
}
