package rowstore

// Object is an opaque named payload stored next to trees in a container,
// such as run metadata or parameter sets. The container compresses Data on
// write and restores it on read; Class is kept verbatim.
type Object struct {
	Class string
	Data  []byte
}

// Clone returns a deep copy of the object.
func (o *Object) Clone() *Object {
	data := make([]byte, len(o.Data))
	copy(data, o.Data)
	return &Object{Class: o.Class, Data: data}
}
