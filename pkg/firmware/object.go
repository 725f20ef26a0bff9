package firmware

import "fmt"

// Kind is the type tag of a firmware object.
type Kind int

const (
	KindInteger Kind = iota
	KindString
	KindBuffer
	KindPackage
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	case KindBuffer:
		return "buffer"
	case KindPackage:
		return "package"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Object is a value returned by a firmware method. Packages are positional
// arrays of further objects.
type Object struct {
	Kind    Kind
	Integer uint64
	String  string
	Buffer  []byte
	Package []Object
}

func Integer(v uint64) Object { return Object{Kind: KindInteger, Integer: v} }

func String(s string) Object { return Object{Kind: KindString, String: s} }

func Buffer(b []byte) Object { return Object{Kind: KindBuffer, Buffer: b} }

func Package(items ...Object) Object { return Object{Kind: KindPackage, Package: items} }

// Len is the element count of a package, 0 for anything else.
func (o Object) Len() int {
	if o.Kind != KindPackage {
		return 0
	}
	return len(o.Package)
}

// At returns the i-th package element.
func (o Object) At(i int) (Object, bool) {
	if o.Kind != KindPackage || i < 0 || i >= len(o.Package) {
		return Object{}, false
	}
	return o.Package[i], true
}

// UintAt reads the i-th element as a 32-bit integer. Missing or non-integer
// elements read as 0.
func (o Object) UintAt(i int) uint32 {
	e, ok := o.At(i)
	if !ok || e.Kind != KindInteger {
		return 0
	}
	return uint32(e.Integer)
}

// StringAt reads the i-th element as a string, returning def when the
// element is missing or not a string.
func (o Object) StringAt(i int, def string) string {
	e, ok := o.At(i)
	if !ok || e.Kind != KindString {
		return def
	}
	return e.String
}

// BufferAt reads the i-th element as a byte buffer.
func (o Object) BufferAt(i int) []byte {
	e, ok := o.At(i)
	if !ok || e.Kind != KindBuffer {
		return nil
	}
	return e.Buffer
}
