package descriptor

// Kind discriminates the Descriptor union. The out-of-core
// collaborators (FileRef, Image, Sock, Obj, ObjCd*, PMatrix) are kept as
// distinct kinds so the core can still represent them with the flag
// discipline this package cares about, without implementing the screen,
// socket or object-file subsystems those kinds point at.
type Kind uint8

const (
	Unassigned Kind = iota
	Addr
	Integer
	Float
	String
	SelList
	Subr
	FileRef
	Image
	BTree
	Array
	Common
	LocalVars
	Persistent
	PMatrix
	Sock
	Obj
	ObjCd
	ObjCdX
)

// Flag bits carried independently of Kind.
type Flag uint8

const (
	FlagPendingChange Flag = 1 << iota
	FlagReuse              // DF_REUSE: reuse this operand's value across MV fold iterations
	FlagHasRemove          // has-remove-pointer
)

// Descriptor is the universal tagged value. String and SelList own exactly
// one count on their chunk chain, which Copy retains and ReleaseValue
// releases. The other pointer-typed kinds (Array, Common, LocalVars,
// Persistent, Subr, FileRef, Image, BTree, Sock, Obj, PMatrix) hold their
// referent in Ref or SubrObject with no reference count: Copy shares the
// pointer and ReleaseValue only drops it.
type Descriptor struct {
	Kind  Kind
	Flags Flag

	Int   int32
	Flt   float64
	Str   *Chunk // String / SelList payload
	Addr_ *Descriptor

	// SubrName/SubrObject back a Subr descriptor (object_ref, name_string).
	SubrName   string
	SubrObject any

	// Ref is the generic referent pointer for the remaining pointer-typed
	// kinds (FileRef, Image, BTree, Array, Common, LocalVars, Persistent,
	// PMatrix, Sock, Obj). Kept as `any` because the core does not
	// implement those subsystems; callers type-assert as needed.
	Ref any

	// AutoDelete applies to Common (auto_delete_flag).
	AutoDelete bool

	// ObjCdXName backs ObjCdX{name}.
	ObjCdXName string
}

// Deref follows an Addr chain to its first non-Addr descriptor. Invariant
//: the chain terminates at a non-Addr descriptor; dereference
// is idempotent.
func Deref(d *Descriptor) *Descriptor {
	for d != nil && d.Kind == Addr {
		d = d.Addr_
	}
	return d
}

// ReleaseValue releases the chunk chain of a String or SelList descriptor
// and resets d to Unassigned. For every other kind no count is decremented;
// the referent is simply dropped.
func ReleaseValue(d *Descriptor) {
	if d == nil {
		return
	}
	switch d.Kind {
	case String, SelList:
		Release(d.Str)
	}
	d.Kind = Unassigned
	d.Str = nil
	d.Addr_ = nil
	d.Ref = nil
	d.Int = 0
	d.Flt = 0
	d.Flags = 0
}

// Copy makes dst an independent reference to the same value src holds,
// bumping the chunk chain's refcount for String and SelList.
func Copy(dst, src *Descriptor) {
	*dst = *src
	switch dst.Kind {
	case String, SelList:
		Retain(dst.Str)
	}
}
