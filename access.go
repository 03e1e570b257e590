package defmem

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"
)

// AccessKind expresses assurance in a memory access.
type AccessKind uint8

const (
	No AccessKind = iota
	May
	Must
)

func (k AccessKind) String() string {
	switch k {
	case No:
		return "No"
	case May:
		return "May"
	default:
		return "Must"
	}
}

// ArgEffect declares how a known callee treats the memory behind one of its
// pointer arguments.
type ArgEffect struct {
	Read  bool
	Write bool
}

// Signature is the memory effect summary of a known function: the effects of
// its pointer arguments and whether the callee touches memory beyond them.
type Signature struct {
	// ArgMemOnly is true when the callee accesses no memory besides what its
	// arguments point to. When false, calls to it additionally produce an
	// unknown access event.
	ArgMemOnly bool
	// Args maps argument indices (receiver included, at index 0) to their
	// declared effects. Arguments without an entry contribute nothing.
	Args map[int]ArgEffect
}

// SignatureDB maps fully qualified function names to their memory effect
// signatures. Lookup misses are not errors; a miss simply demotes a call to
// the generic conservative treatment.
type SignatureDB struct {
	sigs map[string]Signature
}

// NewSignatureDB returns an empty database.
func NewSignatureDB() *SignatureDB {
	return &SignatureDB{sigs: make(map[string]Signature)}
}

// Add registers a signature under the function's ssa.Function.String() name,
// e.g. "(*sync.Mutex).Lock" or "runtime.KeepAlive".
func (db *SignatureDB) Add(name string, sig Signature) {
	db.sigs[name] = sig
}

// Lookup finds the signature registered for fn.
func (db *SignatureDB) Lookup(fn *ssa.Function) (Signature, bool) {
	sig, ok := db.sigs[fn.String()]
	return sig, ok
}

// DefaultSignatures covers runtime and standard library routines whose
// argument effects are stable enough to rely on. The set is intentionally
// small; an unrecognised callee is handled conservatively, never unsoundly.
func DefaultSignatures() *SignatureDB {
	db := NewSignatureDB()
	rw := ArgEffect{Read: true, Write: true}
	r := ArgEffect{Read: true}

	for _, name := range []string{
		"(*sync.Mutex).Lock", "(*sync.Mutex).Unlock",
		"(*sync.RWMutex).Lock", "(*sync.RWMutex).Unlock",
		"(*sync.RWMutex).RLock", "(*sync.RWMutex).RUnlock",
		"(*sync.WaitGroup).Add", "(*sync.WaitGroup).Done",
	} {
		db.Add(name, Signature{ArgMemOnly: true, Args: map[int]ArgEffect{0: rw}})
	}
	db.Add("(*sync.WaitGroup).Wait",
		Signature{ArgMemOnly: true, Args: map[int]ArgEffect{0: r}})

	for _, name := range []string{
		"sync/atomic.AddInt32", "sync/atomic.AddInt64",
		"sync/atomic.AddUint32", "sync/atomic.AddUint64",
		"sync/atomic.StoreInt32", "sync/atomic.StoreInt64",
		"sync/atomic.StoreUint32", "sync/atomic.StoreUint64",
		"sync/atomic.SwapInt32", "sync/atomic.SwapInt64",
		"sync/atomic.CompareAndSwapInt32", "sync/atomic.CompareAndSwapInt64",
	} {
		db.Add(name, Signature{ArgMemOnly: true, Args: map[int]ArgEffect{0: rw}})
	}
	for _, name := range []string{
		"sync/atomic.LoadInt32", "sync/atomic.LoadInt64",
		"sync/atomic.LoadUint32", "sync/atomic.LoadUint64",
	} {
		db.Add(name, Signature{ArgMemOnly: true, Args: map[int]ArgEffect{0: r}})
	}

	db.Add("runtime.KeepAlive", Signature{ArgMemOnly: true})

	return db
}

// Classifier inspects one instruction at a time and reports its memory
// accesses. It is a pure classification pass: it consults the signature
// database but never mutates analysis state.
type Classifier struct {
	Signatures *SignatureDB
	Sizes      types.Sizes
}

// AccessFunc receives one classified access: the location, the operand index
// it was derived from and the read/write assurance.
type AccessFunc func(i ssa.Instruction, loc MemoryLocation, opIdx int, read, write AccessKind)

// UnknownFunc receives accesses to memory with unknown description, for
// example a call whose effects cannot be proven argument local.
type UnknownFunc func(i ssa.Instruction, read, write AccessKind)

// ForEachMemory applies access to each memory location accessed by i, or
// unknown when the footprint cannot be described precisely. Alias
// information plays no part; assurance reflects the instruction alone.
func (c *Classifier) ForEachMemory(i ssa.Instruction, access AccessFunc, unknown UnknownFunc) {
	switch t := i.(type) {
	case *ssa.UnOp:
		switch t.Op {
		case token.MUL:
			if !validPointer(t.X) {
				return
			}
			access(i, Location(t.X, c.Sizes), 0, Must, No)
		case token.ARROW:
			// Channel receive reads and advances channel internals.
			unknown(i, May, May)
		}

	case *ssa.Store:
		if !validPointer(t.Addr) {
			return
		}
		access(i, Location(t.Addr, c.Sizes), 1, No, Must)

	case ssa.CallInstruction:
		c.call(t, access, unknown)

	case *ssa.Send, *ssa.MapUpdate, *ssa.Select:
		unknown(i, May, May)

	case *ssa.Lookup:
		if _, isMap := t.X.Type().Underlying().(*types.Map); isMap {
			unknown(i, May, No)
		}

	case *ssa.Range:
		if _, isMap := t.X.Type().Underlying().(*types.Map); isMap {
			unknown(i, May, No)
		}

	case *ssa.Next:
		if !t.IsString {
			unknown(i, May, May)
		}

	case *ssa.RunDefers:
		// The builder emits a RunDefers before every return. Deferred calls
		// run here with footprints that were not classified, but in a
		// defer-free function it touches nothing.
		if hasDefers(t.Parent()) {
			unknown(i, May, May)
		}

	case *ssa.Panic:
		// Unwinding runs the deferred calls too.
		unknown(i, May, May)
	}
}

func (c *Classifier) call(call ssa.CallInstruction, access AccessFunc, unknown UnknownFunc) {
	common := call.Common()

	if b, ok := common.Value.(*ssa.Builtin); ok && !common.IsInvoke() {
		c.builtin(call, b, access, unknown)
		return
	}

	if sc := common.StaticCallee(); sc != nil && c.Signatures != nil {
		if sig, ok := c.Signatures.Lookup(sc); ok {
			for idx, eff := range sig.Args {
				if idx >= len(common.Args) {
					continue
				}
				arg := common.Args[idx]
				if !PointerLike(arg.Type()) || !validPointer(arg) {
					continue
				}
				// Conservatively never Must: the callee's exact access
				// pattern is not verified at the call site.
				access(call, Location(arg, c.Sizes), idx,
					may(eff.Read), may(eff.Write))
			}
			if !sig.ArgMemOnly {
				unknown(call, May, May)
			}
			return
		}
	}

	// Unrecognised callee: every pointer argument may be read and written,
	// and the callee may touch memory we cannot name.
	for idx, arg := range common.Args {
		if !PointerLike(arg.Type()) || !validPointer(arg) {
			continue
		}
		access(call, Location(arg, c.Sizes), idx, May, May)
	}
	unknown(call, May, May)
}

func (c *Classifier) builtin(call ssa.CallInstruction, b *ssa.Builtin, access AccessFunc, unknown UnknownFunc) {
	args := call.Common().Args
	switch b.Name() {
	case "copy":
		if len(args) == 2 {
			if validPointer(args[0]) {
				access(call, Location(args[0], c.Sizes), 0, No, May)
			}
			if validPointer(args[1]) {
				access(call, Location(args[1], c.Sizes), 1, May, No)
			}
		}
	case "append":
		if len(args) == 2 {
			if validPointer(args[0]) {
				access(call, Location(args[0], c.Sizes), 0, May, May)
			}
			if validPointer(args[1]) {
				access(call, Location(args[1], c.Sizes), 1, May, No)
			}
		}
	case "delete", "recover", "ssa:wrapnilchk":
		unknown(call, May, May)
	case "print", "println":
		for idx, arg := range args {
			if PointerLike(arg.Type()) && validPointer(arg) {
				access(call, Location(arg, c.Sizes), idx, May, No)
			}
		}
	default:
		// len, cap, real, imag, complex, min, max: no memory access.
	}
}

// hasDefers reports whether fn defers any calls.
func hasDefers(fn *ssa.Function) bool {
	if fn == nil {
		return false
	}
	if fn.Recover != nil {
		return true
	}
	for _, b := range fn.Blocks {
		for _, i := range b.Instrs {
			if _, ok := i.(*ssa.Defer); ok {
				return true
			}
		}
	}
	return false
}

func may(b bool) AccessKind {
	if b {
		return May
	}
	return No
}

// validPointer excludes operands that cannot contribute a real access:
// untyped nil and other nil constants are not valid dereferences.
func validPointer(v ssa.Value) bool {
	if c, ok := v.(*ssa.Const); ok {
		return !c.IsNil()
	}
	return true
}
