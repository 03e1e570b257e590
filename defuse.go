package defmem

import (
	"log"

	"golang.org/x/tools/go/ssa"
)

// DefUseSet summarises the straight-line memory behaviour of one data-flow
// node: locations with outward exposed definitions or uses.
//
// A definition of a location in a node is outward exposed if it is the last
// definition within the node; a use is outward exposed if the node contains
// no definition of the location before it. For loops, locations with outward
// exposed uses can get their value not only from outside the loop but also
// from previous iterations.
type DefUseSet struct {
	defs    *LocationSet
	mayDefs *LocationSet
	uses    *LocationSet

	explicit     *LocationSet
	addressTaken map[ssa.Value]struct{}
	unknownInsts map[ssa.Instruction]struct{}

	// Write/read capability of the unknown instructions, if any.
	unknownWrites bool
	unknownReads  bool
}

// NewDefUseSet returns an empty summary whose sets share the given oracle.
func NewDefUseSet(oracle AliasOracle) *DefUseSet {
	return &DefUseSet{
		defs:         NewLocationSet(oracle),
		mayDefs:      NewLocationSet(oracle),
		uses:         NewLocationSet(oracle),
		explicit:     NewLocationSet(oracle),
		addressTaken: make(map[ssa.Value]struct{}),
		unknownInsts: make(map[ssa.Instruction]struct{}),
	}
}

// Defs returns the must defined locations.
func (du *DefUseSet) Defs() *LocationSet { return du.defs }

// HasDef reports whether a location has a definition in the node. Alias
// information is not used; the match is exact.
func (du *DefUseSet) HasDef(loc MemoryLocation) bool { return du.defs.Contains(loc) }

// AddDef specifies that a location has a definition in the node. It returns
// false if this was already recorded.
func (du *DefUseSet) AddDef(loc MemoryLocation) bool { return du.defs.Insert(loc) }

// AddDefInst specifies that the location stored to by i has a definition in
// the node. Only store instructions produce must defined locations; passing
// any other instruction is a contract violation.
func (du *DefUseSet) AddDefInst(i ssa.Instruction, loc MemoryLocation) bool {
	if i == nil {
		log.Panicf("instruction must not be nil")
	}
	if _, ok := i.(*ssa.Store); !ok {
		log.Panicf("only store instructions produce must defined locations, got %T", i)
	}
	return du.AddDef(loc)
}

// MayDefs returns the may defined locations. May defined locations arise
// when a node is a collapsed region, or when a location may overlap another
// location that is must or may defined.
func (du *DefUseSet) MayDefs() *LocationSet { return du.mayDefs }

// HasMayDef reports whether any part of loc may have a definition in the
// node.
func (du *DefUseSet) HasMayDef(loc MemoryLocation) bool { return du.mayDefs.Overlaps(loc) }

// AddMayDef specifies that a location may have a definition in the node.
func (du *DefUseSet) AddMayDef(loc MemoryLocation) bool { return du.mayDefs.Insert(loc) }

// Uses returns the locations which get their value outside the node.
func (du *DefUseSet) Uses() *LocationSet { return du.uses }

// HasUse reports whether any part of loc gets its value outside the node.
func (du *DefUseSet) HasUse(loc MemoryLocation) bool { return du.uses.Overlaps(loc) }

// AddUse specifies that a location gets its value outside the node.
func (du *DefUseSet) AddUse(loc MemoryLocation) bool { return du.uses.Insert(loc) }

// ExplicitAccesses returns the locations accessed directly through a named
// expression, as opposed to reached only through an aliasing side channel.
// If p = &x and *p is used to access x, the access to *p is explicit and the
// access to x is implicit.
func (du *DefUseSet) ExplicitAccesses() *LocationSet { return du.explicit }

// HasExplicitAccess reports whether any part of loc is accessed explicitly
// in the node.
func (du *DefUseSet) HasExplicitAccess(loc MemoryLocation) bool {
	return du.explicit.Overlaps(loc)
}

// AddExplicitAccess records a direct access to loc.
func (du *DefUseSet) AddExplicitAccess(loc MemoryLocation) bool {
	if loc.Ptr == nil {
		log.Panicf("pointer of an explicitly accessed location must not be nil")
	}
	return du.explicit.Insert(loc)
}

// AddressAccesses returns the pointers whose address is explicitly evaluated
// in the node. Regardless of whether such a location is privatized, its
// original address must stay available.
func (du *DefUseSet) AddressAccesses() map[ssa.Value]struct{} { return du.addressTaken }

// HasAddressAccess reports whether the address of ptr is evaluated in the
// node.
func (du *DefUseSet) HasAddressAccess(ptr ssa.Value) bool {
	_, ok := du.addressTaken[ptr]
	return ok
}

// AddAddressAccess records that the address of ptr is evaluated in the node.
func (du *DefUseSet) AddAddressAccess(ptr ssa.Value) bool {
	if ptr == nil {
		log.Panicf("pointer must not be nil")
	}
	if _, ok := du.addressTaken[ptr]; ok {
		return false
	}
	du.addressTaken[ptr] = struct{}{}
	return true
}

// UnknownInsts returns the instructions that access memory with unknown
// description, for example calls without a known effect signature.
func (du *DefUseSet) UnknownInsts() map[ssa.Instruction]struct{} { return du.unknownInsts }

// HasUnknownInst reports whether i was recorded as an unknown instruction.
func (du *DefUseSet) HasUnknownInst(i ssa.Instruction) bool {
	_, ok := du.unknownInsts[i]
	return ok
}

// AddUnknownInst records an instruction with unclassifiable footprint.
func (du *DefUseSet) AddUnknownInst(i ssa.Instruction, read, write AccessKind) bool {
	if i == nil {
		log.Panicf("instruction must not be nil")
	}
	du.unknownReads = du.unknownReads || read != No
	du.unknownWrites = du.unknownWrites || write != No
	if _, ok := du.unknownInsts[i]; ok {
		return false
	}
	du.unknownInsts[i] = struct{}{}
	return true
}

// MayWriteUnknown reports whether the node contains an unknown instruction
// with write capability. Such a node may define every location not provably
// disjoint from the instruction's footprint.
func (du *DefUseSet) MayWriteUnknown() bool { return du.unknownWrites }

// MayReadUnknown reports whether the node contains an unknown instruction
// with read capability. Such a node may observe the incoming value of every
// location not provably disjoint from the instruction's footprint.
func (du *DefUseSet) MayReadUnknown() bool { return du.unknownReads }

// buildDefUse folds the classifier's events for every instruction of a basic
// block, in program order, into a fresh DefUseSet.
func buildDefUse(b *ssa.BasicBlock, cl *Classifier, oracle AliasOracle) *DefUseSet {
	du := NewDefUseSet(oracle)

	// Definitions made before the first unknown read; only those shadow the
	// incoming value from it.
	var shield *LocationSet

	for _, instr := range b.Instrs {
		cl.ForEachMemory(instr,
			func(i ssa.Instruction, loc MemoryLocation, opIdx int, read, write AccessKind) {
				switch write {
				case Must:
					du.AddDefInst(i, loc)
					du.AddMayDef(loc)
				case May:
					du.AddMayDef(loc)
				}
				// Order matters: a read of a location defined earlier in the
				// same node is not outward exposed.
				if read != No && !du.HasDef(loc) {
					du.AddUse(loc)
				}
				du.AddExplicitAccess(loc)
			},
			func(i ssa.Instruction, read, write AccessKind) {
				if read != No && shield == nil {
					shield = du.defs.emptyLike()
					shield.InsertAll(du.defs)
				}
				if write != No {
					// The write may clobber every definition made so far;
					// they remain may defs only.
					du.mayDefs.InsertAll(du.defs)
					du.defs = du.defs.emptyLike()
				}
				du.AddUnknownInst(i, read, write)
			})

		recordAddressAccesses(instr, du)
	}

	// An unknown read may observe the incoming value of any location the
	// node accesses, unless an earlier definition certainly shadows it.
	if shield != nil {
		for _, loc := range du.explicit.Locations() {
			if !shield.Contains(loc) {
				du.AddUse(loc)
			}
		}
	}

	return du
}

// recordAddressAccesses scans the operands of i for explicitly evaluated
// addresses. A pointer that appears anywhere except the dereferenced operand
// position of a load or store escapes as a value.
func recordAddressAccesses(i ssa.Instruction, du *DefUseSet) {
	var skip ssa.Value
	switch t := i.(type) {
	case *ssa.UnOp:
		skip = t.X
	case *ssa.Store:
		skip = t.Addr
	case *ssa.DebugRef:
		return
	}

	var rands [8]*ssa.Value
	for _, rand := range i.Operands(rands[:0]) {
		v := *rand
		if v == nil || v == skip {
			continue
		}
		if isAddress(v) {
			du.AddAddressAccess(v)
		}
	}
}

// isAddress reports whether v is itself the address of some storage rather
// than a value loaded from it.
func isAddress(v ssa.Value) bool {
	switch v.(type) {
	case *ssa.Alloc, *ssa.Global, *ssa.FieldAddr, *ssa.IndexAddr, *ssa.FreeVar:
		return true
	}
	return false
}
