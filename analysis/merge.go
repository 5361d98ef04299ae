package analysis

import (
	"encoding/binary"
	"hash/fnv"
)

// classObjectLike is the merge class shared by objects and arrays at the
// strongest merge level.
const classObjectLike = uint8(numKinds)

// mergeKey identifies the bucket a value falls into at a given strength.
// Two values are union-equal at strength s iff their keys at s are equal.
type mergeKey struct {
	class uint8
	id    ValueID
	decl  Node
	proto ValueID
}

// mergeOps is the per-kind entry of the lattice dispatch table.
type mergeOps struct {
	key   func(v *Value, s int) mergeKey
	merge func(a, b *Value, s int) *Value
}

var mergeTable = [numKinds]mergeOps{
	KindUndefined: {key: primitiveKey, merge: primitiveMerge},
	KindNull:      {key: primitiveKey, merge: primitiveMerge},
	KindBoolean:   {key: primitiveKey, merge: primitiveMerge},
	KindNumber:    {key: primitiveKey, merge: primitiveMerge},
	KindString:    {key: primitiveKey, merge: primitiveMerge},
	KindFunction:  {key: functionKey, merge: keepFirst},
	KindObject:    {key: objectKey, merge: keepFirst},
	KindArray:     {key: arrayKey, merge: keepFirst},
	KindModule:    {key: moduleKey, merge: keepFirst},
}

func identityKey(v *Value) mergeKey {
	return mergeKey{class: uint8(v.kind), id: v.id}
}

func siteKey(v *Value) mergeKey {
	if v.decl == nil {
		return identityKey(v)
	}
	return mergeKey{class: uint8(v.kind), decl: v.decl}
}

func primitiveKey(v *Value, s int) mergeKey {
	if s == 0 {
		return identityKey(v)
	}
	return mergeKey{class: uint8(v.kind)}
}

func functionKey(v *Value, s int) mergeKey {
	switch {
	case s == 0:
		return identityKey(v)
	case s < 3:
		return siteKey(v)
	default:
		return mergeKey{class: uint8(KindFunction)}
	}
}

func objectKey(v *Value, s int) mergeKey {
	switch {
	case s == 0:
		return identityKey(v)
	case s == 1:
		k := siteKey(v)
		k.proto = v.proto
		return k
	case s == 2:
		if v.proto != 0 {
			return mergeKey{class: uint8(KindObject), proto: v.proto}
		}
		return siteKey(v)
	default:
		return mergeKey{class: classObjectLike}
	}
}

func arrayKey(v *Value, s int) mergeKey {
	switch {
	case s == 0:
		return identityKey(v)
	case s == 1:
		return siteKey(v)
	case s == 2:
		return mergeKey{class: uint8(KindArray)}
	default:
		return mergeKey{class: classObjectLike}
	}
}

func moduleKey(v *Value, s int) mergeKey {
	if s < 3 {
		return identityKey(v)
	}
	return mergeKey{class: uint8(KindModule)}
}

func primitiveMerge(a, b *Value, s int) *Value {
	if a == b || s == 0 {
		return a
	}
	return builtinFor(a.kind)
}

func keepFirst(a, b *Value, s int) *Value {
	return a
}

func (v *Value) mergeKey(s int) mergeKey {
	return mergeTable[v.kind].key(v, s)
}

// UnionEquals reports whether v and other are indistinguishable at merge
// strength s.
func (v *Value) UnionEquals(other *Value, s int) bool {
	if v == other {
		return true
	}
	if v == nil || other == nil {
		return false
	}
	return v.mergeKey(s) == other.mergeKey(s)
}

// UnionMergeTypes returns the representative to keep when v and other are
// union-equal at strength s.
func (v *Value) UnionMergeTypes(other *Value, s int) *Value {
	if v == other {
		return v
	}
	return mergeTable[v.kind].merge(v, other, s)
}

// UnionHashCode returns a hash consistent with UnionEquals at strength s.
func (v *Value) UnionHashCode(s int) uint64 {
	k := v.mergeKey(s)
	h := fnv.New64a()
	h.Write([]byte{k.class})
	binary.Write(h, binary.LittleEndian, uint32(k.id))
	binary.Write(h, binary.LittleEndian, uint32(k.proto))
	if k.decl != nil {
		loc := k.decl.Location()
		h.Write([]byte(loc.File))
		binary.Write(h, binary.LittleEndian, uint64(loc.Line))
		binary.Write(h, binary.LittleEndian, uint64(loc.Column))
	}
	return h.Sum64()
}
