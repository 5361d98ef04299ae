package analysis

// GetMember reads target.name for every member of target.
func (p *Project) GetMember(u *Unit, target ValueSet, name string) ValueSet {
	res := EmptySet()
	for _, v := range target.Values() {
		switch {
		case v.kind == KindModule:
			if m := p.moduleByID(v.module); m != nil {
				res = res.Union(m.GetMember(u, name))
			}
		case v.fn != nil && v.fn.prototype != 0 && name == "prototype":
			res = res.Union(NewValueSet(p.Value(v.fn.prototype)))
		case v.object != nil:
			res = res.Union(v.object.GetMember(u, name))
		case v.kind == KindString && name == "length":
			res = res.Union(NewValueSet(Number))
		}
	}
	return res
}

// SetMember writes target.name = value for every member of target.
// Primitives silently drop the write.
func (p *Project) SetMember(u *Unit, node Node, target ValueSet, name string, value ValueSet) bool {
	changed := false
	for _, v := range target.Values() {
		switch {
		case v.kind == KindModule:
			if m := p.moduleByID(v.module); m != nil && m.SetMember(u, node, name, value) {
				changed = true
			}
		case v.object != nil:
			if v.object.SetMember(u, node, name, value) {
				changed = true
			}
		}
	}
	return changed
}

// DeleteMember records delete target.name for every object in target.
func (p *Project) DeleteMember(u *Unit, node Node, target ValueSet, name string) {
	for _, v := range target.Values() {
		if v.object != nil {
			v.object.DeleteMember(u, node, name)
		}
	}
}

// GetIndex reads target[index] for every member of target.
func (p *Project) GetIndex(u *Unit, target, index ValueSet) ValueSet {
	res := EmptySet()
	for _, v := range target.Values() {
		switch {
		case v.array != nil:
			res = res.Union(v.array.GetIndex(u, index))
		case v.object != nil:
			res = res.Union(v.object.GetIndex(u, index))
		case v.kind == KindModule:
			if s, ok := index.ConstantString(); ok {
				if m := p.moduleByID(v.module); m != nil {
					res = res.Union(m.GetMember(u, s))
				}
			}
		case v.kind == KindString:
			res = res.Union(NewValueSet(String))
		}
	}
	return res
}

// SetIndex writes target[index] = value for every member of target.
func (p *Project) SetIndex(u *Unit, node Node, target, index, value ValueSet) bool {
	changed := false
	for _, v := range target.Values() {
		switch {
		case v.array != nil:
			if v.array.SetIndex(u, node, index, value) {
				changed = true
			}
		case v.object != nil:
			if v.object.SetIndex(u, node, index, value) {
				changed = true
			}
		case v.kind == KindModule:
			if s, ok := index.ConstantString(); ok {
				if m := p.moduleByID(v.module); m != nil && m.SetMember(u, node, s, value) {
					changed = true
				}
			}
		}
	}
	return changed
}

// Push appends value to every array in target.
func (p *Project) Push(u *Unit, node Node, target, value ValueSet) bool {
	changed := false
	for _, v := range target.Values() {
		if v.array != nil && v.array.Push(u, node, value) {
			changed = true
		}
	}
	return changed
}
