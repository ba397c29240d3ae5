package vm

import "github.com/mna/lispcore/lang/value"

// props is the side-table GETPROP/SETPROP read and write against. Keyed by
// the object value directly: a quoted Symbol for a global's metadata (the
// `:macro` tag `def` sets, `:doc` strings), or a Handle for a heap
// aggregate's user-set properties. Both are comparable, so one map serves
// either case -- a symbol key already identifies its global, so the
// globals' attribute table and the per-object attribute tables need not be
// two separate stores.
type props struct {
	m map[value.Value]map[string]value.Value
}

func newProps() *props { return &props{m: make(map[value.Value]map[string]value.Value)} }

func (p *props) get(obj value.Value, key string) (value.Value, bool) {
	bucket, ok := p.m[obj]
	if !ok {
		return nil, false
	}
	v, ok := bucket[key]
	return v, ok
}

func (p *props) set(obj value.Value, key string, v value.Value) {
	bucket, ok := p.m[obj]
	if !ok {
		bucket = make(map[string]value.Value)
		p.m[obj] = bucket
	}
	bucket[key] = v
}

// roots returns every value stored in the property table, so the GC never
// frees an object only reachable as someone's attribute.
func (p *props) roots() []value.Value {
	var out []value.Value
	for obj, bucket := range p.m {
		out = append(out, obj)
		for _, v := range bucket {
			out = append(out, v)
		}
	}
	return out
}

// propKey normalizes a property key value to its lookup string: keywords,
// symbols and string constants all address the same attribute when they
// spell the same name.
func propKey(key value.Value) string {
	switch k := key.(type) {
	case value.Keyword:
		return k.Name
	case value.Symbol:
		return k.Name
	case value.StringConst:
		return k.Text
	}
	return key.String()
}

func (th *Thread) getProp(obj, key value.Value) (value.Value, bool) {
	if ha, ok := obj.(value.HasAttrs); ok {
		if v, err := ha.Attr(propKey(key)); err == nil && v != nil {
			return v, true
		}
	}
	return th.props.get(obj, propKey(key))
}

func (th *Thread) setProp(obj, key, v value.Value) {
	if hs, ok := obj.(value.HasSetField); ok {
		if err := hs.SetField(propKey(key), v); err == nil {
			return
		}
	}
	th.props.set(obj, propKey(key), v)
}
