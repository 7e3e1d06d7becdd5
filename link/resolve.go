package link

// Resolver maps an external symbol name to its address.
type Resolver interface {
	Resolve(name string) (uintptr, bool)
}

// HostTable is the explicit form: names registered up front by the
// host. Lookup misses fall through to the next resolver if chained.
type HostTable map[string]uintptr

func (t HostTable) Resolve(name string) (uintptr, bool) {
	addr, ok := t[name]

	return addr, ok
}

// Chain tries resolvers in order.
type Chain []Resolver

func (c Chain) Resolve(name string) (uintptr, bool) {
	for _, r := range c {
		if addr, ok := r.Resolve(name); ok {
			return addr, true
		}
	}

	return 0, false
}
