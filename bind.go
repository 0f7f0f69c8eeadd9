package avload

import (
	"fmt"
	"sort"
)

// bindTable resolves every symbol of t from src and installs the resolved
// addresses. Every missing mandatory symbol is logged before binding fails,
// so one attempt reports the complete set. Missing optional symbols leave
// their field nil and withhold their capability.
func bindTable(t functionTable, src SymbolSource, log moduleLog) (Capabilities, error) {
	syms := t.symbols()

	addrs := make([]uintptr, len(syms))
	var missing []string
	capMissing := map[Capability]bool{}
	capSeen := map[Capability]bool{}

	for i, s := range syms {
		addr, ok := src.Resolve(s.name)
		if s.cap != 0 {
			capSeen[s.cap] = true
			if !ok {
				capMissing[s.cap] = true
			}
		}
		if !ok {
			if s.optional {
				log.Debug(fmt.Sprintf("optional symbol %s not exported", s.name))
				continue
			}
			log.Error(fmt.Sprintf("mandatory symbol %s missing", s.name))
			missing = append(missing, s.name)
			continue
		}
		addrs[i] = addr
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return 0, &SymbolError{Module: t.module(), Symbols: missing}
	}

	var caps Capabilities
	for c := range capSeen {
		if !capMissing[c] {
			caps |= Capabilities(c)
		}
	}

	for i, s := range syms {
		if addrs[i] == 0 {
			continue
		}
		// A capability with only some of its symbols present stays unbound
		// as a whole so callers never see a half-usable API.
		if s.cap != 0 && !caps.Has(s.cap) {
			continue
		}
		registerFunc(s.fn, addrs[i])
	}

	log.Debug(fmt.Sprintf("bound %d symbols, capabilities: %s", countBound(addrs), caps))
	return caps, nil
}

func countBound(addrs []uintptr) int {
	n := 0
	for _, a := range addrs {
		if a != 0 {
			n++
		}
	}
	return n
}

// readVersion calls the module's version function directly from src. It is
// used for diagnostics when binding failed, so the log still shows which
// library revision was found.
func readVersion(m Module, src SymbolSource) (Version, bool) {
	addr, ok := src.Resolve(m.versionSymbol())
	if !ok {
		return Version{}, false
	}
	var fn func() uint32
	registerFunc(&fn, addr)
	return DecodeVersion(fn()), true
}
