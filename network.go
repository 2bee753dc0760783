package j1939

import "github.com/aldas/go-j1939/internal/syncutil"

// Outcome describes what happened when TryClaim was asked to bind a NAME to an address.
type Outcome uint8

const (
	// Inserted means the address was free and is now bound to the NAME.
	Inserted Outcome = iota
	// Refreshed means the (name, addr) pair was already bound; no change was made.
	Refreshed
	// Displaced means the address was bound to a lower-priority NAME, which has been evicted
	// (and left registered with no address) so the requesting NAME could take its place.
	Displaced
	// Rejected means the address is bound to a NAME with equal-or-higher priority; no change
	// was made.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "Inserted"
	case Refreshed:
		return "Refreshed"
	case Displaced:
		return "Displaced"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Network is the authoritative table of NAME<->address bindings observed on the bus. It is safe
// for concurrent use: every exported method takes the internal lock for its own duration. A
// NAME may be registered with no address (it announced cannot-claim, or lost a contest); such
// registrations do not count toward address_size() or is_full().
type Network struct {
	mu syncutil.RWMutex

	nameToAddr map[NAME]uint8 // NoAddr sentinel means "registered, no address"
	addrToName map[uint8]NAME
}

// NewNetwork creates an empty network map.
func NewNetwork() *Network {
	return &Network{
		nameToAddr: make(map[NAME]uint8),
		addrToName: make(map[uint8]NAME),
	}
}

// TryClaim attempts to bind name to addr. addr must be in 0..MaxUnicastAddr.
func (n *Network) TryClaim(name NAME, addr uint8) (Outcome, error) {
	if addr > MaxUnicastAddr {
		return Rejected, ErrInvalidArgument
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if existing, ok := n.nameToAddr[name]; ok && existing == addr {
		return Refreshed, nil
	}

	if incumbent, ok := n.addrToName[addr]; ok {
		if !name.HigherPriorityThan(incumbent) {
			return Rejected, nil
		}
		// name has higher priority (lower numeric value): evict incumbent, leave it
		// registered with no address.
		n.nameToAddr[incumbent] = NoAddr
		n.unbindAddressLocked(name)
		n.addrToName[addr] = name
		n.nameToAddr[name] = addr
		return Displaced, nil
	}

	n.unbindAddressLocked(name)
	n.addrToName[addr] = name
	n.nameToAddr[name] = addr
	return Inserted, nil
}

// unbindAddressLocked removes any address currently bound to name from addrToName, without
// touching nameToAddr. Caller must hold the write lock.
func (n *Network) unbindAddressLocked(name NAME) {
	if addr, ok := n.nameToAddr[name]; ok && addr != NoAddr {
		delete(n.addrToName, addr)
	}
}

// Register records name as present on the bus with no address, releasing any address it held.
// This is how a cannot-claim announcement is reflected in the map.
func (n *Network) Register(name NAME) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if addr, ok := n.nameToAddr[name]; ok && addr != NoAddr {
		delete(n.addrToName, addr)
	}
	n.nameToAddr[name] = NoAddr
}

// Release removes any address binding for name. name remains registered with no address.
func (n *Network) Release(name NAME) {
	n.mu.Lock()
	defer n.mu.Unlock()

	addr, ok := n.nameToAddr[name]
	if !ok {
		return
	}
	n.nameToAddr[name] = NoAddr
	if addr != NoAddr {
		delete(n.addrToName, addr)
	}
}

// Forget removes name from the map entirely, along with any address it held.
func (n *Network) Forget(name NAME) {
	n.mu.Lock()
	defer n.mu.Unlock()

	addr, ok := n.nameToAddr[name]
	if !ok {
		return
	}
	delete(n.nameToAddr, name)
	if addr != NoAddr {
		delete(n.addrToName, addr)
	}
}

// FindAddress returns the address bound to name, if any.
func (n *Network) FindAddress(name NAME) (uint8, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	addr, ok := n.nameToAddr[name]
	if !ok || addr == NoAddr {
		return 0, false
	}
	return addr, true
}

// FindName returns the NAME bound to addr, if any.
func (n *Network) FindName(addr uint8) (NAME, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	name, ok := n.addrToName[addr]
	return name, ok
}

// Available reports whether addr has no NAME bound to it.
func (n *Network) Available(addr uint8) bool {
	if addr > MaxUnicastAddr {
		return false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	_, ok := n.addrToName[addr]
	return !ok
}

// IsFull reports whether every address in 0..MaxUnicastAddr is bound.
func (n *Network) IsFull() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.addrToName) > int(MaxUnicastAddr)
}

// NameSize returns the number of registered NAMEs, with or without an address.
func (n *Network) NameSize() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.nameToAddr)
}

// AddressSize returns the number of addresses currently bound.
func (n *Network) AddressSize() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.addrToName)
}

// FirstFreeAddress returns the lowest unbound address starting the search at from and wrapping
// around through 0 if nothing is free at or above from: upward from the preferred address to
// MaxUnicastAddr, then 0 up to from. Returns false if every address is bound.
func (n *Network) FirstFreeAddress(from uint8) (uint8, bool) {
	if from > MaxUnicastAddr {
		from = 0
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	if addr, ok := n.searchLocked(from, MaxUnicastAddr+1); ok {
		return addr, true
	}
	return n.searchLocked(0, from)
}

// searchLocked scans [start, end) for an unbound address. Caller must hold at least the read lock.
func (n *Network) searchLocked(start, end uint8) (uint8, bool) {
	for addr := int(start); addr < int(end); addr++ {
		if _, ok := n.addrToName[uint8(addr)]; !ok {
			return uint8(addr), true
		}
	}
	return 0, false
}

// Clear removes every NAME and address binding.
func (n *Network) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nameToAddr = make(map[NAME]uint8)
	n.addrToName = make(map[uint8]NAME)
}
