package j1939

import (
	"time"

	"github.com/aldas/go-j1939/internal/syncutil"
)

// ClaimState is one of the four states an address claimer can be in.
type ClaimState uint8

const (
	// NoAddress is the initial state: no local binding; IdleAddr is the effective source.
	NoAddress ClaimState = iota
	// Claiming means a claim was just sent for a candidate address; we are inside the 250ms
	// settle window, listening for higher-priority challengers.
	Claiming
	// Claimed means the settle window elapsed without defeat; the candidate address is owned.
	Claimed
	// CannotClaim means no address is reachable; the claimer keeps answering requests with a
	// cannot-claim frame.
	CannotClaim
)

func (s ClaimState) String() string {
	switch s {
	case NoAddress:
		return "NoAddress"
	case Claiming:
		return "Claiming"
	case Claimed:
		return "Claimed"
	case CannotClaim:
		return "CannotClaim"
	default:
		return "Unknown"
	}
}

// settleWindow is the minimum time a claim must survive unchallenged before it is considered won.
const settleWindow = 250 * time.Millisecond

// ClaimerCallbacks are the capabilities a claimer needs exposed to its owner. OnFrame is
// required for the claimer to be of any use; the rest are optional observability hooks.
type ClaimerCallbacks struct {
	// OnAddress fires when entering Claimed.
	OnAddress func(name NAME, addr uint8)
	// OnLost fires when leaving Claimed for any other state.
	OnLost func(name NAME)
	// OnFrame fires for every frame the claimer wants transmitted. Required.
	OnFrame func(frame Frame)
	// OnError fires on failures from the network map or malformed inbound frames.
	OnError func(where string, err error)
}

type stoppableTimer interface {
	Stop() bool
}

// Claimer is the address-claim state machine for one local NAME, driving claim, defend, lose
// and cannot-claim transitions against a shared Network map.
type Claimer struct {
	mu syncutil.Mutex

	localName NAME
	network   *Network
	callbacks ClaimerCallbacks

	state     ClaimState
	candidate uint8 // meaningful in Claiming and Claimed

	// afterFunc and settleJitter are injected so tests can drive the settle timer
	// deterministically via Tick instead of sleeping real time.
	afterFunc    func(d time.Duration, f func()) stoppableTimer
	settleJitter func() time.Duration
	timer        stoppableTimer
}

// NewClaimer creates a Claimer for localName against network, reporting activity via callbacks.
func NewClaimer(localName NAME, network *Network, callbacks ClaimerCallbacks) *Claimer {
	return &Claimer{
		localName: localName,
		network:   network,
		callbacks: callbacks,
		state:     NoAddress,
		afterFunc: func(d time.Duration, f func()) stoppableTimer {
			return time.AfterFunc(d, f)
		},
		settleJitter: func() time.Duration { return 0 },
	}
}

// SetSettleJitter installs a jitter source whose value is added on top of the 250ms settle
// window each time a claim timer is armed. The default source returns zero, which keeps replay
// tests bit-exact; bus deployments may install a small random jitter to avoid synchronized
// re-claims after a bus-wide address request.
func (c *Claimer) SetSettleJitter(jitter func() time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if jitter != nil {
		c.settleJitter = jitter
	}
}

// State returns the claimer's current state.
func (c *Claimer) State() ClaimState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LocalName returns the NAME this claimer is acquiring an address for.
func (c *Claimer) LocalName() NAME {
	return c.localName
}

// CurrentAddress returns the address currently held in Claimed, or ok=false otherwise.
func (c *Claimer) CurrentAddress() (uint8, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Claimed {
		return c.candidate, true
	}
	return 0, false
}

// StartAddressClaim requests the claimer acquire preferred, or the next free address if
// preferred is already taken. Only meaningful from NoAddress or CannotClaim; called again it
// restarts the claim from scratch.
func (c *Claimer) StartAddressClaim(preferred uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startAddressClaimLocked(preferred)
}

// startAddressClaimLocked implements start_address_claim. Caller must hold mu.
func (c *Claimer) startAddressClaimLocked(preferred uint8) {
	addr, ok := preferred, c.network.Available(preferred)
	if !ok {
		addr, ok = c.network.FirstFreeAddress(0)
	}
	if !ok {
		c.enterCannotClaimLocked()
		return
	}

	for {
		outcome, err := c.network.TryClaim(c.localName, addr)
		if err != nil {
			c.reportError("try_claim", err)
			c.enterCannotClaimLocked()
			return
		}
		switch outcome {
		case Inserted, Refreshed, Displaced:
			c.enterClaimingLocked(addr)
			return
		case Rejected:
			next, ok := c.network.FirstFreeAddress(addr + 1)
			if !ok {
				c.enterCannotClaimLocked()
				return
			}
			addr = next
		}
	}
}

// Process feeds an inbound frame to the claimer. Frames that are neither address-claim nor
// address-request are ignored.
func (c *Claimer) Process(frame Frame) {
	switch {
	case frame.IsAddressClaim():
		c.processAddressClaim(frame)
	case frame.IsAddressRequest():
		c.processAddressRequest(frame)
	}
}

func (c *Claimer) processAddressClaim(frame Frame) {
	remoteName, err := frame.NAME()
	if err != nil {
		c.reportError("process_address_claim", err)
		return
	}
	remoteAddr := frame.Header.Source

	c.mu.Lock()
	defer c.mu.Unlock()

	if remoteAddr > MaxUnicastAddr {
		// cannot-claim: the remote holds no address, keep it registered without one
		if remoteName != c.localName {
			c.network.Register(remoteName)
		}
		return
	}

	hasCurrent := c.state == Claiming || c.state == Claimed
	if hasCurrent && remoteAddr == c.candidate {
		if claimLoses(remoteName, c.localName) {
			c.loseLocked(remoteName, remoteAddr)
			return
		}
		// we win: re-assert our claim, timer untouched
		c.emitClaimLocked(c.candidate)
		return
	}

	if _, err := c.network.TryClaim(remoteName, remoteAddr); err != nil {
		c.reportError("try_claim", err)
	}
}

// claimLoses decides whether a local controller with localName loses a contest to remoteName
// that just claimed the address we hold. Equal NAMEs are unspecified on a conformant bus; we
// treat them defensively as a loss rather than asserting.
func claimLoses(remoteName, localName NAME) bool {
	if remoteName == localName {
		return true
	}
	return remoteName.HigherPriorityThan(localName)
}

// loseLocked implements the "lose" branch of the address-claim transition: the winner is
// recorded in the map, we announce cannot-claim, then immediately contest a new slot. Caller
// must hold mu.
func (c *Claimer) loseLocked(remoteName NAME, contestedAddr uint8) {
	c.network.Release(c.localName)
	if _, err := c.network.TryClaim(remoteName, contestedAddr); err != nil {
		c.reportError("try_claim", err)
	}
	wasClaimed := c.state == Claimed
	c.stopTimerLocked()
	c.state = CannotClaim
	c.candidate = IdleAddr
	c.callbacks.OnFrame(MakeCannotClaim(c.localName))
	if wasClaimed && c.callbacks.OnLost != nil {
		c.callbacks.OnLost(c.localName)
	}

	next, ok := c.network.FirstFreeAddress(contestedAddr + 1)
	if !ok {
		return
	}
	c.startAddressClaimLocked(next)
}

func (c *Claimer) processAddressRequest(frame Frame) {
	pgn, err := frame.RequestedPGN()
	if err != nil {
		c.reportError("process_address_request", err)
		return
	}
	if pgn != PGNAddressClaim {
		return // a request for some other PGN is not an address request
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dst := frame.Header.Destination
	var currentAddr uint8
	hasCurrent := false
	if c.state == Claiming || c.state == Claimed {
		currentAddr = c.candidate
		hasCurrent = true
	}
	if dst != NoAddr && !(hasCurrent && dst == currentAddr) {
		return // directed at someone else
	}

	switch c.state {
	case Claimed:
		c.emitClaimLocked(c.candidate)
	default: // Claiming, NoAddress, CannotClaim
		c.callbacks.OnFrame(MakeCannotClaim(c.localName))
	}
}

// Tick fires the claim-settle timeout. In production this is driven by the internal timer; tests
// call it directly to avoid sleeping.
func (c *Claimer) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Claiming {
		return
	}
	c.state = Claimed
	if c.callbacks.OnAddress != nil {
		c.callbacks.OnAddress(c.localName, c.candidate)
	}
}

// Stop releases the claimed address (if any) and returns the claimer to NoAddress. on_lost fires
// if the state was Claimed.
func (c *Claimer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasClaimed := c.state == Claimed
	c.stopTimerLocked()
	c.network.Release(c.localName)
	c.state = NoAddress
	c.candidate = 0
	if wasClaimed && c.callbacks.OnLost != nil {
		c.callbacks.OnLost(c.localName)
	}
}

func (c *Claimer) enterClaimingLocked(addr uint8) {
	c.state = Claiming
	c.candidate = addr
	c.emitClaimLocked(addr)
	c.armTimerLocked()
}

func (c *Claimer) enterCannotClaimLocked() {
	c.stopTimerLocked()
	c.state = CannotClaim
	c.candidate = IdleAddr
	c.callbacks.OnFrame(MakeCannotClaim(c.localName))
}

func (c *Claimer) emitClaimLocked(addr uint8) {
	c.callbacks.OnFrame(MakeAddressClaim(c.localName, addr))
}

func (c *Claimer) armTimerLocked() {
	c.stopTimerLocked()
	c.timer = c.afterFunc(settleWindow+c.settleJitter(), c.Tick)
}

func (c *Claimer) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Claimer) reportError(where string, err error) {
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(where, err)
	}
}
