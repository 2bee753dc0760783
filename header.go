package j1939

import "fmt"

// J1939 reserved addresses and well-known PGNs, per J1939-21.
const (
	// IdleAddr is the "cannot claim" / unbound source address.
	IdleAddr uint8 = 254
	// NoAddr is the null destination address; also the PDU-specific field of a global (broadcast) frame.
	NoAddr uint8 = 255
	// MaxUnicastAddr is the highest address a controller application may claim for itself.
	MaxUnicastAddr uint8 = 253

	// PGNAddressClaim is the Address Claimed / Cannot Claim parameter group number.
	PGNAddressClaim uint32 = 60928
	// PGNRequest is the ISO Request parameter group number.
	PGNRequest uint32 = 59904

	// PFAddressClaim is the PDU-format byte of an address-claim frame.
	PFAddressClaim uint8 = 238
	// PFRequest is the PDU-format byte of a request frame.
	PFRequest uint8 = 234

	// broadcastPFThreshold is the PDU-format value at and above which a frame is PDU2 (broadcast):
	// PDU-specific then carries a group extension instead of a destination address.
	broadcastPFThreshold uint8 = 240
)

// Header is the decoded form of a 29-bit J1939 CAN identifier: priority (3 bits), reserved +
// data page (2 bits, folded into PGN), PDU-format (8 bits), PDU-specific (8 bits), and source
// address (8 bits).
type Header struct {
	Priority    uint8
	PGN         uint32
	Source      uint8
	Destination uint8
}

// PDUFormat returns the PDU-format byte this header would encode to.
func (h Header) PDUFormat() uint8 {
	return uint8(h.PGN >> 8)
}

// IsBroadcast reports whether this header's PDU-format makes it a broadcast (PDU2) frame, in
// which case the PDU-specific byte is a group extension carried in the low byte of PGN, and
// Destination is not a destination address (DecodeHeader sets it to NoAddr; Uint32 ignores it).
func (h Header) IsBroadcast() bool {
	return h.PDUFormat() >= broadcastPFThreshold
}

// Uint32 encodes the header into a 29-bit CAN identifier (right-justified in a uint32). It does
// not validate Priority; use EncodeHeader when the priority comes from an untrusted caller.
func (h Header) Uint32() uint32 {
	canID := uint32(h.Source) // bits 0-7

	pf := uint8(h.PGN >> 8)
	if pf < broadcastPFThreshold {
		canID |= uint32(h.Destination) << 8 // bits 8-15: destination address
		canID |= h.PGN << 8                 // bits 16-25: PF (+ DP/reserved from PGN)
	} else {
		canID |= h.PGN << 8 // bits 8-25: PF and PS both folded into PGN already
	}
	canID |= uint32(h.Priority&0x7) << 26 // bits 26-28
	return canID
}

// EncodeHeader builds a 29-bit CAN identifier from its constituent fields, the way the protocol
// layer above a raw socket would build one for an outgoing frame. It rejects a priority outside
// the 3-bit range instead of silently truncating it.
func EncodeHeader(priority uint8, pgn uint32, pduSpecific uint8, source uint8) (uint32, error) {
	if priority > 7 {
		return 0, errBadHeaderf("priority %d out of range", priority)
	}
	h := Header{Priority: priority, PGN: pgn, Source: source}
	if h.PDUFormat() < broadcastPFThreshold {
		h.Destination = pduSpecific
	} else {
		h.PGN += uint32(pduSpecific)
		h.Destination = NoAddr
	}
	return h.Uint32(), nil
}

// DecodeHeader parses the 29-bit J1939 identifier fields out of a CAN ID.
func DecodeHeader(canID uint32) (Header, error) {
	priority := uint8((canID >> 26) & 0x7)
	h := Header{
		Priority: priority,
		Source:   uint8(canID),
	}
	ps := uint8(canID >> 8)
	pduFormat := uint8(canID >> 16)
	reservedAndDP := uint8(canID>>24) & 0x3
	pgn := (uint32(reservedAndDP) << 16) + uint32(pduFormat)<<8

	if pduFormat < broadcastPFThreshold {
		h.Destination = ps
		h.PGN = pgn
	} else {
		h.Destination = NoAddr // broadcast: PS is a group extension, not a destination
		h.PGN = pgn + uint32(ps)
	}
	return h, nil
}

// errBadHeaderf wraps ErrBadHeader with additional context so errors.Is(err, ErrBadHeader)
// keeps matching.
func errBadHeaderf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrBadHeader)...)
}

// IsAddressClaim reports whether the header is an address-claim (or cannot-claim) frame.
func (h Header) IsAddressClaim() bool {
	return h.PGN == PGNAddressClaim
}

// IsAddressRequest reports whether the header is an address-request frame.
func (h Header) IsAddressRequest() bool {
	return h.PGN == PGNRequest
}
