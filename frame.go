package j1939

// Frame is a single-frame J1939 protocol data unit: a decoded header plus up to 8 data bytes.
// Multi-frame transport reassembly (fast-packet, BAM/CMDT) is out of scope; Data never exceeds
// 8 bytes.
type Frame struct {
	Header Header
	Length uint8
	Data   [8]byte
}

// CANID returns the 29-bit identifier this frame would be sent with.
func (f Frame) CANID() uint32 {
	return f.Header.Uint32()
}

// IsBroadcast reports whether the frame's PDU-format makes it broadcast (PDU2).
func (f Frame) IsBroadcast() bool {
	return f.Header.IsBroadcast()
}

// IsAddressClaim reports whether the frame carries the Address Claimed/Cannot Claim PGN.
func (f Frame) IsAddressClaim() bool {
	return f.Header.IsAddressClaim()
}

// IsAddressRequest reports whether the frame carries the ISO Request PGN.
func (f Frame) IsAddressRequest() bool {
	return f.Header.IsAddressRequest()
}

// IsCannotClaim reports whether the frame is an address-claim frame asserting "I hold no
// address" (source == IdleAddr).
func (f Frame) IsCannotClaim() bool {
	return f.IsAddressClaim() && f.Header.Source == IdleAddr
}

// NAME extracts the 8-byte little-endian NAME payload of an address-claim frame. Returns an
// error if the frame is not an address-claim frame or its data length is not exactly 8.
func (f Frame) NAME() (NAME, error) {
	if !f.IsAddressClaim() {
		return 0, ErrInvalidArgument
	}
	if f.Length != 8 {
		return 0, errBadHeaderf("address claim frame has data length %d, want 8", f.Length)
	}
	return NameFromBytes(f.Data[:8])
}

// RequestedPGN extracts the 3-byte little-endian PGN payload of a request frame.
func (f Frame) RequestedPGN() (uint32, error) {
	if !f.IsAddressRequest() {
		return 0, ErrInvalidArgument
	}
	if f.Length != 3 {
		return 0, errBadHeaderf("address request frame has data length %d, want 3", f.Length)
	}
	return uint32(f.Data[0]) | uint32(f.Data[1])<<8 | uint32(f.Data[2])<<16, nil
}

// MakeAddressClaim builds an address-claim frame announcing name at source address addr.
// Pass IdleAddr for addr to build a cannot-claim frame.
func MakeAddressClaim(name NAME, addr uint8) Frame {
	f := Frame{
		Header: Header{
			Priority:    6,
			PGN:         PGNAddressClaim,
			Source:      addr,
			Destination: NoAddr,
		},
		Length: 8,
	}
	copy(f.Data[:], name.Bytes())
	return f
}

// MakeCannotClaim builds an address-claim frame asserting that name holds no address.
func MakeCannotClaim(name NAME) Frame {
	return MakeAddressClaim(name, IdleAddr)
}

// MakeAddressRequest builds a globally broadcast request for the Address Claimed PGN, the frame
// a controller application without an address sends to provoke others into re-announcing
// themselves.
func MakeAddressRequest() Frame {
	f := Frame{
		Header: Header{
			Priority:    6,
			PGN:         PGNRequest,
			Source:      IdleAddr,
			Destination: NoAddr,
		},
		Length: 3,
	}
	pgn := PGNAddressClaim
	f.Data[0] = uint8(pgn)
	f.Data[1] = uint8(pgn >> 8)
	f.Data[2] = uint8(pgn >> 16)
	return f
}
