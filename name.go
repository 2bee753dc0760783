package j1939

import "encoding/binary"

// NAME is the 64-bit identity a controller application claims an address with. Lower numeric
// value means higher arbitration priority: when two controllers contest the same address, the
// one with the smaller NAME wins.
//
// Field layout (bit 63 is the most significant bit of the 64-bit value):
//
//	[63]      self-configurable address, 1 bit
//	[62:60]   industry group, 3 bits
//	[59:56]   device class instance, 4 bits
//	[55:49]   device class, 7 bits
//	[48]      reserved, 1 bit
//	[47:40]   function, 8 bits
//	[39:35]   function instance, 5 bits
//	[34:32]   ECU instance, 3 bits
//	[31:21]   manufacturer code, 11 bits
//	[20:0]    identity number, 21 bits
type NAME uint64

const (
	nameSelfConfigAddrMask  = uint64(0x80_00_00_00_00_00_00_00)
	nameIndustryGroupMask   = uint64(0x70_00_00_00_00_00_00_00)
	nameDeviceClassInstMask = uint64(0x0F_00_00_00_00_00_00_00)
	nameDeviceClassMask     = uint64(0x00_FE_00_00_00_00_00_00)
	nameFunctionMask        = uint64(0x00_00_FF_00_00_00_00_00)
	nameFunctionInstMask    = uint64(0x00_00_00_F8_00_00_00_00)
	nameECUInstMask         = uint64(0x00_00_00_07_00_00_00_00)
	nameManufacturerMask    = uint64(0x00_00_00_00_FF_E0_00_00)
	nameIdentityMask        = uint64(0x00_00_00_00_00_1F_FF_FF)

	nameSelfConfigAddrShift  = 63
	nameIndustryGroupShift   = 60
	nameDeviceClassInstShift = 56
	nameDeviceClassShift     = 49
	nameFunctionShift        = 40
	nameFunctionInstShift    = 35
	nameECUInstShift         = 32
	nameManufacturerShift    = 21
	nameIdentityShift        = 0
)

// NameFields are the decomposed sub-fields a NAME is built from, in the order J1939 defines them.
type NameFields struct {
	IdentityNumber        uint32 // 21 bits
	ManufacturerCode      uint16 // 11 bits
	ECUInstance           uint8  // 3 bits
	FunctionInstance      uint8  // 5 bits
	Function              uint8  // 8 bits
	DeviceClass           uint8  // 7 bits
	DeviceClassInstance   uint8  // 4 bits
	IndustryGroup         uint8  // 3 bits
	SelfConfigurableAddr  bool   // 1 bit
}

// NewName packs a NAME from its decomposed fields. Values wider than their field are truncated.
func NewName(f NameFields) NAME {
	var n uint64
	n |= (uint64(f.IdentityNumber) << nameIdentityShift) & nameIdentityMask
	n |= (uint64(f.ManufacturerCode) << nameManufacturerShift) & nameManufacturerMask
	n |= (uint64(f.ECUInstance) << nameECUInstShift) & nameECUInstMask
	n |= (uint64(f.FunctionInstance) << nameFunctionInstShift) & nameFunctionInstMask
	n |= (uint64(f.Function) << nameFunctionShift) & nameFunctionMask
	n |= (uint64(f.DeviceClass) << nameDeviceClassShift) & nameDeviceClassMask
	n |= (uint64(f.DeviceClassInstance) << nameDeviceClassInstShift) & nameDeviceClassInstMask
	n |= (uint64(f.IndustryGroup) << nameIndustryGroupShift) & nameIndustryGroupMask
	if f.SelfConfigurableAddr {
		n |= nameSelfConfigAddrMask
	}
	return NAME(n)
}

// Fields decomposes the NAME back into its named sub-fields.
func (n NAME) Fields() NameFields {
	return NameFields{
		IdentityNumber:       uint32((uint64(n) & nameIdentityMask) >> nameIdentityShift),
		ManufacturerCode:     uint16((uint64(n) & nameManufacturerMask) >> nameManufacturerShift),
		ECUInstance:          uint8((uint64(n) & nameECUInstMask) >> nameECUInstShift),
		FunctionInstance:     uint8((uint64(n) & nameFunctionInstMask) >> nameFunctionInstShift),
		Function:             uint8((uint64(n) & nameFunctionMask) >> nameFunctionShift),
		DeviceClass:          uint8((uint64(n) & nameDeviceClassMask) >> nameDeviceClassShift),
		DeviceClassInstance:  uint8((uint64(n) & nameDeviceClassInstMask) >> nameDeviceClassInstShift),
		IndustryGroup:        uint8((uint64(n) & nameIndustryGroupMask) >> nameIndustryGroupShift),
		SelfConfigurableAddr: uint64(n)&nameSelfConfigAddrMask != 0,
	}
}

func (n NAME) IdentityNumber() uint32 {
	return uint32((uint64(n) & nameIdentityMask) >> nameIdentityShift)
}

func (n NAME) ManufacturerCode() uint16 {
	return uint16((uint64(n) & nameManufacturerMask) >> nameManufacturerShift)
}

func (n NAME) ECUInstance() uint8 {
	return uint8((uint64(n) & nameECUInstMask) >> nameECUInstShift)
}

func (n NAME) FunctionInstance() uint8 {
	return uint8((uint64(n) & nameFunctionInstMask) >> nameFunctionInstShift)
}

func (n NAME) Function() uint8 {
	return uint8((uint64(n) & nameFunctionMask) >> nameFunctionShift)
}

func (n NAME) DeviceClass() uint8 {
	return uint8((uint64(n) & nameDeviceClassMask) >> nameDeviceClassShift)
}

func (n NAME) DeviceClassInstance() uint8 {
	return uint8((uint64(n) & nameDeviceClassInstMask) >> nameDeviceClassInstShift)
}

func (n NAME) IndustryGroup() uint8 {
	return uint8((uint64(n) & nameIndustryGroupMask) >> nameIndustryGroupShift)
}

// SelfConfigurableAddress reports whether this controller is allowed to resolve an address
// conflict by moving itself to a different address (true), or must instead send a
// cannot-claim frame and stay off the bus (false).
func (n NAME) SelfConfigurableAddress() bool {
	return uint64(n)&nameSelfConfigAddrMask != 0
}

// HigherPriorityThan reports whether n would win an address contest against other, i.e. n has
// the smaller numeric value. Equal NAMEs never win against each other.
func (n NAME) HigherPriorityThan(other NAME) bool {
	return n < other
}

// Bytes encodes the NAME into its 8-byte little-endian wire payload, as carried in an
// address-claim frame.
func (n NAME) Bytes() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(n))
	return b
}

// NameFromBytes decodes an 8-byte little-endian wire payload into a NAME.
func NameFromBytes(b []byte) (NAME, error) {
	if len(b) != 8 {
		return 0, ErrInvalidArgument
	}
	return NAME(binary.LittleEndian.Uint64(b)), nil
}
