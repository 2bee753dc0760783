package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeAddressClaim(t *testing.T) {
	frame := MakeAddressClaim(NAME(0xa00c81045a20021b), 0x10)

	assert.Equal(t, uint32(0x18EEFF10), frame.CANID())
	assert.Equal(t, uint8(6), frame.Header.Priority)
	assert.Equal(t, PGNAddressClaim, frame.Header.PGN)
	assert.Equal(t, NoAddr, frame.Header.Destination)
	assert.Equal(t, uint8(0x10), frame.Header.Source)
	assert.Equal(t, uint8(8), frame.Length)
	assert.Equal(t, [8]byte{0x1b, 0x02, 0x20, 0x5a, 0x04, 0x81, 0x0c, 0xa0}, frame.Data)

	assert.True(t, frame.IsAddressClaim())
	assert.False(t, frame.IsCannotClaim())
	assert.False(t, frame.IsAddressRequest())
	assert.False(t, frame.IsBroadcast())
}

func TestMakeCannotClaim(t *testing.T) {
	frame := MakeCannotClaim(NAME(0xa00c81045a20021b))

	assert.Equal(t, uint32(0x18EEFFFE), frame.CANID())
	assert.Equal(t, IdleAddr, frame.Header.Source)
	assert.True(t, frame.IsAddressClaim())
	assert.True(t, frame.IsCannotClaim())
}

func TestMakeAddressRequest(t *testing.T) {
	frame := MakeAddressRequest()

	assert.Equal(t, uint32(0x18EAFFFE), frame.CANID())
	assert.Equal(t, uint8(3), frame.Length)
	assert.True(t, frame.IsAddressRequest())

	pgn, err := frame.RequestedPGN()
	require.NoError(t, err)
	assert.Equal(t, PGNAddressClaim, pgn)
}

func TestFrame_NAME(t *testing.T) {
	var testCases = []struct {
		name      string
		frame     Frame
		expect    NAME
		expectErr error
	}{
		{
			name:   "ok, round trips through claim frame",
			frame:  MakeAddressClaim(NAME(0xa00c81045a20021b), 0x10),
			expect: NAME(0xa00c81045a20021b),
		},
		{
			name: "nok, truncated claim data",
			frame: Frame{
				Header: Header{Priority: 6, PGN: PGNAddressClaim, Destination: NoAddr, Source: 0x10},
				Length: 7,
			},
			expectErr: ErrBadHeader,
		},
		{
			name:      "nok, not an address claim frame",
			frame:     MakeAddressRequest(),
			expectErr: ErrInvalidArgument,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			name, err := tc.frame.NAME()
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expect, name)
		})
	}
}

func TestFrame_RequestedPGN(t *testing.T) {
	var testCases = []struct {
		name      string
		frame     Frame
		expect    uint32
		expectErr error
	}{
		{
			name:   "ok, address claim PGN",
			frame:  MakeAddressRequest(),
			expect: PGNAddressClaim,
		},
		{
			name: "nok, wrong data length",
			frame: Frame{
				Header: Header{Priority: 6, PGN: PGNRequest, Destination: NoAddr, Source: IdleAddr},
				Length: 2,
			},
			expectErr: ErrBadHeader,
		},
		{
			name:      "nok, not a request frame",
			frame:     MakeCannotClaim(NAME(1)),
			expectErr: ErrInvalidArgument,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pgn, err := tc.frame.RequestedPGN()
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expect, pgn)
		})
	}
}
