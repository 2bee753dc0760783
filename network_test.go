package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetwork_TryClaim(t *testing.T) {
	var testCases = []struct {
		name          string
		given         func(n *Network)
		claimName     NAME
		claimAddr     uint8
		expect        Outcome
		expectErr     error
		expectNameAt  map[uint8]NAME
		expectAddrFor map[NAME]uint8
	}{
		{
			name:         "ok, free address is inserted",
			claimName:    NAME(0x100),
			claimAddr:    0x10,
			expect:       Inserted,
			expectNameAt: map[uint8]NAME{0x10: NAME(0x100)},
		},
		{
			name: "ok, same pair again is refreshed",
			given: func(n *Network) {
				_, err := n.TryClaim(NAME(0x100), 0x10)
				require.NoError(t, err)
			},
			claimName:    NAME(0x100),
			claimAddr:    0x10,
			expect:       Refreshed,
			expectNameAt: map[uint8]NAME{0x10: NAME(0x100)},
		},
		{
			name: "ok, higher priority name displaces incumbent",
			given: func(n *Network) {
				_, err := n.TryClaim(NAME(0x100), 0x10)
				require.NoError(t, err)
			},
			claimName:    NAME(0x001),
			claimAddr:    0x10,
			expect:       Displaced,
			expectNameAt: map[uint8]NAME{0x10: NAME(0x001)},
		},
		{
			name: "ok, lower priority name is rejected",
			given: func(n *Network) {
				_, err := n.TryClaim(NAME(0x001), 0x10)
				require.NoError(t, err)
			},
			claimName:    NAME(0x100),
			claimAddr:    0x10,
			expect:       Rejected,
			expectNameAt: map[uint8]NAME{0x10: NAME(0x001)},
		},
		{
			name: "ok, bound name claiming a different free address moves",
			given: func(n *Network) {
				_, err := n.TryClaim(NAME(0x100), 0x10)
				require.NoError(t, err)
			},
			claimName:    NAME(0x100),
			claimAddr:    0x11,
			expect:       Inserted,
			expectNameAt: map[uint8]NAME{0x11: NAME(0x100)},
			expectAddrFor: map[NAME]uint8{
				NAME(0x100): 0x11,
			},
		},
		{
			name:      "nok, idle address is not claimable",
			claimName: NAME(0x100),
			claimAddr: IdleAddr,
			expect:    Rejected,
			expectErr: ErrInvalidArgument,
		},
		{
			name:      "nok, null address is not claimable",
			claimName: NAME(0x100),
			claimAddr: NoAddr,
			expect:    Rejected,
			expectErr: ErrInvalidArgument,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			n := NewNetwork()
			if tc.given != nil {
				tc.given(n)
			}

			outcome, err := n.TryClaim(tc.claimName, tc.claimAddr)
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expect, outcome)

			for addr, name := range tc.expectNameAt {
				got, ok := n.FindName(addr)
				require.True(t, ok)
				assert.Equal(t, name, got)
			}
			for name, addr := range tc.expectAddrFor {
				got, ok := n.FindAddress(name)
				require.True(t, ok)
				assert.Equal(t, addr, got)
			}
		})
	}
}

func TestNetwork_TryClaim_DisplacedKeepsLoserRegistered(t *testing.T) {
	n := NewNetwork()

	_, err := n.TryClaim(NAME(0x100), 0x10)
	require.NoError(t, err)

	outcome, err := n.TryClaim(NAME(0x001), 0x10)
	require.NoError(t, err)
	require.Equal(t, Displaced, outcome)

	// loser stays registered without an address
	_, ok := n.FindAddress(NAME(0x100))
	assert.False(t, ok)
	assert.Equal(t, 2, n.NameSize())
	assert.Equal(t, 1, n.AddressSize())
}

func TestNetwork_TryClaim_MovingNameFreesOldAddress(t *testing.T) {
	n := NewNetwork()

	_, err := n.TryClaim(NAME(0x100), 0x10)
	require.NoError(t, err)

	outcome, err := n.TryClaim(NAME(0x100), 0x20)
	require.NoError(t, err)
	require.Equal(t, Inserted, outcome)

	assert.True(t, n.Available(0x10))
	addr, ok := n.FindAddress(NAME(0x100))
	require.True(t, ok)
	assert.Equal(t, uint8(0x20), addr)
	assert.Equal(t, 1, n.AddressSize())
}

func TestNetwork_Register(t *testing.T) {
	n := NewNetwork()

	n.Register(NAME(0x100))
	assert.Equal(t, 1, n.NameSize())
	assert.Equal(t, 0, n.AddressSize())

	// registering a bound name releases its address
	_, err := n.TryClaim(NAME(0x100), 0x10)
	require.NoError(t, err)
	n.Register(NAME(0x100))
	assert.True(t, n.Available(0x10))
	assert.Equal(t, 1, n.NameSize())
}

func TestNetwork_ReleaseAndForget(t *testing.T) {
	n := NewNetwork()

	_, err := n.TryClaim(NAME(0x100), 0x10)
	require.NoError(t, err)

	n.Release(NAME(0x100))
	assert.True(t, n.Available(0x10))
	assert.Equal(t, 1, n.NameSize())
	_, ok := n.FindAddress(NAME(0x100))
	assert.False(t, ok)

	n.Forget(NAME(0x100))
	assert.Equal(t, 0, n.NameSize())

	// releasing or forgetting an unknown name is a no-op
	n.Release(NAME(0x999))
	n.Forget(NAME(0x999))
	assert.Equal(t, 0, n.NameSize())
}

func TestNetwork_Available(t *testing.T) {
	n := NewNetwork()

	assert.True(t, n.Available(0x00))
	assert.True(t, n.Available(MaxUnicastAddr))
	assert.False(t, n.Available(IdleAddr))
	assert.False(t, n.Available(NoAddr))

	_, err := n.TryClaim(NAME(0x100), 0x10)
	require.NoError(t, err)
	assert.False(t, n.Available(0x10))
}

func TestNetwork_FirstFreeAddress(t *testing.T) {
	n := NewNetwork()

	addr, ok := n.FirstFreeAddress(0)
	require.True(t, ok)
	assert.Equal(t, uint8(0), addr)

	for i := 0; i <= 0x10; i++ {
		_, err := n.TryClaim(NAME(i+1), uint8(i))
		require.NoError(t, err)
	}

	addr, ok = n.FirstFreeAddress(0)
	require.True(t, ok)
	assert.Equal(t, uint8(0x11), addr)

	// search wraps around past MaxUnicastAddr back to the bottom of the range
	_, err := n.TryClaim(NAME(0x999), MaxUnicastAddr)
	require.NoError(t, err)
	addr, ok = n.FirstFreeAddress(MaxUnicastAddr)
	require.True(t, ok)
	assert.Equal(t, uint8(0x11), addr)

	// out of range start resets to zero
	addr, ok = n.FirstFreeAddress(NoAddr)
	require.True(t, ok)
	assert.Equal(t, uint8(0x11), addr)
}

func TestNetwork_IsFull(t *testing.T) {
	n := NewNetwork()

	for i := 0; i <= int(MaxUnicastAddr); i++ {
		require.False(t, n.IsFull())
		_, err := n.TryClaim(NAME(i+1), uint8(i))
		require.NoError(t, err)
	}

	assert.True(t, n.IsFull())
	_, ok := n.FirstFreeAddress(0)
	assert.False(t, ok)

	n.Release(NAME(1))
	assert.False(t, n.IsFull())
	addr, ok := n.FirstFreeAddress(0)
	require.True(t, ok)
	assert.Equal(t, uint8(0), addr)
}

func TestNetwork_Clear(t *testing.T) {
	n := NewNetwork()

	_, err := n.TryClaim(NAME(0x100), 0x10)
	require.NoError(t, err)
	n.Register(NAME(0x200))

	n.Clear()
	assert.Equal(t, 0, n.NameSize())
	assert.Equal(t, 0, n.AddressSize())
	assert.True(t, n.Available(0x10))
}
