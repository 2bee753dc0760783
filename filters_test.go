package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameFilters(t *testing.T) {
	claim := MakeAddressClaim(NAME(0x100), 0x10)
	request := MakeAddressRequest()
	payload := Frame{
		Header: Header{Priority: 3, PGN: 61444, Source: 0x28},
		Length: 8,
	}

	var testCases = []struct {
		name   string
		filter FrameFilter
		frame  Frame
		expect bool
	}{
		{name: "ok, ByPGN matches", filter: ByPGN(PGNAddressClaim), frame: claim, expect: true},
		{name: "nok, ByPGN rejects other PGN", filter: ByPGN(PGNAddressClaim), frame: request, expect: false},
		{name: "ok, ByPGNs matches any listed", filter: ByPGNs(PGNAddressClaim, PGNRequest), frame: request, expect: true},
		{name: "nok, ByPGNs rejects unlisted", filter: ByPGNs(PGNAddressClaim, PGNRequest), frame: payload, expect: false},
		{name: "ok, BySource matches", filter: BySource(0x10), frame: claim, expect: true},
		{name: "nok, BySource rejects", filter: BySource(0x11), frame: claim, expect: false},
		{name: "ok, ByDestination matches global", filter: ByDestination(NoAddr), frame: claim, expect: true},
		{name: "ok, BroadcastOnly accepts PDU2", filter: BroadcastOnly(), frame: payload, expect: true},
		{name: "nok, BroadcastOnly rejects PDU1", filter: BroadcastOnly(), frame: claim, expect: false},
		{name: "ok, DirectedOnly accepts PDU1", filter: DirectedOnly(), frame: claim, expect: true},
		{name: "ok, And requires all", filter: And(ByPGN(PGNAddressClaim), BySource(0x10)), frame: claim, expect: true},
		{name: "nok, And fails on one mismatch", filter: And(ByPGN(PGNAddressClaim), BySource(0x11)), frame: claim, expect: false},
		{name: "ok, empty And accepts everything", filter: And(), frame: payload, expect: true},
		{name: "ok, Or requires one", filter: Or(ByPGN(PGNRequest), BySource(0x10)), frame: claim, expect: true},
		{name: "nok, empty Or accepts nothing", filter: Or(), frame: payload, expect: false},
		{name: "ok, Not inverts", filter: Not(BroadcastOnly()), frame: claim, expect: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.filter(tc.frame))
		})
	}
}
