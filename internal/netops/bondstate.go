package netops

import (
	"strings"
)

// zeroMAC is what the bonding driver reports as partner before any LACPDU
// has been received.
const zeroMAC = "00:00:00:00:00:00"

// MemberState is the runtime state of one bond member as reported by
// /proc/net/bonding.
type MemberState struct {
	Name         string
	MIIStatus    string
	AggregatorID string
	FailureCount string
}

// BondState is the parsed runtime state of a bond interface.
type BondState struct {
	Mode            string
	MIIStatus       string
	AggregatorID    string // from the active aggregator section
	PartnerMAC      string
	PartnerKey      string
	PartnerPriority string
	Members         []MemberState
}

// ActiveMembers counts members whose MII status is up.
func (s *BondState) ActiveMembers() int {
	n := 0
	for _, m := range s.Members {
		if m.MIIStatus == "up" {
			n++
		}
	}
	return n
}

// PartnerDetected reports whether the switch has identified itself in LACP
// negotiation. A zero partner MAC means no LACPDU has arrived.
func (s *BondState) PartnerDetected() bool {
	return s.PartnerMAC != "" && s.PartnerMAC != zeroMAC
}

// ReadBondState reads and parses the bonding driver's runtime state for a
// bond interface.
func ReadBondState(t Transport, bondName string) (*BondState, error) {
	text, err := t.ReadFile(ProcBondingPath(bondName))
	if err != nil {
		return nil, err
	}
	return ParseBondState(text), nil
}

// ParseBondState parses /proc/net/bonding/<bond> text. The format is
// line-oriented "Key: value" with per-member sections introduced by
// "Slave Interface:". Keys before the first member section belong to the
// bond (and, for 802.3ad, the active aggregator).
func ParseBondState(text string) *BondState {
	state := &BondState{}
	var member *MemberState
	inPartnerPDU := false

	flush := func() {
		if member != nil {
			state.Members = append(state.Members, *member)
			member = nil
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Slave Interface":
			flush()
			member = &MemberState{Name: value}
			inPartnerPDU = false
			continue
		case "details partner lacp pdu":
			inPartnerPDU = true
			continue
		case "details actor lacp pdu":
			inPartnerPDU = false
			continue
		}

		if member == nil {
			switch key {
			case "Bonding Mode":
				state.Mode = value
			case "MII Status":
				state.MIIStatus = value
			case "Aggregator ID":
				state.AggregatorID = value
			case "Partner Mac Address":
				state.PartnerMAC = strings.ToLower(value)
			case "Partner Key":
				state.PartnerKey = value
			}
			continue
		}

		if inPartnerPDU {
			// Partner identity also appears per member; prefer it when the
			// aggregate section did not carry one.
			switch key {
			case "system mac address":
				if state.PartnerMAC == "" || state.PartnerMAC == zeroMAC {
					state.PartnerMAC = strings.ToLower(value)
				}
			case "system priority":
				state.PartnerPriority = value
			case "oper key":
				if state.PartnerKey == "" {
					state.PartnerKey = value
				}
			}
			continue
		}

		switch key {
		case "MII Status":
			member.MIIStatus = value
		case "Aggregator ID":
			member.AggregatorID = value
		case "Link Failure Count":
			member.FailureCount = value
		}
	}
	flush()
	return state
}
