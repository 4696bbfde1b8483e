package netops

import (
	"fmt"
	"sort"
	"strings"
)

// excludedPrefixes are interface name prefixes never eligible for bonding
// tests: loopback, container/VM plumbing, tunnels, and existing aggregates.
var excludedPrefixes = []string{
	"lo", "docker", "br-", "virbr", "veth", "vnet", "tun", "tap",
	"bond", "team", "wg",
}

func isExcludedName(name string) bool {
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// DiscoverInterfaces returns the host's eligible physical interfaces in
// deterministic name order. An interface is eligible when it is not
// loopback/virtual, not a bond and not currently enslaved, and has link
// detected. restrict, when non-empty, bypasses name filtering and considers
// exactly the named interfaces (they still must exist and have link).
func DiscoverInterfaces(t Transport, restrict []string) ([]InterfaceInfo, error) {
	var candidates []string
	if len(restrict) > 0 {
		candidates = append(candidates, restrict...)
	} else {
		names, err := t.LinkNames()
		if err != nil {
			return nil, fmt.Errorf("interface discovery failed: %w", err)
		}
		for _, name := range names {
			if !isExcludedName(name) {
				candidates = append(candidates, name)
			}
		}
	}
	sort.Strings(candidates)

	var out []InterfaceInfo
	for _, name := range candidates {
		attrs, err := t.LinkAttrs(name)
		if err != nil {
			if len(restrict) > 0 {
				return nil, fmt.Errorf("requested interface %s: %w", name, err)
			}
			continue
		}
		if attrs.IsBond || attrs.Master != "" {
			continue
		}

		info, err := t.InterfaceDetails(name)
		if err != nil {
			continue
		}
		if !info.LinkDetected {
			continue
		}
		out = append(out, *info)
	}
	return out, nil
}

// InterfaceNames projects discovered interfaces onto their names.
func InterfaceNames(infos []InterfaceInfo) []string {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}
