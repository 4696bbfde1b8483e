package bond

import "fmt"

// maxSubsetSize caps the subordinate-set size swept in full-permutation
// mode. Beyond four members the matrix explodes without telling us anything
// new about switch interoperability.
const maxSubsetSize = 4

// EnumerateOptions controls configuration enumeration.
type EnumerateOptions struct {
	// Reduced emits only the maximal interface set per mode at the normal
	// monitor interval, for fast smoke checks.
	Reduced bool

	// Modes restricts enumeration to the given modes. Empty means all seven.
	Modes []Mode

	// NamePrefix names generated bonds NamePrefix0, NamePrefix1, ...
	// Defaults to "bondvet".
	NamePrefix string
}

// Enumerate generates the ordered candidate set of bonding configurations
// for the given eligible interfaces. The output is deterministic: the same
// interface list yields the same sequence, so results are comparable across
// runs. Fewer than two interfaces yields an empty (non-error) sequence.
func Enumerate(interfaces []string, opts EnumerateOptions) []Config {
	if len(interfaces) < 2 {
		return nil
	}

	modes := opts.Modes
	if len(modes) == 0 {
		modes = AllModes
	}
	prefix := opts.NamePrefix
	if prefix == "" {
		prefix = "bondvet"
	}

	var configs []Config
	add := func(mode Mode, members []string, mii MIIInterval, rate LACPRate) {
		c := Config{
			Name:       fmt.Sprintf("%s%d", prefix, len(configs)),
			Mode:       mode,
			Interfaces: append([]string(nil), members...),
			MIIMon:     mii,
			LACPRate:   rate,
		}
		if mode == ModeActiveBackup {
			c.Primary = members[0]
		}
		if mode.IsLACP() {
			c.XmitHashPolicy = "layer2"
		}
		configs = append(configs, c)
	}

	if opts.Reduced {
		for _, mode := range modes {
			add(mode, interfaces, MIINormal, RateSlow)
		}
		return configs
	}

	max := len(interfaces)
	if max > maxSubsetSize {
		max = maxSubsetSize
	}
	for size := 2; size <= max; size++ {
		for _, members := range combinations(interfaces, size) {
			for _, mode := range modes {
				rates := []LACPRate{RateSlow}
				if mode.IsLACP() {
					rates = []LACPRate{RateSlow, RateFast}
				}
				for _, rate := range rates {
					for _, mii := range MIIIntervals {
						add(mode, members, mii, rate)
					}
				}
			}
		}
	}
	return configs
}

// combinations returns all k-element subsets of items, preserving input
// order within each subset and emitting subsets in lexicographic index
// order.
func combinations(items []string, k int) [][]string {
	var out [][]string
	n := len(items)
	if k > n || k <= 0 {
		return out
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		subset := make([]string, k)
		for i, j := range idx {
			subset[i] = items[j]
		}
		out = append(out, subset)

		// advance indices, rightmost first
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
