package procscan

import "sort"

// ProcessRecord is a single entry of the OS process listing.
type ProcessRecord struct {
	PID         int    `json:"pid"`
	CommandLine string `json:"command_line"`
}

// PortOwnership maps a listening TCP port to the pid that owns it.
type PortOwnership map[int]int

// OwnersByPID inverts the mapping into owner pid -> ports. Only used for display.
func (p PortOwnership) OwnersByPID() map[int][]int {
	out := make(map[int][]int)
	for port, pid := range p {
		out[pid] = append(out[pid], port)
	}
	for pid := range out {
		sort.Ints(out[pid])
	}
	return out
}
