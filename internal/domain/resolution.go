package domain

// ResolutionTag describes how a recipient's holding account was resolved.
type ResolutionTag int

const (
	// AlreadyExisted means no creation is needed: the holding account was
	// found on the ledger or an earlier entry of the chunk creates it.
	AlreadyExisted ResolutionTag = iota
	// Created means a creation directive was emitted.
	Created
	// RaceLost means another actor created the account between
	// resolution and submission; the creation directive was dropped.
	RaceLost
)

// String returns a human-readable representation of the tag.
func (t ResolutionTag) String() string {
	switch t {
	case AlreadyExisted:
		return "already-existed"
	case Created:
		return "created"
	case RaceLost:
		return "race-lost"
	default:
		return "unknown"
	}
}

// Resolution is the result of resolving one recipient's holding account.
// Create is non-nil iff Tag is Created.
type Resolution struct {
	Recipient Address
	Address   Address
	Create    *Directive
	Tag       ResolutionTag
}

// LoseRace retags every Created resolution as RaceLost and drops its
// creation directive. It is applied once an envelope was confirmed only
// after its creations were removed.
func LoseRace(res []Resolution) {
	for i := range res {
		if res[i].Tag == Created {
			res[i].Tag = RaceLost
			res[i].Create = nil
		}
	}
}

// CountTag returns how many resolutions carry tag.
func CountTag(res []Resolution, tag ResolutionTag) int {
	n := 0
	for _, r := range res {
		if r.Tag == tag {
			n++
		}
	}
	return n
}

// SourceState is the custodial side of a run.
type SourceState struct {
	Holding        Address
	HoldingCreated bool
	Pool           Address
	PoolRegistered bool
	PoolCreated    bool
}

// MintInfo describes a mint as read from the ledger.
type MintInfo struct {
	TokenProgram Address
	Decimals     uint8
}
