package bitcoin

// ExpiredTimelock is the derived status of the two relative timelocks that
// bound the maker's risk: cancel_timelock (T1), measured from the lock
// tx's inclusion height, and punish_timelock (T2), measured from the
// cancel tx's inclusion height (spec.md §3 "Timelocks" / GLOSSARY).
type ExpiredTimelock int

const (
	// TimelockNone means neither timelock has expired.
	TimelockNone ExpiredTimelock = iota
	// TimelockCancel means T1 has elapsed but the cancel tx's own T2
	// countdown has not yet started or elapsed.
	TimelockCancel
	// TimelockPunish means T2 has elapsed since the cancel tx confirmed.
	TimelockPunish
)

// String implements fmt.Stringer.
func (t ExpiredTimelock) String() string {
	switch t {
	case TimelockNone:
		return "none"
	case TimelockCancel:
		return "cancel"
	case TimelockPunish:
		return "punish"
	default:
		return "unknown"
	}
}

// CancelStatus derives the cancel/punish status given the lock tx's
// inclusion height, the chain tip, and the two configured timelocks. Until
// the cancel tx is seen on-chain, only TimelockNone/TimelockCancel apply;
// once it is, callers should instead track the punish countdown from the
// cancel tx's own inclusion height via PunishStatus.
func CancelStatus(lockInclusionHeight, tip uint32, cancelTimelock uint32) ExpiredTimelock {
	if tip < lockInclusionHeight {
		return TimelockNone
	}
	elapsed := tip - lockInclusionHeight
	if elapsed >= cancelTimelock {
		return TimelockCancel
	}
	return TimelockNone
}

// PunishStatus derives whether the punish timelock has elapsed, counting
// from the cancel transaction's own inclusion height.
func PunishStatus(cancelInclusionHeight, tip uint32, punishTimelock uint32) ExpiredTimelock {
	if tip < cancelInclusionHeight {
		return TimelockCancel
	}
	elapsed := tip - cancelInclusionHeight
	if elapsed >= punishTimelock {
		return TimelockPunish
	}
	return TimelockCancel
}
