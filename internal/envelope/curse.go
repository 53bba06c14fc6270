package envelope

// CurseInputs carries everything the curse-rule evaluation of §4.2.3 needs
// about one candidate inscription's position, independent of its content.
type CurseInputs struct {
	InputIndex      int  // position of the carrying input within the tx
	InputOffset     uint64 // offset of the inscription within that input's sat range
	IsFirstInput    bool
	IsOffsetZero    bool
	IsReinscription bool // a prior inscription already occupies this absolute offset
	// IsFirstReinscriptionOnBlessed is true when this is the first
	// reinscription landing on an offset whose initial inscription was
	// itself cursed — the one case §4.2.3 exempts from the curse.
	IsFirstReinscriptionOnBlessed bool
	UnrecognizedEvenField bool
	IsUnbound       bool // carried by a zero-value input, or pointer steers off a real output
}

// IsCursed applies §4.2.3's curse rules in priority order. A reinscription is
// cursed unless it is the first reinscription landing on an initial
// inscription that was itself cursed — that one exception is blessed, every
// other reinscription (including later ones at the same offset) stays
// cursed.
func IsCursed(in CurseInputs) bool {
	switch {
	case in.UnrecognizedEvenField:
		return true
	case !in.IsFirstInput:
		return true
	case !in.IsOffsetZero:
		return true
	case in.IsUnbound:
		return true
	case in.IsReinscription:
		return !in.IsFirstReinscriptionOnBlessed
	default:
		return false
	}
}
