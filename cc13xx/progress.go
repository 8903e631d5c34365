package cc13xx

import "fmt"

type Phase int

const (
	PhasePlan Phase = iota
	PhaseErase
	PhaseWrite
	PhaseVerify
	PhaseRun
)

func (p Phase) String() string {
	switch p {
	case PhasePlan:
		return "plan"
	case PhaseErase:
		return "erase"
	case PhaseWrite:
		return "write"
	case PhaseVerify:
		return "verify"
	case PhaseRun:
		return "run"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Progress is emitted after every erased sector, written chunk and verified
// range. Done and Total count sectors during erase and bytes otherwise.
type Progress struct {
	Phase   Phase
	Address uint32
	Done    int
	Total   int
}

func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Done) * 100 / float64(p.Total)
}

func (p Progress) String() string {
	return fmt.Sprintf("%s %#08x %d/%d (%.1f%%)", p.Phase, p.Address, p.Done, p.Total, p.Percent())
}
