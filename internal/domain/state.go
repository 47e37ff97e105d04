package domain

// Phase is the pricing phase of an instrument.
type Phase string

// Instrument phases. The transition is one-way.
const (
	PhasePreGraduation Phase = "pre_graduation"
	PhaseGraduated     Phase = "graduated"
)

// CurveState is the bonding-curve state of one instrument.
// Frozen once Graduated is set; PoolState is authoritative from then on.
type CurveState struct {
	SolRaised uint64 // net lamports deposited into the curve
	Graduated bool
}

// PoolState is the constant-product pool seeded at graduation.
type PoolState struct {
	Address        string // program derived pool address
	TokenReserve   uint64 // token base units
	SolReserve     uint64 // lamports
	ResidualTokens uint64 // curve supply not placed in the pool at graduation
	ResidualSol    uint64 // raised SOL not placed in the pool at graduation
	GraduatedAt    int64  // Unix timestamp (ms)
}

// InstrumentState is the full mutable state of one instrument.
// Values are treated as immutable: every mutation produces a new copy via Clone.
type InstrumentState struct {
	Instrument   string // mint address
	Creator      string // creator wallet, receives creator fees
	Phase        Phase
	Curve        CurveState
	Pool         *PoolState // nil until graduation
	CreatorFees  uint64     // cumulative lamports
	PlatformFees uint64     // cumulative lamports
	TradeCount   uint64     // sequence of the last applied trade
	CreatedAt    int64      // Unix timestamp (ms)
	UpdatedAt    int64      // Unix timestamp (ms)
}

// IsGraduated reports whether the instrument trades against its pool.
func (s *InstrumentState) IsGraduated() bool {
	return s.Phase == PhaseGraduated
}

// Clone returns a deep copy of the state.
func (s *InstrumentState) Clone() *InstrumentState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Pool != nil {
		p := *s.Pool
		c.Pool = &p
	}
	return &c
}
