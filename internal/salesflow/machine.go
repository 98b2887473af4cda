package salesflow

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is the position of a call in the sales process. Phases only move
// forward for the lifetime of a session.
type Phase string

const (
	PhaseDiscovery          Phase = "DISCOVERY"
	PhaseUnderwritingSync   Phase = "UNDERWRITING_SYNC"
	PhaseOfferStage         Phase = "OFFER_STAGE"
	PhaseClosingWalkthrough Phase = "CLOSING_WALKTHROUGH"
	PhaseCompleted          Phase = "COMPLETED"
)

// Pillar names one of the four discovery facts that must all be established
// before pricing may be discussed.
type Pillar string

const (
	PillarMotivation  Pillar = "motivation"
	PillarTimeline    Pillar = "timeline"
	PillarCondition   Pillar = "condition"
	PillarPriceAnchor Pillar = "priceAnchor"
)

// pillarOrder is the fixed priority order used by MissingPillar when the
// persona needs to deflect an early price question.
var pillarOrder = []Pillar{PillarMotivation, PillarTimeline, PillarCondition, PillarPriceAnchor}

// Refusal reasons. Callers branch on these with errors.Is, so each guard
// failure has its own sentinel.
var (
	ErrUnknownPillar      = errors.New("salesflow: unknown pillar")
	ErrUnderwritingNotDue = errors.New("salesflow: underwriting not ready")
	ErrOfferNotPermitted  = errors.New("salesflow: offer gate closed")
	ErrOfferNotRevealed   = errors.New("salesflow: offer not revealed")
)

// Machine is the authoritative gate on the persona's ability to disclose an
// offer. One instance per session; methods are safe for concurrent use.
type Machine struct {
	mu sync.Mutex

	phase   Phase
	pillars map[Pillar]bool

	discoveryComplete    bool
	underwritingComplete bool
	offerRevealed        bool
	priceAgreed          bool
}

// New returns a machine in DISCOVERY with no pillars satisfied.
func New() *Machine {
	return &Machine{
		phase: PhaseDiscovery,
		pillars: map[Pillar]bool{
			PillarMotivation:  false,
			PillarTimeline:    false,
			PillarCondition:   false,
			PillarPriceAnchor: false,
		},
	}
}

// UpdatePillar records that the conversation-understanding layer has (or has
// not) established one of the four pillars. When all four become true while
// still in DISCOVERY the machine advances to UNDERWRITING_SYNC on its own;
// this is the only automatic transition.
func (m *Machine) UpdatePillar(name Pillar, satisfied bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pillars[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPillar, name)
	}
	m.pillars[name] = satisfied
	if m.phase == PhaseDiscovery && m.allPillarsLocked() {
		m.discoveryComplete = true
		m.phase = PhaseUnderwritingSync
	}
	return nil
}

// CompleteUnderwriting marks the numbers review done. Valid only while in
// UNDERWRITING_SYNC; refused with ErrUnderwritingNotDue otherwise, leaving
// state untouched.
func (m *Machine) CompleteUnderwriting() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseUnderwritingSync {
		return fmt.Errorf("%w: phase=%s", ErrUnderwritingNotDue, m.phase)
	}
	m.underwritingComplete = true
	m.phase = PhaseOfferStage
	return nil
}

// CanRevealOffer reports whether the persona may disclose pricing. It is
// side-effect-free and may be polled freely.
func (m *Machine) CanRevealOffer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discoveryComplete &&
		m.allPillarsLocked() &&
		m.underwritingComplete &&
		m.phase == PhaseOfferStage
}

// RevealOffer records that the offer was actually disclosed. It does not
// change phase.
func (m *Machine) RevealOffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !(m.discoveryComplete && m.allPillarsLocked() && m.underwritingComplete && m.phase == PhaseOfferStage) {
		return fmt.Errorf("%w: phase=%s", ErrOfferNotPermitted, m.phase)
	}
	m.offerRevealed = true
	return nil
}

// AgreeToPrice records seller acceptance and moves to the closing walkthrough.
func (m *Machine) AgreeToPrice() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.offerRevealed {
		return ErrOfferNotRevealed
	}
	m.priceAgreed = true
	m.phase = PhaseClosingWalkthrough
	return nil
}

// CompleteClosing moves to the terminal COMPLETED phase unconditionally.
func (m *Machine) CompleteClosing() {
	m.mu.Lock()
	m.phase = PhaseCompleted
	m.mu.Unlock()
}

// MissingPillar returns the first unmet pillar in priority order, or "" when
// all four are satisfied. Used to steer a deflection when the seller pushes
// for a number early.
func (m *Machine) MissingPillar() Pillar {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pillarOrder {
		if !m.pillars[p] {
			return p
		}
	}
	return ""
}

// Snapshot is a point-in-time copy of the machine for serving to clients.
type Snapshot struct {
	Phase                Phase           `json:"phase"`
	Pillars              map[Pillar]bool `json:"pillars"`
	DiscoveryComplete    bool            `json:"discoveryComplete"`
	UnderwritingComplete bool            `json:"underwritingComplete"`
	OfferRevealed        bool            `json:"offerRevealed"`
	PriceAgreed          bool            `json:"priceAgreed"`
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	pillars := make(map[Pillar]bool, len(m.pillars))
	for k, v := range m.pillars {
		pillars[k] = v
	}
	return Snapshot{
		Phase:                m.phase,
		Pillars:              pillars,
		DiscoveryComplete:    m.discoveryComplete,
		UnderwritingComplete: m.underwritingComplete,
		OfferRevealed:        m.offerRevealed,
		PriceAgreed:          m.priceAgreed,
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Machine) allPillarsLocked() bool {
	for _, p := range pillarOrder {
		if !m.pillars[p] {
			return false
		}
	}
	return true
}
