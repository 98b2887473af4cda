package script

import "fmt"

// Gate is one ordered checkpoint in the reference script a trainee is
// expected to hit. Definitions are immutable at runtime.
type Gate struct {
	Index         int // 1-based position within the script
	ShortName     string
	FullName      string
	ReferenceText string
}

// Script modes. Each mode selects a different ordered gate list.
const (
	ModePrimary   = "primary"
	ModeSecondary = "secondary"
)

// primaryGates is the full acquisition script (8 gates).
var primaryGates = []Gate{
	{1, "rapport", "Opening & Rapport",
		"Hey, thanks for taking my call. I saw the property on Maple and wanted to learn a little about your situation before anything else."},
	{2, "motivation", "Motivation Discovery",
		"Help me understand what's got you thinking about selling. What would a sale actually solve for you?"},
	{3, "condition", "Property Condition Walkthrough",
		"Walk me through the house like I'm standing in the doorway. Roof, HVAC, kitchen, baths. What's been updated and what hasn't?"},
	{4, "timeline", "Timeline & Urgency",
		"If we came to an agreement, when would you realistically want to be done and moved out?"},
	{5, "anchor", "Price Expectation Anchor",
		"I know you've probably got a number in mind. If I could close on your timeline, what would you need to walk away with?"},
	{6, "recap", "Underwriting Recap",
		"Let me play back what I heard so my numbers team works off the same picture: the condition, your timeline, and where you need to land."},
	{7, "offer", "Offer Presentation",
		"Based on everything you shared, here's where we can be. Let me break down how I got to that number."},
	{8, "close", "Close & Next Steps",
		"If that works for you, the next step is a simple one-page agreement and I'll get title opened today."},
}

// secondaryGates is the condensed follow-up script (5 gates).
var secondaryGates = []Gate{
	{1, "reconnect", "Reconnect & Recap",
		"Good to talk again. Last time we covered your situation; let me make sure nothing has changed since then."},
	{2, "motivation", "Motivation Check",
		"Is the reason for selling still the same, or has anything shifted on your end?"},
	{3, "timeline", "Timeline Confirmation",
		"Are we still looking at the same timeline we discussed, or do you need more or less runway?"},
	{4, "offer", "Offer Review",
		"Here's the offer again and exactly how we got there. Tell me what's sitting right and what isn't."},
	{5, "close", "Commitment & Close",
		"If we're aligned, let's get the agreement signed today and lock your closing date in."},
}

// GatesFor returns the ordered gate list for the given mode. An unknown mode
// is a misconfiguration, not a runtime condition, so it panics.
func GatesFor(mode string) []Gate {
	switch mode {
	case ModePrimary:
		return primaryGates
	case ModeSecondary:
		return secondaryGates
	default:
		panic(fmt.Sprintf("script: unknown mode %q", mode))
	}
}

// Count returns the number of gates in the given mode's script.
func Count(mode string) int { return len(GatesFor(mode)) }
