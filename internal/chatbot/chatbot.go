// Package chatbot models the counterpart on the far side of the
// engagement. Real deployments bridge to a live channel; tests and dry
// runs use the scripted bot.
package chatbot

import (
	"sync"
)

// Reply is one counterpart turn plus the simulation's ground truth about
// it. The truth fields never cross the wire; harnesses use them to check
// what the analyst should have seen.
type Reply struct {
	Message            string
	DelayMs            int
	TacticsUsed        []string // ground truth for detection checks
	GrantsRequest      bool     // counterpart conceded what we asked
	SuspectsAutomation bool     // counterpart doubts it talks to a person
}

// Responder produces the counterpart's next turn.
type Responder interface {
	Respond(message string) Reply
}

// Step is one scripted exchange.
type Step struct {
	Reply Reply
}

// ScriptedBot replays a fixed script. Once the script runs out it repeats
// the final step, so long engagements never block a harness.
type ScriptedBot struct {
	mu       sync.Mutex
	steps    []Step
	pos      int
	received []string
}

// NewScripted builds a bot over the given script.
func NewScripted(steps ...Step) *ScriptedBot {
	return &ScriptedBot{steps: steps}
}

// Respond records the incoming message and returns the next scripted turn.
func (b *ScriptedBot) Respond(message string) Reply {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.received = append(b.received, message)

	if len(b.steps) == 0 {
		return Reply{Message: "I have nothing further to add."}
	}
	step := b.steps[b.pos]
	if b.pos < len(b.steps)-1 {
		b.pos++
	}
	return step.Reply
}

// Received returns everything sent to the bot, in order.
func (b *ScriptedBot) Received() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.received...)
}

// Exhausted reports whether the script reached its final step.
func (b *ScriptedBot) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.steps) == 0 || b.pos == len(b.steps)-1
}
