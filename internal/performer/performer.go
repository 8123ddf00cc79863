// Package performer drafts candidate replies in a configured persona and
// tracks the emotional state machine that shades them. All transitions are
// pure: the current PerformerState goes in, the next one comes out.
package performer

// #region imports
import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

// #endregion

// #region context

// Guidance is the analyst's steer for the next reply.
type Guidance struct {
	Emphasize []string // points the core message should carry
	Avoid     []string // phrases that must not appear
}

// ResponseContext is everything the performer needs for one draft.
type ResponseContext struct {
	IncomingMessage string
	Objective       string // what this reply is trying to achieve
	Guidance        Guidance
}

// Result is one drafted reply plus the next performer state.
type Result struct {
	Message    string
	Improvised bool
	Confidence float64
	Next       symbol.PerformerState
}

// #endregion context

// #region performer

// Performer holds persona configuration. State lives in the symbol and is
// passed through GenerateResponse.
type Performer struct {
	cfg symbol.PerformerConfig
}

// New creates a performer for the given configuration.
func New(cfg symbol.PerformerConfig) *Performer {
	return &Performer{cfg: cfg}
}

// GenerateResponse evolves the emotional state from the incoming message,
// drafts the three-part reply, applies style transforms, and scores
// persona consistency and confidence.
func (p *Performer) GenerateResponse(state symbol.PerformerState, ctx ResponseContext) Result {
	next := state
	next.Emotional = p.evolveEmotion(state.Emotional, ctx.IncomingMessage)

	core := p.buildCore(ctx)
	msg := p.assemble(next.Emotional.Mood, core)
	msg = p.applyStyle(msg)

	improvised := containsAvoided(core, ctx.Guidance.Avoid)
	if improvised {
		next.Improvisations = state.Improvisations + 1
	}

	msgScore := p.consistencyScore(msg)
	// Half-memory smoothing: the running score is the average of the prior
	// running score and this message's score.
	next.ConsistencyScore = (state.ConsistencyScore + msgScore) / 2

	confidence := 0.8
	if next.Emotional.Intensity > 0.7 {
		confidence -= 0.1
	}
	confidence *= next.ConsistencyScore
	confidence = math.Min(1.0, math.Max(0.3, confidence))

	return Result{
		Message:    msg,
		Improvised: improvised,
		Confidence: confidence,
		Next:       next,
	}
}

// #endregion performer

// #region emotion

// triggerKeywords maps each trigger category to the phrases that fire it.
var triggerKeywords = map[symbol.TriggerCategory][]string{
	symbol.TriggerRejection: {
		"we can't", "we cannot", "unable to", "not possible", "denied",
		"declined", "no exceptions", "against policy", "won't be able",
	},
	symbol.TriggerDelay: {
		"please wait", "please hold", "still processing", "takes time",
		"business days", "escalated to", "get back to you", "be patient",
	},
	symbol.TriggerResolution: {
		"we can offer", "approved", "processed your", "good news",
		"resolved", "refund has been", "credit has been", "happy to confirm",
	},
	symbol.TriggerDismissal: {
		"as i said", "as previously stated", "already told you",
		"nothing more", "is there anything else", "final answer",
	},
	symbol.TriggerEmpathy: {
		"i understand", "i'm sorry", "i am sorry", "apologize",
		"appreciate your patience", "i hear you", "that must be",
	},
}

// evolveEmotion applies configured rules for every trigger matched in the
// incoming message, then lets patience recover naturally.
func (p *Performer) evolveEmotion(e symbol.EmotionalState, incoming string) symbol.EmotionalState {
	lower := strings.ToLower(incoming)

	for _, rule := range p.cfg.EvolutionRules {
		if !matchesTrigger(lower, rule.Trigger) {
			continue
		}
		e.Mood = rule.Mood
		e.Intensity = clamp01(rule.Intensity)
		e.Patience = clamp01(e.Patience * rule.PatienceFactor)
		e.Trust = clamp01(e.Trust * rule.TrustFactor)
	}

	// Natural recovery: patience drifts back toward 1.0 regardless of
	// triggers.
	e.Patience = clamp01(e.Patience + 0.02)

	return e
}

func matchesTrigger(lower string, trigger symbol.TriggerCategory) bool {
	for _, kw := range triggerKeywords[trigger] {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// #endregion emotion

// #region assembly

var acknowledgments = map[symbol.Mood]string{
	symbol.MoodNeutral:    "Thanks for the reply.",
	symbol.MoodHopeful:    "I appreciate you looking into this.",
	symbol.MoodFrustrated: "Honestly, this is getting frustrating.",
	symbol.MoodSatisfied:  "Good, that's what I was hoping to hear.",
	symbol.MoodResigned:   "Alright, if that's how it is.",
}

var closings = map[symbol.Mood]string{
	symbol.MoodNeutral:    "Let me know where we stand.",
	symbol.MoodHopeful:    "I'm hopeful we can sort this out today.",
	symbol.MoodFrustrated: "I'd like this resolved without more back and forth.",
	symbol.MoodSatisfied:  "Thanks for moving this forward.",
	symbol.MoodResigned:   "Just tell me what the next step is.",
}

// buildCore derives the core message from the objective plus any emphasize
// hints.
func (p *Performer) buildCore(ctx ResponseContext) string {
	core := ctx.Objective
	if core == "" {
		core = "I still need a clear answer on my original request."
	}
	for _, hint := range ctx.Guidance.Emphasize {
		core += " " + hint
	}
	return strings.TrimSpace(core)
}

// assemble joins acknowledgment, core, and closing for the current mood.
func (p *Performer) assemble(mood symbol.Mood, core string) string {
	ack, ok := acknowledgments[mood]
	if !ok {
		ack = acknowledgments[symbol.MoodNeutral]
	}
	closing, ok := closings[mood]
	if !ok {
		closing = closings[symbol.MoodNeutral]
	}
	return ack + " " + core + " " + closing
}

func containsAvoided(core string, avoid []string) bool {
	lower := strings.ToLower(core)
	for _, phrase := range avoid {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// #endregion assembly

// #region style

// contractionPairs maps formal forms to contractions. Applied forward when
// the style uses contractions, reversed when it doesn't.
var contractionPairs = [][2]string{
	{"do not", "don't"},
	{"cannot", "can't"},
	{"will not", "won't"},
	{"i am", "I'm"},
	{"it is", "it's"},
	{"that is", "that's"},
	{"i would", "I'd"},
	{"i have", "I've"},
}

// formalSubstitutions upshift casual wording when the style is formal.
var formalSubstitutions = [][2]string{
	{"sort this out", "resolve this matter"},
	{"get back to me", "respond at your earliest convenience"},
	{"thanks", "thank you"},
	{"ok", "very well"},
}

// casualSubstitutions downshift stiff wording when the style is casual.
var casualSubstitutions = [][2]string{
	{"resolve this matter", "sort this out"},
	{"at your earliest convenience", "soon"},
	{"i require", "I need"},
	{"furthermore", "also"},
}

// fillerPhrases pad a reply that falls under the minimum word count.
var fillerPhrases = []string{
	"Just so we're on the same page.",
	"I want to make sure this is clearly understood.",
	"To be clear about where things stand from my side.",
}

// applyStyle runs contraction handling, formality substitutions, and the
// word-count clamp, in that order.
func (p *Performer) applyStyle(msg string) string {
	style := p.cfg.Style

	if style.UseContractions {
		for _, pair := range contractionPairs {
			msg = replaceFold(msg, pair[0], pair[1])
		}
	} else {
		for _, pair := range contractionPairs {
			msg = replaceFold(msg, pair[1], pair[0])
		}
	}

	switch style.Formality {
	case symbol.FormalityFormal:
		for _, sub := range formalSubstitutions {
			msg = replaceFold(msg, sub[0], sub[1])
		}
	case symbol.FormalityCasual:
		for _, sub := range casualSubstitutions {
			msg = replaceFold(msg, sub[0], sub[1])
		}
	}

	return clampLength(msg, style.MinWords, style.MaxWords)
}

// replaceFold replaces case-insensitively. The replacement keeps its own
// casing except that a match opening with a capital passes it on, so a
// substitution at a sentence start stays capitalized.
func replaceFold(s, old, new string) string {
	lower := strings.ToLower(s)
	oldLower := strings.ToLower(old)
	var b strings.Builder
	for {
		i := strings.Index(lower, oldLower)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(matchCase(s[i:i+len(old)], new))
		s = s[i+len(old):]
		lower = lower[i+len(oldLower):]
	}
}

// matchCase uppercases the first rune of repl when matched leads with one.
func matchCase(matched, repl string) string {
	if matched == "" || repl == "" {
		return repl
	}
	lead, _ := utf8.DecodeRuneInString(matched)
	if !unicode.IsUpper(lead) {
		return repl
	}
	first, size := utf8.DecodeRuneInString(repl)
	return string(unicode.ToUpper(first)) + repl[size:]
}

// clampLength pads with filler below min words and truncates above max.
func clampLength(msg string, minWords, maxWords int) string {
	words := strings.Fields(msg)
	if maxWords > 0 && len(words) > maxWords {
		return strings.Join(words[:maxWords], " ")
	}
	for i := 0; minWords > 0 && len(words) < minWords && i < len(fillerPhrases); i++ {
		msg = msg + " " + fillerPhrases[i]
		words = strings.Fields(msg)
	}
	return msg
}

// #endregion style

// #region consistency

// jargonTerms flag technical language a novice persona wouldn't use.
var jargonTerms = []string{
	"api", "backend", "sla", "latency", "idempotent", "regression",
	"escalation matrix", "root cause", "throughput",
}

// formalMarkers and casualMarkers detect register for the formality check.
var formalMarkers = []string{"furthermore", "at your earliest convenience", "resolve this matter", "i require", "very well"}
var casualMarkers = []string{"gonna", "wanna", "yeah", "ok ", "sort this out"}

// consistencyScore starts at 1.0 and subtracts a penalty per persona
// mismatch in the finished message.
func (p *Performer) consistencyScore(msg string) float64 {
	style := p.cfg.Style
	lower := strings.ToLower(msg)
	score := 1.0

	hasContractions := strings.Contains(msg, "'")
	if style.UseContractions && !hasContractions {
		score -= 0.1
	}
	if !style.UseContractions && hasContractions {
		score -= 0.15
	}

	if style.Formality == symbol.FormalityCasual && containsAny(lower, formalMarkers) {
		score -= 0.15
	}
	if style.Formality == symbol.FormalityFormal && containsAny(lower, casualMarkers) {
		score -= 0.15
	}

	wordCount := len(strings.Fields(msg))
	if style.MinWords > 0 && wordCount < style.MinWords {
		score -= 0.1
	}
	if style.MaxWords > 0 && wordCount > style.MaxWords {
		score -= 0.1
	}

	if p.cfg.Persona.KnowledgeLevel == "novice" && containsAny(lower, jargonTerms) {
		score -= 0.2
	}

	return clamp01(score)
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Min(1.0, math.Max(0.0, v))
}

// #endregion consistency
