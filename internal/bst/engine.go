package bst

import (
	"fmt"
	"strings"

	"aegis/internal/logging"
)

// Action is the engine's decision for one message.
type Action string

const (
	ActionEnrich      Action = "enrich"
	ActionClarify     Action = "clarify"
	ActionPassthrough Action = "passthrough"
)

// Belief is the persisted per-conversation state, valid for the taxonomy's
// TTL in turns.
type Belief struct {
	Domain              string            `json:"domain"`
	Turn                int               `json:"turn"`
	Slots               map[string]string `json:"slots"`
	MissingRequired     []string          `json:"missing_required"`
	Confidence          float64           `json:"confidence"`
	ClarificationsAsked int               `json:"clarifications_asked"`
}

// Expired reports whether the belief is older than the TTL at currentTurn.
func (b *Belief) Expired(currentTurn, ttl int) bool {
	return currentTurn-b.Turn > ttl
}

// Input is one turn's worth of context for Process.
type Input struct {
	Message string
	History []Turn
	Turn    int
	// Prior is the persisted belief from an earlier turn, or nil.
	Prior *Belief
}

// Result is the engine's output for one turn.
type Result struct {
	Action        Action
	Belief        *Belief
	Enriched      string
	Clarification string
}

// Engine ties the taxonomy to the per-turn pipeline.
type Engine struct {
	taxonomy *Taxonomy
	logger   logging.Logger
}

// NewEngine returns an engine over the taxonomy.
func NewEngine(taxonomy *Taxonomy, logger logging.Logger) *Engine {
	return &Engine{taxonomy: taxonomy, logger: logging.OrNop(logger)}
}

// Process classifies the message, fills slots, and decides enrich, clarify,
// or passthrough. Underspecified messages reuse a live prior belief instead
// of reclassifying.
func (e *Engine) Process(input Input) Result {
	if input.Prior != nil && !input.Prior.Expired(input.Turn, e.taxonomy.BeliefTTLTurns) &&
		IsUnderspecified(input.Message) {
		return e.reusePrior(input)
	}

	classification := e.taxonomy.Classify(input.Message)
	if classification.Domain == ConversationalDomain {
		return Result{Action: ActionPassthrough}
	}

	domain := e.taxonomy.Domains[classification.Domain]
	slots, missing := e.fillSlots(domain, input.Message, input.History)

	confidence := 0.4*classification.Confidence + 0.6*fillRatio(domain, slots)

	belief := &Belief{
		Domain:          classification.Domain,
		Turn:            input.Turn,
		Slots:           slots,
		MissingRequired: missing,
		Confidence:      confidence,
	}
	if input.Prior != nil && input.Prior.Domain == classification.Domain {
		belief.ClarificationsAsked = input.Prior.ClarificationsAsked
	}

	if confidence >= domain.ConfidenceThreshold || len(missing) == 0 {
		return Result{
			Action:   ActionEnrich,
			Belief:   belief,
			Enriched: e.enrich(classification.Domain, domain, slots, input.Message, false),
		}
	}

	if belief.ClarificationsAsked < e.taxonomy.ClarificationCap {
		belief.ClarificationsAsked++
		return Result{
			Action:        ActionClarify,
			Belief:        belief,
			Clarification: clarificationFor(domain, missing[0]),
		}
	}

	return Result{Action: ActionPassthrough, Belief: belief}
}

// reusePrior carries the earlier belief forward for an underspecified
// message, enriching with a continuation preamble.
func (e *Engine) reusePrior(input Input) Result {
	prior := input.Prior
	domain, ok := e.taxonomy.Domains[prior.Domain]
	if !ok {
		return Result{Action: ActionPassthrough}
	}

	belief := &Belief{
		Domain:              prior.Domain,
		Turn:                input.Turn,
		Slots:               prior.Slots,
		MissingRequired:     prior.MissingRequired,
		Confidence:          prior.Confidence,
		ClarificationsAsked: prior.ClarificationsAsked,
	}
	return Result{
		Action:   ActionEnrich,
		Belief:   belief,
		Enriched: e.enrich(prior.Domain, domain, prior.Slots, input.Message, true),
	}
}

// fillSlots resolves every slot and returns the values plus the required
// slots still missing, honoring required_when dependencies.
func (e *Engine) fillSlots(domain DomainDef, message string, history []Turn) (map[string]string, []string) {
	slots := make(map[string]string, len(domain.Slots))
	for _, name := range domain.SlotNames() {
		slots[name] = resolveSlot(domain.Slots[name], message, history)
	}

	var missing []string
	for _, name := range domain.SlotNames() {
		def := domain.Slots[name]
		if slots[name] != "" {
			continue
		}
		if slotRequired(def, slots) {
			missing = append(missing, name)
		}
	}
	return slots, missing
}

func slotRequired(def SlotDef, slots map[string]string) bool {
	if def.Required {
		return true
	}
	for dependency, activating := range def.RequiredWhen {
		value := slots[dependency]
		if value == "" {
			continue
		}
		if activating == "*" || activating == value {
			return true
		}
	}
	return false
}

// fillRatio is the filled fraction of required slots; 1 when none are
// required.
func fillRatio(domain DomainDef, slots map[string]string) float64 {
	required, filled := 0, 0
	for name, def := range domain.Slots {
		if !slotRequired(def, slots) {
			continue
		}
		required++
		if slots[name] != "" {
			filled++
		}
	}
	if required == 0 {
		return 1
	}
	return float64(filled) / float64(required)
}

// enrich rewrites the user message with the task context block.
func (e *Engine) enrich(domainName string, domain DomainDef, slots map[string]string, original string, continuation bool) string {
	var b strings.Builder
	b.WriteString("[TASK CONTEXT]\n")
	fmt.Fprintf(&b, "Domain: %s\n", domainName)
	for _, name := range domain.SlotNames() {
		if value := slots[name]; value != "" {
			fmt.Fprintf(&b, "%s: %s\n", name, value)
		}
	}

	b.WriteString("[INSTRUCTION]\n")
	if continuation {
		b.WriteString("The user is continuing the task described above. Apply the established context.\n")
	}
	if domain.Preamble != "" {
		b.WriteString(domain.Preamble)
		b.WriteString("\n")
	}

	b.WriteString("[USER MESSAGE]\n")
	b.WriteString(original)
	return b.String()
}

func clarificationFor(domain DomainDef, slot string) string {
	if def, ok := domain.Slots[slot]; ok && def.Clarification != "" {
		return def.Clarification
	}
	return fmt.Sprintf("Could you specify the %s for this task?", strings.ReplaceAll(slot, "_", " "))
}
