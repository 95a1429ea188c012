package crisis

import (
	"fmt"
	"math/rand"

	"github.com/rogercare/roger-go/internal/models"
)

// Templates renders crisis responses. Phrase variety comes from an
// injected rand source so tests can pin exact selections.
type Templates struct {
	rng *rand.Rand
}

// NewTemplates creates a template renderer with the given random source.
func NewTemplates(rng *rand.Rand) *Templates {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Templates{rng: rng}
}

var crisisOpenings = []string{
	"I'm really glad you told me this, and I want you to know I'm taking it seriously.",
	"Thank you for trusting me with this. What you're feeling matters, and so do you.",
	"I hear you, and I'm not going anywhere. What you just shared is important.",
}

var typeConcerns = map[models.CrisisType]string{
	models.CrisisSuicide:        "When thoughts of ending your life show up, you deserve support from someone trained for exactly this moment.",
	models.CrisisSelfHarm:       "Hurting yourself can feel like the only way to cope, but you deserve care that doesn't leave scars.",
	models.CrisisEatingDisorder: "Your relationship with food and your body sounds painful right now, and that pain is worth real help.",
	models.CrisisSubstanceUse:   "Using substances to get through this is a sign of how much pain you're carrying, not a failure.",
	models.CrisisGeneral:        "What you're going through sounds overwhelming, and you shouldn't have to face it alone.",
}

// resources blocks. The critical block always names both 988 and 911.
const (
	resourcesMedium = "If things get heavier, the 988 Suicide & Crisis Lifeline is there any time - call or text 988."

	resourcesHigh = "Please reach out to the 988 Suicide & Crisis Lifeline right now - call or text 988. " +
		"If you are in immediate danger, call 911. You can also text HOME to 741741 to reach the Crisis Text Line."

	resourcesCritical = "Please call or text 988 (Suicide & Crisis Lifeline) right now, or call 911 if you are in immediate danger. " +
		"You can also text HOME to 741741. These lines are staffed 24/7 by people who want to help you stay safe tonight."
)

// CrisisResponse renders the severity/type-templated crisis reply.
func (t *Templates) CrisisResponse(severity models.Severity, ctype models.CrisisType) string {
	opening := crisisOpenings[t.rng.Intn(len(crisisOpenings))]

	concern, ok := typeConcerns[ctype]
	if !ok {
		concern = typeConcerns[models.CrisisGeneral]
	}

	var resources string
	switch {
	case severity >= models.SeverityCritical:
		resources = resourcesCritical
	case severity >= models.SeverityHigh:
		resources = resourcesHigh
	default:
		resources = resourcesMedium
	}

	return fmt.Sprintf("%s %s %s", opening, concern, resources)
}

var persistentOpenings = []string{
	"You've shared something like this with me more than once now, and I don't want to keep circling - what you're carrying needs more than I can give.",
	"This is the second time you've told me something this serious, and I care too much to just keep talking past it.",
}

// PersistentCrisisResponse renders the escalation override used once a
// session has two or more consecutive crisis turns. It is the same
// regardless of crisis type, and always carries the full resource list.
func (t *Templates) PersistentCrisisResponse() string {
	opening := persistentOpenings[t.rng.Intn(len(persistentOpenings))]
	return fmt.Sprintf(
		"%s Please connect with a real person now: call or text 988 (Suicide & Crisis Lifeline), call 911 if you are in immediate danger, or text HOME to 741741. "+
			"I'll stay right here with you while you do.", opening)
}

// fallback replies used by the pipeline when downstream stages fail.
const (
	// FallbackGeneric is the generic supportive reply for a failed turn.
	FallbackGeneric = "I'm here with you. I'm having a little trouble finding the right words just now, but I'm listening - tell me more about what's on your mind."

	// FallbackCrisis is the resource-bearing reply for a failed turn that
	// already classified at medium severity or above.
	FallbackCrisis = "I'm here with you, and what you shared matters. Please reach out to the 988 Suicide & Crisis Lifeline - call or text 988 - or call 911 if you are in immediate danger."
)
