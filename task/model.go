package task

import (
	"github.com/randalmurphal/llmkit/model"
)

// DefaultModelMap maps task types to default models.
var DefaultModelMap = map[Type]model.ModelName{
	Research:     model.ModelOpus,
	Analysis:     model.ModelOpus,
	Coordination: model.ModelOpus,
	Code:         model.ModelSonnet,
	Hybrid:       model.ModelSonnet,
	Creative:     model.ModelSonnet,
}

// TierForType returns the appropriate model tier for a task type.
// Research, analysis and coordination benefit from extended reasoning;
// everything else runs on the default tier. Speed requirements can
// still lower the tier, see TierFor.
func TierForType(t Type) model.Tier {
	switch t {
	case Research, Analysis, Coordination:
		return model.TierThinking
	default:
		return model.TierDefault
	}
}

// TierFor returns the tier for a request, taking the speed
// requirement into account. SpeedFast drops to the fast tier unless
// the type demands reasoning.
func TierFor(r Request) model.Tier {
	tier := TierForType(r.Type)
	if r.Requirements != nil && r.Requirements.Speed == SpeedFast && tier == model.TierDefault {
		return model.TierFast
	}
	return tier
}

// NewSelector creates a model selector configured for orchestration tasks.
func NewSelector(opts ...model.SelectorOption) *model.Selector {
	allOpts := append([]model.SelectorOption{
		model.WithTierFunc(func(t any) model.Tier {
			if tt, ok := t.(Type); ok {
				return TierForType(tt)
			}
			return model.TierDefault
		}),
	}, opts...)

	return model.NewSelector(allOpts...)
}

// SelectModel selects the model for a task type.
func SelectModel(t Type) model.ModelName {
	if m, ok := DefaultModelMap[t]; ok {
		return m
	}
	switch TierForType(t) {
	case model.TierThinking:
		return model.ModelOpus
	case model.TierFast:
		return model.ModelHaiku
	default:
		return model.ModelSonnet
	}
}
