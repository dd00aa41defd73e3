package pipeline

import (
	"appideas.app/engine/internal/model"
)

// Output maps the section keys a stage produces to their parsed values.
type Output map[model.SectionKey]model.SectionValue

// Stage describes one model call: how to prompt it, how to read the answer
// strictly, and how to degrade when the answer ignores the requested format.
type Stage struct {
	Name     string
	Keys     []model.SectionKey
	Build    func(*AnalysisContext) string
	Parse    func(text string) (Output, error)
	Fallback func(text string) Output
	// Fatal stages abort the run when the model call fails.
	Fatal bool
}

// Stages returns the stage list for a subject kind.
func Stages(kind model.SubjectKind) []Stage {
	if kind == model.SubjectKindIdea {
		return IdeaStages()
	}
	return AppStages()
}

func AppStages() []Stage {
	return append(commonStages(),
		textStage("similar_apps", model.SectionSimilarApps, buildSimilarAppsPrompt),
		textStage("pricing_model", model.SectionPricingModel, buildPricingPrompt),
		textStage("market_viability", model.SectionMarketViability, buildMarketViabilityPrompt),
	)
}

func IdeaStages() []Stage {
	return append(commonStages(),
		textStage("competitors", model.SectionCompetitors, buildCompetitorsPrompt),
		textStage("pricing_model", model.SectionPricingModel, buildPricingPrompt),
		textStage("market_viability", model.SectionMarketViability, buildMarketViabilityPrompt),
	)
}

func commonStages() []Stage {
	return []Stage{
		sentimentStage(),
		{
			Name:  "keywords",
			Keys:  []model.SectionKey{model.SectionKeywords},
			Build: buildKeywordsPrompt,
			Parse: func(text string) (Output, error) {
				items, err := ParseCommaList(text)
				return Output{model.SectionKeywords: model.ListValue(items)}, err
			},
			Fallback: func(text string) Output {
				return Output{model.SectionKeywords: model.ListValue(SplitLoose(text))}
			},
		},
		listStage("definitely_include", model.SectionDefinitelyInclude, buildDefinitelyIncludePrompt),
		{
			Name:  "backlog",
			Keys:  []model.SectionKey{model.SectionBacklog},
			Build: buildBacklogPrompt,
			Parse: func(text string) (Output, error) {
				items, err := ParseBacklog(text)
				return Output{model.SectionBacklog: model.BacklogValue(items)}, err
			},
			Fallback: func(text string) Output {
				return Output{model.SectionBacklog: model.BacklogValue(BacklogFromBullets(text))}
			},
		},
		{
			Name:  "recommendations",
			Keys:  []model.SectionKey{model.SectionRecommendations},
			Build: buildRecommendationsPrompt,
			Parse: func(text string) (Output, error) {
				items, err := ParseRecommendations(text)
				return Output{model.SectionRecommendations: model.ListValue(items)}, err
			},
			// Untagged lines carry no priority, so nothing is kept.
			Fallback: func(string) Output { return Output{} },
		},
		textStage("description", model.SectionDescription, buildDescriptionPrompt),
		listStage("app_names", model.SectionAppNames, buildAppNamesPrompt),
		textStage("prp", model.SectionPRP, buildPRPPrompt),
	}
}

func sentimentStage() Stage {
	return Stage{
		Name:  "sentiment",
		Keys:  []model.SectionKey{model.SectionLikes, model.SectionDislikes},
		Build: buildSentimentPrompt,
		Parse: func(text string) (Output, error) {
			likes, dislikes, err := ParseSentiment(text)
			if err != nil {
				return nil, err
			}
			if len(likes) == 0 {
				likes = []string{NoLikesPlaceholder}
			}
			if len(dislikes) == 0 {
				dislikes = []string{NoDislikesPlaceholder}
			}
			return Output{
				model.SectionLikes:    model.ListValue(likes),
				model.SectionDislikes: model.ListValue(dislikes),
			}, nil
		},
		Fallback: func(text string) Output {
			likes, dislikes := SplitSentiment(text)
			return Output{
				model.SectionLikes:    model.ListValue(likes),
				model.SectionDislikes: model.ListValue(dislikes),
			}
		},
		Fatal: true,
	}
}

func listStage(name string, key model.SectionKey, build func(*AnalysisContext) string) Stage {
	return Stage{
		Name:  name,
		Keys:  []model.SectionKey{key},
		Build: build,
		Parse: func(text string) (Output, error) {
			items, err := ParseBullets(text)
			return Output{key: model.ListValue(items)}, err
		},
		Fallback: func(text string) Output {
			return Output{key: model.ListValue(SplitLoose(text))}
		},
	}
}

func textStage(name string, key model.SectionKey, build func(*AnalysisContext) string) Stage {
	return Stage{
		Name:  name,
		Keys:  []model.SectionKey{key},
		Build: build,
		Parse: func(text string) (Output, error) {
			value, err := ParseText(text)
			return Output{key: model.TextValue(value)}, err
		},
		Fallback: func(string) Output { return Output{} },
	}
}
