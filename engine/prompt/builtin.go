package prompt

// seedBuiltins installs the fixed set of templates the local-LLM processor
// dispatches to by convention name (task == template name). Called only when
// the registry is opened against an empty directory.
func (r *Registry) seedBuiltins() error {
	for _, tmpl := range builtinTemplates() {
		tmpl.CreatedAt = r.now()
		tmpl.UpdatedAt = tmpl.CreatedAt
		if err := r.save(&tmpl); err != nil {
			return err
		}
		cp := tmpl
		r.byID[cp.ID] = &cp
	}
	return nil
}

func builtinTemplates() []Template {
	return []Template{
		{
			ID:          "builtin-summarize",
			Name:        "summarize",
			Description: "Concise summary of the given content",
			Category:    CategorySummarization,
			Text: "Summarise the following content in at most {max_length} words:\n\n{content}\n\nSummary:",
			Variables: []Variable{
				{Name: "content", Required: true},
				{Name: "max_length", Required: false, Default: "100"},
			},
			Tags:   []string{"summary", "general"},
			Author: "lumen",
		},
		{
			ID:          "builtin-enhance",
			Name:        "enhance",
			Description: "Improve clarity, structure, and readability",
			Category:    CategoryEnhancement,
			Text: "Enhance the following content, focusing on {enhancement_focus}:\n\n{content}\n\nEnhanced content:",
			Variables: []Variable{
				{Name: "content", Required: true},
				{Name: "enhancement_focus", Required: false, Default: "clarity and professional tone"},
			},
			Tags:   []string{"enhancement", "writing"},
			Author: "lumen",
		},
		{
			ID:          "builtin-extract_insights",
			Name:        "extract_insights",
			Description: "Extract key insights and patterns",
			Category:    CategoryAnalysis,
			Text: "Analyse the following content and extract key insights, focusing on {analysis_focus}:\n\n{content}\n\nKey insights:",
			Variables: []Variable{
				{Name: "content", Required: true},
				{Name: "analysis_focus", Required: false, Default: "strategic implications and actionable opportunities"},
			},
			Tags:   []string{"analysis", "insights"},
			Author: "lumen",
		},
		{
			ID:          "builtin-questions",
			Name:        "questions",
			Description: "Generate thought-provoking questions from content",
			Category:    CategoryAnalysis,
			Text: "Based on the following content, generate {num_questions} {question_type} questions:\n\n{content}\n\nQuestions:",
			Variables: []Variable{
				{Name: "content", Required: true},
				{Name: "num_questions", Required: false, Default: "5"},
				{Name: "question_type", Required: false, Default: "open-ended"},
			},
			Tags:   []string{"analysis", "questions"},
			Author: "lumen",
		},
		{
			ID:          "builtin-classify",
			Name:        "classify",
			Description: "Classify content into categories with reasoning",
			Category:    CategoryClassification,
			Text: "Classify the following content into one of {categories}, and explain your reasoning:\n\n{content}\n\nClassification:",
			Variables: []Variable{
				{Name: "content", Required: true},
				{Name: "categories", Required: false, Default: "Research, Analysis, Documentation, Communication, Planning"},
			},
			Tags:   []string{"classification"},
			Author: "lumen",
		},
	}
}
