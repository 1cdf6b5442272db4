package prompt

import (
	"regexp"

	"github.com/lumenpipe/lumen/engine/pipelineerr"
)

var (
	variableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	placeholderRe  = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// Rendered is the result of rendering a template: the substituted text and
// the model-specific call options, if a model was given.
type Rendered struct {
	Text     string
	Override *ModelOverride
}

// validateDeclaration checks the create/update-time invariant: every
// declared variable name appears in the template, and vice versa, and every
// variable name is a valid identifier.
func validateDeclaration(tmpl Template) error {
	declared := make(map[string]bool, len(tmpl.Variables))
	for _, v := range tmpl.Variables {
		if !variableNameRe.MatchString(v.Name) {
			return pipelineerr.New(pipelineerr.KindInvalidInput, "variable name: "+v.Name)
		}
		declared[v.Name] = true
	}

	inTemplate := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl.Text, -1) {
		inTemplate[m[1]] = true
	}

	for name := range declared {
		if !inTemplate[name] {
			return pipelineerr.New(pipelineerr.KindInvalidInput, "declared variable not used in template: "+name)
		}
	}
	for name := range inTemplate {
		if !declared[name] {
			return pipelineerr.New(pipelineerr.KindInvalidInput, "placeholder not declared: "+name)
		}
	}
	return nil
}

// Render implements the §4.3 rendering algorithm.
func Render(tmpl Template, vars map[string]string, model string) (Rendered, error) {
	resolved := make(map[string]string, len(tmpl.Variables))

	for _, v := range tmpl.Variables {
		val, given := vars[v.Name]
		switch {
		case given:
			if v.ValidationPattern != "" {
				re, err := regexp.Compile(v.ValidationPattern)
				if err != nil {
					return Rendered{}, pipelineerr.Wrap(pipelineerr.KindInvalidInput, "validation_pattern: "+v.Name, err)
				}
				if !re.MatchString(val) {
					return Rendered{}, pipelineerr.New(pipelineerr.KindInvalidInput, "value for "+v.Name+" fails validation_pattern")
				}
			}
			resolved[v.Name] = val
		case v.Default != "":
			resolved[v.Name] = v.Default
		case v.Required:
			return Rendered{}, pipelineerr.New(pipelineerr.KindMissingVariable, v.Name)
		default:
			resolved[v.Name] = ""
		}
	}

	var substErr error
	text := placeholderRe.ReplaceAllStringFunc(tmpl.Text, func(token string) string {
		name := placeholderRe.FindStringSubmatch(token)[1]
		val, ok := resolved[name]
		if !ok {
			substErr = pipelineerr.New(pipelineerr.KindUnknownPlaceholder, name)
			return token
		}
		return val
	})
	if substErr != nil {
		return Rendered{}, substErr
	}

	out := Rendered{Text: text}
	if model != "" {
		if ov, ok := tmpl.ModelOverrides[model]; ok {
			out.Override = &ov
		}
	}
	return out, nil
}
