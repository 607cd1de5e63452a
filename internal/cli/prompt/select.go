package prompt

import (
	"github.com/manifoldco/promptui"
)

// SelectOption is one entry in a selection list. Value is what Select
// returns; Description, when set, is shown below the list.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// Select asks the user to pick one of the options with the arrow keys
// and returns the value of the chosen entry.
func Select(label string, options []SelectOption) (string, error) {
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label | white }}",
		Selected: "* {{ .Label | green }}",
	}
	if len(options) > 0 && options[0].Description != "" {
		templates.Details = `
{{ "Description:" | faint }}	{{ .Description }}`
	}

	p := promptui.Select{
		Label:     label,
		Items:     options,
		Templates: templates,
		Size:      10,
	}

	i, _, err := p.Run()
	if err != nil {
		return "", wrapError(err)
	}
	return options[i].Value, nil
}
