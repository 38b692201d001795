package cli

import (
	"slices"
	"strings"

	"facette.io/natsort"
	"github.com/manifoldco/promptui"
)

// Select asks the user to pick one of choices, shown in natural order.
func Select(label string, choices []string) (string, error) {
	if len(choices) == 0 {
		return "", ErrNoChoices
	}

	names := slices.Clone(choices)
	natsort.Sort(names)

	sel := &promptui.Select{
		Label: label,
		Items: names,
		Searcher: func(input string, index int) bool {
			return input != "" && strings.HasPrefix(names[index], input)
		},
	}

	_, value, err := sel.Run()

	return value, err
}
