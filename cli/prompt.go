package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/manifoldco/promptui"
)

var ErrNoChoices = errors.New("nothing to choose from")

// PromptConfirm asks a yes/no question. Answering no is not an error.
func PromptConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
	}

	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// PromptString asks for a non-empty string.
func PromptString(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(s string) error {
			if s == "" {
				return errors.New("you must enter something") //nolint:err113
			}

			return nil
		},
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}

	return prompt.Run()
}

// PromptPayload asks for every field of a transition schema and returns the
// payload. Empty answers leave optional fields out.
func PromptPayload(schema fsm.Schema) (map[string]any, error) {
	payload := make(map[string]any, len(schema.Fields))

	for _, field := range schema.Fields {
		label := field.Name + " (" + field.Type + ")"
		if field.Required {
			label += " *"
		}

		prompt := promptui.Prompt{
			Label: label,
			Validate: func(s string) error {
				if s == "" {
					if field.Required {
						return errors.New("required") //nolint:err113
					}

					return nil
				}

				_, err := ParseValue(field.Type, s)

				return err
			},
			Stdin:  os.Stdin,
			Stdout: os.Stdout,
		}

		text, err := prompt.Run()
		if err != nil {
			return nil, err
		}

		if text == "" {
			continue
		}

		value, err := ParseValue(field.Type, text)
		if err != nil {
			return nil, err
		}

		payload[field.Name] = value
	}

	return payload, nil
}

// ParseValue converts user input to the JSON type of a schema field. Arrays
// and objects are read as JSON.
func ParseValue(jsonType, text string) (any, error) {
	switch jsonType {
	case fsm.TypeString:
		return text, nil
	case fsm.TypeInteger:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer: %w", err)
		}

		return v, nil
	case fsm.TypeNumber:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %w", err)
		}

		return v, nil
	case fsm.TypeBoolean:
		v, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean: %w", err)
		}

		return v, nil
	default:
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}

		return v, nil
	}
}
