package tools

import (
	"github.com/mitchellh/mapstructure"

	"aegis/pkg/errors"
)

// DecodeArgs validates raw model-proposed arguments against the descriptor's
// schema and returns the typed variant for the named tool. A missing required
// argument is a validation failure, never a silent default.
func DecodeArgs(desc Descriptor, raw map[string]interface{}) (Args, error) {
	if err := validateSchema(desc, raw); err != nil {
		return nil, err
	}

	switch desc.Name {
	case NameResearch:
		var args ResearchArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return args, nil
	case NameMarketData:
		var args MarketDataArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return args, nil
	case NameTrade:
		var args TradeArgs
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return args, nil
	default:
		return nil, errors.Wrapf(errors.ErrUnknownTool, "no argument type for %q", desc.Name)
	}
}

// decode maps raw arguments onto the typed struct. Numbers arrive from the
// model as float64, so weakly typed input is required for integer fields.
func decode(raw map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "build argument decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "decode arguments: %v", err)
	}
	return nil
}

// validateSchema checks required fields and enum constraints before any
// handler sees the arguments.
func validateSchema(desc Descriptor, raw map[string]interface{}) error {
	if desc.Parameters == nil {
		return nil
	}

	for _, field := range desc.Parameters.Required {
		if _, ok := raw[field]; !ok {
			return errors.NewValidationError(field, "required argument missing", nil)
		}
	}

	for name, prop := range desc.Parameters.Properties {
		value, ok := raw[name]
		if !ok {
			continue
		}
		if len(prop.Enum) > 0 {
			str, isStr := value.(string)
			if !isStr || !containsString(prop.Enum, str) {
				return errors.NewValidationError(name, "value not in allowed set", value)
			}
		}
	}

	return nil
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
