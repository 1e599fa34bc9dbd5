package tool

import (
	"errors"
	"fmt"
)

// ParamType is the declared kind of a tool parameter.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeNumber ParamType = "number"
	TypeBool   ParamType = "bool"
)

// Param describes one argument of a tool.
type Param struct {
	Type     ParamType
	Desc     string
	Required bool
}

// Schema maps parameter names to their specs.
type Schema map[string]Param

func validateSchema(s Schema) error {
	for name, p := range s {
		if name == "" {
			return errors.New("schema has an unnamed parameter")
		}
		switch p.Type {
		case TypeString, TypeNumber, TypeBool:
		default:
			return fmt.Errorf("parameter %s has unknown type %q", name, p.Type)
		}
	}
	return nil
}

// ValidateArgs checks args against the schema: required parameters present,
// no undeclared parameters, declared types respected. JSON numbers arrive as
// float64, so that is the only numeric representation accepted.
func ValidateArgs(s Schema, args map[string]any) error {
	if len(s) == 0 {
		return nil
	}
	for name, p := range s {
		val, ok := args[name]
		if !ok {
			if p.Required {
				return fmt.Errorf("missing required parameter %s", name)
			}
			continue
		}
		switch p.Type {
		case TypeString:
			if _, ok := val.(string); !ok {
				return fmt.Errorf("parameter %s must be a string", name)
			}
		case TypeNumber:
			switch val.(type) {
			case float64, int, int64:
			default:
				return fmt.Errorf("parameter %s must be a number", name)
			}
		case TypeBool:
			if _, ok := val.(bool); !ok {
				return fmt.Errorf("parameter %s must be a boolean", name)
			}
		}
	}
	for name := range args {
		if _, declared := s[name]; !declared {
			return fmt.Errorf("unexpected parameter %s", name)
		}
	}
	return nil
}
