package model

import "strings"

// TypeTag is the canonical, engine-independent type of a column.
type TypeTag string

const (
	TypeInteger  TypeTag = "integer"
	TypeFloat    TypeTag = "float"
	TypeBoolean  TypeTag = "boolean"
	TypeDatetime TypeTag = "datetime"
	TypeString   TypeTag = "string"
	TypeUnknown  TypeTag = "unknown"
)

// ParseTypeTag converts a stored tag back to a TypeTag. Unrecognized input
// maps to TypeUnknown.
func ParseTypeTag(s string) TypeTag {
	switch TypeTag(strings.ToLower(strings.TrimSpace(s))) {
	case TypeInteger:
		return TypeInteger
	case TypeFloat:
		return TypeFloat
	case TypeBoolean:
		return TypeBoolean
	case TypeDatetime:
		return TypeDatetime
	case TypeString:
		return TypeString
	default:
		return TypeUnknown
	}
}

// IsNumeric reports whether t is integer or float.
func (t TypeTag) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// Join returns the narrowest tag that accommodates values of both a and b.
// unknown is the identity, integer widens to float, and every other mix
// widens to string.
func Join(a, b TypeTag) TypeTag {
	switch {
	case a == b:
		return a
	case a == TypeUnknown:
		return b
	case b == TypeUnknown:
		return a
	case a.IsNumeric() && b.IsNumeric():
		return TypeFloat
	default:
		return TypeString
	}
}
