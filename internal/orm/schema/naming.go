package schema

import "strings"

// ToSnakeCase converts a type or relation name to snake_case.
// Acronym runs collapse ("HTTPServer" -> "http_server").
func ToSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

// Pluralize adds simple English pluralization.
func Pluralize(s string) string {
	if strings.HasSuffix(s, "s") ||
		strings.HasSuffix(s, "x") ||
		strings.HasSuffix(s, "z") {
		return s + "es"
	}
	if strings.HasSuffix(s, "y") {
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}

// TableName derives the conventional table name for an entity type name
// (pluralized snake_case).
func TableName(typeName string) string {
	return Pluralize(ToSnakeCase(typeName))
}

// ForeignKeyName derives the conventional foreign key column for a type name.
func ForeignKeyName(typeName string) string {
	return ToSnakeCase(typeName) + "_id"
}

// PivotTableName derives the conventional pivot table name for a many-to-many
// relation between two type names.
func PivotTableName(a, b string) string {
	return Pluralize(ToSnakeCase(a) + "_" + ToSnakeCase(b))
}
