package schema

import (
	"sort"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Namer derives storage names from entity names.
type Namer interface {
	TableName(entity string) string
	ColumnName(table, column string) string
	ForeignKeyName(table string) string
	JoinTableName(table, otherTable string) string
	MorphName(relation string) (typeColumn, idColumn string)
}

// NamingStrategy is the default Namer: snake_case columns, pluralized
// table names, "<singular>_id" foreign keys and alphabetically ordered
// join table names.
type NamingStrategy struct {
	TablePrefix   string
	SingularTable bool
}

// TableName converts an entity name to its table name.
func (ns NamingStrategy) TableName(entity string) string {
	if ns.SingularTable {
		return ns.TablePrefix + toDBName(entity)
	}
	return ns.TablePrefix + inflection.Plural(toDBName(entity))
}

// ColumnName converts an attribute name to its column name.
func (ns NamingStrategy) ColumnName(table, column string) string {
	return toDBName(column)
}

// ForeignKeyName derives the conventional foreign key column pointing at
// table, e.g. "users" -> "user_id".
func (ns NamingStrategy) ForeignKeyName(table string) string {
	return inflection.Singular(toDBName(table)) + "_id"
}

// JoinTableName derives the pivot table for a pair of tables: the two
// singular forms joined in alphabetical order, e.g. ("users", "roles")
// -> "role_user".
func (ns NamingStrategy) JoinTableName(table, otherTable string) string {
	names := []string{inflection.Singular(toDBName(table)), inflection.Singular(toDBName(otherTable))}
	sort.Strings(names)
	return ns.TablePrefix + strings.Join(names, "_")
}

// MorphName derives the discriminator column pair for a polymorphic
// relation name, e.g. "imageable" -> ("imageable_type", "imageable_id").
func (ns NamingStrategy) MorphName(relation string) (string, string) {
	base := toDBName(relation)
	return base + "_type", base + "_id"
}

func toDBName(name string) string {
	if name == "" {
		return ""
	}

	var (
		value                        = name
		buf                          strings.Builder
		lastCase, nextCase, currCase bool
	)

	for i, v := range value[:len(value)-1] {
		nextCase = value[i+1] >= 'A' && value[i+1] <= 'Z'
		if i > 0 {
			if currCase {
				if lastCase && nextCase {
					buf.WriteRune(unicode.ToLower(v))
				} else {
					if value[i-1] != '_' && value[i+1] != '_' {
						buf.WriteByte('_')
					}
					buf.WriteRune(unicode.ToLower(v))
				}
			} else {
				buf.WriteRune(unicode.ToLower(v))
			}
		} else {
			currCase = true
			buf.WriteRune(unicode.ToLower(v))
		}
		lastCase = currCase
		currCase = nextCase
	}

	buf.WriteRune(unicode.ToLower(rune(value[len(value)-1])))
	return buf.String()
}
