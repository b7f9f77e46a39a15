package storage

import (
	"database/sql/driver"
	"fmt"

	"golang.org/x/text/cases"
	"modernc.org/sqlite"
)

// FoldFunc is the SQL name of the Unicode case folding function. SQLite's
// lower() only folds ASCII.
const FoldFunc = "casefold"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(FoldFunc, 1, foldValue)
}

// Fold returns the Unicode case folding of s, as casefold() does in SQL.
func Fold(s string) string {
	return cases.Fold().String(s)
}

func foldValue(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return Fold(v), nil
	case []byte:
		return Fold(string(v)), nil
	default:
		return nil, fmt.Errorf("%s: unsupported argument type %T", FoldFunc, v)
	}
}
