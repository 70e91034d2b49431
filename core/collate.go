package core

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// KhmerLess returns a less function comparing strings with the Khmer collation order.
// The returned function is not safe for concurrent use.
func KhmerLess() func(a, b string) bool {
	col := collate.New(language.Khmer)
	return func(a, b string) bool { return col.CompareString(a, b) < 0 }
}
