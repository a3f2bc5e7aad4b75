package model

import "strings"

// DocType is the closed set of document types the system tracks.
type DocType string

const (
	DocTypeKDocument        DocType = "k_document"
	DocTypeTrafficInsurance DocType = "traffic_insurance"
	DocTypeKasko            DocType = "kasko"
	DocTypeInspection       DocType = "inspection"
)

// docTypeAliases maps normalized free-text synonyms (as entered by fleet
// staff, mostly Turkish) to canonical codes. Keys are compared after
// lowercasing and trimming; spaces inside a key are significant.
var docTypeAliases = map[string]DocType{
	"k belgesi":         DocTypeKDocument,
	"k":                 DocTypeKDocument,
	"k_document":        DocTypeKDocument,
	"trafik":            DocTypeTrafficInsurance,
	"trafik sigortası":  DocTypeTrafficInsurance,
	"sigorta":           DocTypeTrafficInsurance,
	"traffic_insurance": DocTypeTrafficInsurance,
	"kasko":             DocTypeKasko,
	"muayene":           DocTypeInspection,
	"inspection":        DocTypeInspection,
}

// NormalizeDocType maps free-text input to a canonical DocType. Unknown
// values pass through unchanged (lowercased, spaces collapsed to
// underscores) and are rejected later by Valid.
func NormalizeDocType(raw string) DocType {
	key := strings.ToLower(strings.TrimSpace(raw))
	if dt, ok := docTypeAliases[key]; ok {
		return dt
	}
	return DocType(strings.ReplaceAll(key, " ", "_"))
}

// Valid reports whether the type is one of the allowed canonical codes.
func (d DocType) Valid() bool {
	switch d {
	case DocTypeKDocument, DocTypeTrafficInsurance, DocTypeKasko, DocTypeInspection:
		return true
	}
	return false
}
