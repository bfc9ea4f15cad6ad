// Package geo holds the geographic tree model shared by the resolver, the
// stores and the query API: nodes, aliases, entity kinds and the error
// taxonomy of the import engine.
package geo

import "fmt"

// NoParent is the parent id of the root node. Resolving under NoParent
// creates or finds top-level nodes and never fails with ParentNotFoundError.
const NoParent int64 = 0

// LangSystem is the reserved language tag for system-generated aliases:
// the canonical name, its ASCII transliteration and suffix-stripped forms.
const LangSystem = "sys"

// LangAbbr tags code aliases (ISO country codes and the like).
const LangAbbr = "abbr"

// Kind classifies a node. Behaviour that differs between kinds is driven by
// configuration tables keyed by Kind, never by separate types.
type Kind string

const (
	KindWorld     Kind = "world"
	KindContinent Kind = "continent"
	KindCountry   Kind = "country"
	KindState     Kind = "state"
	KindCounty    Kind = "county"
	KindCity      Kind = "city"
	KindCustom    Kind = "custom"
)

// ParseKind maps a configuration string to a Kind. Empty means KindCustom.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindWorld, KindContinent, KindCountry, KindState, KindCounty, KindCity, KindCustom:
		return k, nil
	case "":
		return KindCustom, nil
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

// Node is one persisted entity of the geographic hierarchy.
type Node struct {
	ID           int64  `json:"id"`
	ParentID     int64  `json:"parent_id,omitempty"`
	Name         string `json:"name"`
	NameKey      string `json:"-"`
	SiblingIndex int    `json:"sibling_index"`
	SystemOwned  bool   `json:"system_owned"`
	Kind         Kind   `json:"kind"`
	Code         string `json:"code,omitempty"`
	GeonameID    int64  `json:"geoname_id,omitempty"`
}

// Alias is an alternate name of a node. Exactly one alias per node is
// primary: the first one ever attached.
type Alias struct {
	ID        int64  `json:"id"`
	NodeID    int64  `json:"node_id"`
	Text      string `json:"text"`
	TextKey   string `json:"-"`
	IsPrimary bool   `json:"is_primary"`
	Language  string `json:"language"`
}

// Entity is a resolution request: a name under a parent plus the metadata
// stored on the node if it has to be created.
type Entity struct {
	ParentID  int64
	Name      string
	Kind      Kind
	Code      string
	GeonameID int64
}
