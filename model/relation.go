package model

import (
	"regexp"
	"strings"

	"github.com/briangormanly/momento/apperr"
)

// relationTypePattern is the sole defense against Cypher injection via the
// edge-type name, which must be interpolated directly into the query string
// because the driver cannot parameterize a relationship type. Do not relax
// this regex.
var relationTypePattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

// Relation is a directed edge between two entity IDs.
type Relation struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	RelationType string `json:"relationType"`
}

// NewRelation validates and upper-cases relationType before building a
// Relation, rejecting any type that does not match ^[A-Z0-9_]+$ after
// upper-casing.
func NewRelation(source, target, relationType string) (*Relation, error) {
	relationType = strings.ToUpper(strings.TrimSpace(relationType))
	if !relationTypePattern.MatchString(relationType) {
		return nil, apperr.New(apperr.KindValidation,
			"relationType must match ^[A-Z0-9_]+$: "+relationType)
	}
	return &Relation{Source: source, Target: target, RelationType: relationType}, nil
}
