// Package validate decides whether oracle output may enter the battle
// record. Structural checks are local and run against the CUE contracts;
// semantic checks ask the oracle to judge a candidate against its source.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"battlescribe/internal/battle"
	"battlescribe/internal/oracle"
	"battlescribe/internal/schema"
)

var (
	// ErrStructural marks candidates whose shape does not match the contract.
	ErrStructural = errors.New("structural validation failed")
	// ErrSemantic marks candidates the judge found incomplete or wrong.
	ErrSemantic = errors.New("semantic validation failed")
)

// Structural checks raw oracle output against the contracts and binds it to
// typed records only after it conforms.
type Structural struct {
	checker *schema.Checker
}

// NewStructural compiles the contracts.
func NewStructural() (*Structural, error) {
	c, err := schema.NewChecker()
	if err != nil {
		return nil, err
	}
	return &Structural{checker: c}, nil
}

// decode maps schema errors onto the pipeline taxonomy: non-JSON output is
// an oracle format error, non-conforming JSON a structural failure.
func (s *Structural) decode(d schema.Descriptor, raw []byte, out interface{}) error {
	err := s.checker.Decode(d, raw, out)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, schema.ErrMalformed):
		return fmt.Errorf("%w: %v", oracle.ErrFormat, err)
	default:
		return fmt.Errorf("%w: %v", ErrStructural, err)
	}
}

// Setup validates and binds a setup extraction.
func (s *Structural) Setup(raw []byte) (*battle.SetupExtraction, error) {
	var out battle.SetupExtraction
	if err := s.decode(schema.SetupExtraction, raw, &out); err != nil {
		return nil, err
	}
	if len(out.TurnTexts) == 0 {
		return nil, fmt.Errorf("%w: %s: no turn texts extracted", ErrStructural, schema.SetupExtraction.Name)
	}
	return &out, nil
}

// Turn validates and binds a single turn extraction.
func (s *Structural) Turn(raw []byte) (*battle.TurnRecord, error) {
	var out battle.TurnRecord
	if err := s.decode(schema.TurnExtraction, raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verdict is a judge pass/fail decision. Reason is for logs only.
type Verdict struct {
	Pass   bool
	Reason string
}

// Reflection validates and binds a setup judge verdict.
func (s *Structural) Reflection(raw []byte) (Verdict, error) {
	var out struct {
		Result string `json:"result"`
		Reason string `json:"reason"`
	}
	if err := s.decode(schema.ReflectionVerdict, raw, &out); err != nil {
		return Verdict{}, err
	}
	return Verdict{Pass: strings.EqualFold(out.Result, "pass"), Reason: out.Reason}, nil
}

// CompletenessVerdict is the judge's answer for one turn.
type CompletenessVerdict struct {
	IsComplete     bool     `json:"isComplete"`
	MissingActions []string `json:"missingActions"`
	Explanation    string   `json:"explanation"`
	// Corrected is set when a failing verdict was overturned because the
	// only missing actions were a duplicated-draw log artifact.
	Corrected bool `json:"corrected,omitempty"`
}

// Err returns nil for a complete verdict and an ErrSemantic error otherwise.
func (v CompletenessVerdict) Err() error {
	if v.IsComplete {
		return nil
	}
	return &SemanticError{Missing: v.MissingActions, Explanation: v.Explanation}
}

// Completeness validates and binds a turn completeness verdict.
func (s *Structural) Completeness(raw []byte) (CompletenessVerdict, error) {
	var out CompletenessVerdict
	if err := s.decode(schema.TurnCompletenessVerdict, raw, &out); err != nil {
		return CompletenessVerdict{}, err
	}
	out.Corrected = false
	return out, nil
}

// SemanticError carries the judge's reasons for rejecting a candidate.
type SemanticError struct {
	Missing     []string
	Explanation string
}

func (e *SemanticError) Error() string {
	var b strings.Builder
	b.WriteString("missing actions")
	if len(e.Missing) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Missing, "; "))
	}
	if e.Explanation != "" {
		b.WriteString(" (")
		b.WriteString(e.Explanation)
		b.WriteString(")")
	}
	return b.String()
}

func (e *SemanticError) Unwrap() error { return ErrSemantic }
