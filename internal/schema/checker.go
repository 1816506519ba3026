package schema

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed battle.cue
var cueSource string

var (
	// ErrMalformed is returned when oracle output is not JSON at all.
	ErrMalformed = errors.New("output is not valid JSON")
	// ErrNonConforming is returned when JSON does not match the contract.
	ErrNonConforming = errors.New("output does not conform to schema")
)

// ShapeError lists the conformance violations for one contract.
type ShapeError struct {
	Schema string
	Detail string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Schema, e.Detail)
}

func (e *ShapeError) Unwrap() error { return ErrNonConforming }

// Checker validates raw oracle output against the CUE contracts.
// A cue.Context is not safe for concurrent use, so checks are serialized.
type Checker struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs cue.Value
}

// NewChecker compiles the embedded contracts.
func NewChecker() (*Checker, error) {
	ctx := cuecontext.New()
	defs := ctx.CompileString(cueSource, cue.Filename("battle.cue"))
	if err := defs.Err(); err != nil {
		return nil, fmt.Errorf("invalid schema definitions: %v", err)
	}
	for _, d := range All() {
		if !defs.LookupPath(cue.ParsePath(d.Definition)).Exists() {
			return nil, fmt.Errorf("schema definition %s missing", d.Definition)
		}
	}
	return &Checker{ctx: ctx, defs: defs}, nil
}

// Check parses raw as JSON into a loosely typed CUE value and unifies it
// with the contract of d. It never binds to Go types.
func (c *Checker) Check(d Descriptor, raw []byte) error {
	expr, err := cuejson.Extract(d.Name, raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, firstLine(err.Error()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.ctx.BuildExpr(expr)
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, firstLine(err.Error()))
	}
	if v.Kind() != cue.StructKind {
		return &ShapeError{Schema: d.Name, Detail: fmt.Sprintf("expected object, got %s", v.Kind())}
	}

	def := c.defs.LookupPath(cue.ParsePath(d.Definition))
	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ShapeError{Schema: d.Name, Detail: summarize(err)}
	}
	return nil
}

// Decode checks raw against d and, only when it conforms, binds it to out.
func (c *Checker) Decode(d Descriptor, raw []byte, out interface{}) error {
	if err := c.Check(d, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ShapeError{Schema: d.Name, Detail: err.Error()}
	}
	return nil
}

// summarize flattens CUE's multi-error into one line per violation.
func summarize(err error) string {
	details := strings.TrimSpace(cueerrors.Details(err, nil))
	lines := strings.Split(details, "\n")
	var kept []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "battle.cue:") || strings.HasPrefix(l, "./") {
			continue
		}
		kept = append(kept, l)
		if len(kept) == 5 {
			break
		}
	}
	if len(kept) == 0 {
		return err.Error()
	}
	return strings.Join(kept, "; ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
