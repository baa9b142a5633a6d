package policyfile

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

// DefaultPath is where the policy is looked up when none is configured.
const DefaultPath = "stop_policy.yaml"

// Loaded is a parsed policy together with facts about its source document.
type Loaded struct {
	Policy judgment.Policy
	// Path is the file the policy was read from (empty for Parse).
	Path string
	// Digest identifies the exact document bytes ("xxh64:<hex>").
	Digest string
}

// Warnings lists when keys the matcher will ignore, as field paths.
func (l Loaded) Warnings() []string {
	var out []string
	for i, c := range l.Policy.StopConditions {
		for _, k := range c.When.Unknown {
			out = append(out, fmt.Sprintf("stop_conditions[%d].when.%s", i, k))
		}
	}
	return out
}

// Load reads and validates the policy at path. Every failure is a
// *judgment.ConfigurationError.
func Load(path string) (Loaded, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, &judgment.ConfigurationError{Field: "policy.path", Msg: err.Error()}
	}
	l, err := Parse(data)
	if err != nil {
		return Loaded{}, err
	}
	l.Path = path
	return l, nil
}

// Parse decodes a YAML or JSON policy document and validates it.
func Parse(data []byte) (Loaded, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Loaded{}, &judgment.ConfigurationError{Msg: "parse policy: " + err.Error()}
	}
	if err := validateDocument(&doc); err != nil {
		return Loaded{}, err
	}

	p := doc.toPolicy()
	if err := judgment.ValidatePolicy(p); err != nil {
		return Loaded{}, err
	}
	return Loaded{Policy: p, Digest: Digest(data)}, nil
}

// Digest returns the content digest of a policy document.
func Digest(data []byte) string {
	return fmt.Sprintf("xxh64:%016x", xxhash.Sum64(data))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their document names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateDocument(doc *document) error {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &judgment.ConfigurationError{Msg: err.Error()}
	}

	first := verrs[0]
	ce := &judgment.ConfigurationError{Field: fieldPath(first), Msg: describe(first)}
	if len(verrs) > 1 {
		others := make([]string, 0, len(verrs)-1)
		for _, e := range verrs[1:] {
			others = append(others, fieldPath(e)+" "+describe(e))
		}
		ce.Msg += "; " + strings.Join(others, "; ")
	}
	return ce
}

// fieldPath strips the root type name from the validator namespace.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s (got %q)", e.Param(), e.Value())
	default:
		return "failed validation: " + e.Tag()
	}
}
