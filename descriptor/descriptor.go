// Package descriptor assembles the canonical solver descriptor from a name,
// a description, and the three code regions that make up a solver.
//
// Build is pure: it never assigns identity or timestamps. Those belong to
// the persistence layer (see package storage).
package descriptor

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/c360studio/semsolver/selection"
)

// ErrIncomplete is matched by every *IncompleteError.
var ErrIncomplete = errors.New("incomplete descriptor")

// Field names reported in IncompleteError.Missing.
const (
	FieldName            = "name"
	FieldInputParameters = "inputParameters"
	FieldCostFunction    = "costFunction"
	FieldAlgorithmLogic  = "algorithmLogic"
)

// descriptorValidate is the validator instance for descriptor types.
var descriptorValidate *validator.Validate

func init() {
	descriptorValidate = validator.New(validator.WithRequiredStructEnabled())
	descriptorValidate.RegisterTagNameFunc(jsonFieldName)
	if err := descriptorValidate.RegisterValidation("notblank", validateNotBlank); err != nil {
		panic(fmt.Sprintf("register notblank validation: %v", err))
	}
}

// validateNotBlank rejects strings that are empty after trimming whitespace.
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// Region is one marked or extracted span of code. For manual selections the
// offsets index the original source; for regions extracted from transformed
// code they index that code and may enclose text of other roles. Text is
// authoritative.
type Region struct {
	Start int    `json:"start" yaml:"start"`
	End   int    `json:"end" yaml:"end"`
	Text  string `json:"text" yaml:"text" validate:"notblank"`
}

// FromSelection converts a captured selection into a region.
func FromSelection(sel selection.Selection) Region {
	return Region{Start: sel.Start, End: sel.End, Text: sel.Text}
}

// Regions carries the candidate region for each role. A nil entry is absent.
type Regions struct {
	InputParameters *Region `json:"inputParameters,omitempty" yaml:"inputParameters,omitempty"`
	CostFunction    *Region `json:"costFunction,omitempty" yaml:"costFunction,omitempty"`
	AlgorithmLogic  *Region `json:"algorithmLogic,omitempty" yaml:"algorithmLogic,omitempty"`
}

// RegionsFromSelections collects whatever roles are assigned in set.
func RegionsFromSelections(set *selection.Set) Regions {
	var r Regions
	for _, role := range selection.Roles {
		sel, ok := set.Get(role)
		if !ok {
			continue
		}
		region := FromSelection(sel)
		r.Set(role, &region)
	}
	return r
}

// Set assigns the region for role.
func (r *Regions) Set(role selection.Role, region *Region) {
	switch role {
	case selection.RoleInputParameters:
		r.InputParameters = region
	case selection.RoleCostFunction:
		r.CostFunction = region
	case selection.RoleAlgorithmLogic:
		r.AlgorithmLogic = region
	}
}

// Get returns the region for role, or nil.
func (r Regions) Get(role selection.Role) *Region {
	switch role {
	case selection.RoleInputParameters:
		return r.InputParameters
	case selection.RoleCostFunction:
		return r.CostFunction
	case selection.RoleAlgorithmLogic:
		return r.AlgorithmLogic
	}
	return nil
}

// SolverDescriptor is the persistence-ready description of a solver.
type SolverDescriptor struct {
	Name            string `json:"name" yaml:"name" validate:"notblank"`
	Description     string `json:"description" yaml:"description"`
	InputParameters Region `json:"inputParameters" yaml:"inputParameters"`
	CostFunction    Region `json:"costFunction" yaml:"costFunction"`
	AlgorithmLogic  Region `json:"algorithmLogic" yaml:"algorithmLogic"`
}

// draft is the validation shape for Build; absent regions are nil.
type draft struct {
	Name            string  `json:"name" validate:"notblank"`
	InputParameters *Region `json:"inputParameters" validate:"required"`
	CostFunction    *Region `json:"costFunction" validate:"required"`
	AlgorithmLogic  *Region `json:"algorithmLogic" validate:"required"`
}

// Build assembles a descriptor. It fails with an *IncompleteError naming every
// missing field when the name is blank or any region is absent or blank.
// Description may be empty. Build never returns a partial descriptor.
func Build(name, description string, regions Regions) (SolverDescriptor, error) {
	d := draft{
		Name:            name,
		InputParameters: regions.InputParameters,
		CostFunction:    regions.CostFunction,
		AlgorithmLogic:  regions.AlgorithmLogic,
	}
	if err := check(d); err != nil {
		return SolverDescriptor{}, err
	}

	return SolverDescriptor{
		Name:            name,
		Description:     description,
		InputParameters: *regions.InputParameters,
		CostFunction:    *regions.CostFunction,
		AlgorithmLogic:  *regions.AlgorithmLogic,
	}, nil
}

// Complete re-checks the descriptor before it crosses the persistence boundary.
func (d SolverDescriptor) Complete() error {
	return check(d)
}

// Regions returns the descriptor's regions as a Regions value.
func (d SolverDescriptor) Regions() Regions {
	ip, cf, al := d.InputParameters, d.CostFunction, d.AlgorithmLogic
	return Regions{InputParameters: &ip, CostFunction: &cf, AlgorithmLogic: &al}
}

func check(v any) error {
	err := descriptorValidate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate descriptor: %w", err)
	}

	missing := make([]string, 0, len(verrs))
	seen := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		field := topLevelField(fe.Namespace())
		if !seen[field] {
			seen[field] = true
			missing = append(missing, field)
		}
	}
	return &IncompleteError{Missing: missing}
}

// topLevelField turns "draft.costFunction.text" into "costFunction".
func topLevelField(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) < 2 {
		return namespace
	}
	return parts[1]
}

// IncompleteError lists the descriptor fields that are missing.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("incomplete descriptor: missing %s", strings.Join(e.Missing, ", "))
}

// Is matches ErrIncomplete.
func (e *IncompleteError) Is(target error) bool {
	return target == ErrIncomplete
}

// IsIncomplete returns true if err reports an incomplete descriptor.
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrIncomplete)
}

// MissingFields extracts the missing field list from err, or nil.
func MissingFields(err error) []string {
	var ie *IncompleteError
	if errors.As(err, &ie) {
		return ie.Missing
	}
	return nil
}
