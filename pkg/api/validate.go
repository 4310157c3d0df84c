package api

import (
	"fmt"
	"slices"
	"strings"
)

var validStepTypes = map[string]bool{
	StepTypeFilter:           true,
	StepTypeDeduplicate:      true,
	StepTypeMapValues:        true,
	StepTypeJoin:             true,
	StepTypeCalculate:        true,
	StepTypeFillMissing:      true,
	StepTypeMask:             true,
	StepTypeRename:           true,
	StepTypeTypeCast:         true,
	StepTypeAggregate:        true,
	StepTypeSort:             true,
	StepTypeDropColumns:      true,
	StepTypeSelectColumns:    true,
	StepTypeCustomExpression: true,
}

var (
	validOperators      = []string{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpContains, OpIsNull, OpNotNull}
	validJoinTypes      = []string{JoinInner, JoinLeft, JoinRight, JoinOuter}
	validCalcTypes      = []string{CalcFormula, CalcConcat, CalcTemplate}
	validFillStrategies = []string{FillValue, FillMean, FillMedian, FillMode, FillForward, FillBackward}
	validMaskStrategies = []string{MaskPartial, MaskHash, MaskFull}
	validCastTypes      = []string{CastString, CastInt, CastFloat, CastBool, CastDatetime}
	validAggFunctions   = []string{AggSum, AggMean, AggMax, AggMin, AggCount}
	validConnectors     = []string{ConnectorSQLite, ConnectorPostgres, ConnectorCSV}
)

// Validate checks the pipeline definition for structural errors. Column
// references are not checked here; steps check them when they run.
func (p *Pipeline) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("pipeline has no steps")
	}

	if err := validateConnectors(p); err != nil {
		return err
	}

	names := make(map[string]int)
	ids := make(map[string]int)

	for i, step := range p.Steps {
		if step.Name == "" {
			return fmt.Errorf("step %d: name is required", i)
		}
		if prev, exists := names[step.Name]; exists {
			return fmt.Errorf("step %d: duplicate step name %q (first defined at step %d)", i, step.Name, prev)
		}
		names[step.Name] = i

		if step.ID != "" {
			if prev, exists := ids[step.ID]; exists {
				return fmt.Errorf("step %d: duplicate step id %q (first defined at step %d)", i, step.ID, prev)
			}
			ids[step.ID] = i
		}

		if !validStepTypes[step.Type] {
			return fmt.Errorf("step %q: unknown type %q", step.Name, step.Type)
		}

		if err := ValidateStep(step); err != nil {
			return fmt.Errorf("step %q: %w", step.Name, err)
		}
	}

	return nil
}

func validateConnectors(p *Pipeline) error {
	check := func(what string, c *ConnectorConfig) error {
		if c == nil {
			return nil
		}
		if err := oneOf(what+".connector", c.Connector, validConnectors); err != nil {
			return err
		}
		if c.DSN == "" {
			return fmt.Errorf("%s.dsn is required", what)
		}
		return nil
	}
	if err := check("source", p.Source); err != nil {
		return err
	}
	if p.Source != nil && p.Source.Table == "" && p.Source.Query == "" {
		return fmt.Errorf("source.table or source.query is required")
	}
	if err := check("target", p.Target); err != nil {
		return err
	}
	if p.Target != nil && p.Target.Table == "" {
		return fmt.Errorf("target.table is required")
	}
	for id, src := range p.Sources {
		if err := check("sources."+id, &src); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStep checks a single step's variant configuration.
func ValidateStep(step StepConfig) error {
	switch step.Type {
	case StepTypeFilter:
		return validateFilter(step.Filter)
	case StepTypeDeduplicate:
		return validateDeduplicate(step.Deduplicate)
	case StepTypeMapValues:
		return validateMapValues(step.MapValues)
	case StepTypeJoin:
		return validateJoin(step.Join)
	case StepTypeCalculate:
		return validateCalculate(step.Calculate)
	case StepTypeFillMissing:
		return validateFillMissing(step.FillMissing)
	case StepTypeMask:
		return validateMask(step.Mask)
	case StepTypeRename:
		return validateRename(step.Rename)
	case StepTypeTypeCast:
		return validateTypeCast(step.TypeCast)
	case StepTypeAggregate:
		return validateAggregate(step.Aggregate)
	case StepTypeSort:
		return validateSort(step.Sort)
	case StepTypeDropColumns:
		return validateColumns("drop_columns", step.DropColumns)
	case StepTypeSelectColumns:
		return validateColumns("select_columns", step.SelectColumns)
	case StepTypeCustomExpression:
		return validateCustomExpression(step.CustomExpression)
	}
	return nil
}

func oneOf(field, value string, valid []string) error {
	if !slices.Contains(valid, value) {
		return fmt.Errorf("%s %q is not valid (valid: %s)", field, value, strings.Join(valid, ", "))
	}
	return nil
}

func validateFilter(cfg *FilterConfig) error {
	if cfg == nil {
		return fmt.Errorf("filter config is required")
	}
	if len(cfg.Conditions) == 0 {
		return fmt.Errorf("filter.conditions must not be empty")
	}
	for i, c := range cfg.Conditions {
		if c.Column == "" {
			return fmt.Errorf("filter.conditions[%d].column is required", i)
		}
		if err := oneOf(fmt.Sprintf("filter.conditions[%d].operator", i), c.Operator, validOperators); err != nil {
			return err
		}
		if c.Operator == OpIn {
			if _, ok := c.Value.([]any); !ok {
				return fmt.Errorf("filter.conditions[%d].value must be a list for operator %q", i, OpIn)
			}
		}
	}
	return nil
}

func validateDeduplicate(cfg *DeduplicateConfig) error {
	if cfg == nil || cfg.Keep == "" {
		return nil
	}
	return oneOf("deduplicate.keep", cfg.Keep, []string{KeepFirst, KeepLast})
}

func validateMapValues(cfg *MapValuesConfig) error {
	if cfg == nil {
		return fmt.Errorf("map_values config is required")
	}
	if cfg.Column == "" {
		return fmt.Errorf("map_values.column is required")
	}
	if len(cfg.Mapping) == 0 {
		return fmt.Errorf("map_values.mapping must not be empty")
	}
	return nil
}

func validateJoin(cfg *JoinConfig) error {
	if cfg == nil {
		return fmt.Errorf("join config is required")
	}
	if cfg.JoinTable.Table == "" {
		return fmt.Errorf("join.join_table.table is required")
	}
	if cfg.JoinType != "" {
		if err := oneOf("join.join_type", cfg.JoinType, validJoinTypes); err != nil {
			return err
		}
	}
	if len(cfg.On) == 0 && (len(cfg.LeftOn) == 0 || len(cfg.RightOn) == 0) {
		return fmt.Errorf("join requires on or both left_on and right_on")
	}
	if len(cfg.On) == 0 && len(cfg.LeftOn) != len(cfg.RightOn) {
		return fmt.Errorf("join.left_on and join.right_on must have the same length")
	}
	if len(cfg.Suffixes) != 0 && len(cfg.Suffixes) != 2 {
		return fmt.Errorf("join.suffixes must have exactly two entries")
	}
	return nil
}

func validateCalculate(cfg *CalculateConfig) error {
	if cfg == nil {
		return fmt.Errorf("calculate config is required")
	}
	if len(cfg.Calculations) == 0 {
		return fmt.Errorf("calculate.calculations must not be empty")
	}
	for i, c := range cfg.Calculations {
		if c.TargetColumn == "" {
			return fmt.Errorf("calculate.calculations[%d].target_column is required", i)
		}
		if err := oneOf(fmt.Sprintf("calculate.calculations[%d].type", i), c.Type, validCalcTypes); err != nil {
			return err
		}
		switch c.Type {
		case CalcFormula:
			if c.Expression == "" {
				return fmt.Errorf("calculate.calculations[%d].expression is required for %q", i, CalcFormula)
			}
		case CalcConcat:
			if len(c.Columns) == 0 {
				return fmt.Errorf("calculate.calculations[%d].columns is required for %q", i, CalcConcat)
			}
		case CalcTemplate:
			if c.Template == "" {
				return fmt.Errorf("calculate.calculations[%d].template is required for %q", i, CalcTemplate)
			}
		}
	}
	return nil
}

func validateFillMissing(cfg *FillMissingConfig) error {
	if cfg == nil {
		return fmt.Errorf("fill_missing config is required")
	}
	if len(cfg.Fills) == 0 {
		return fmt.Errorf("fill_missing.fills must not be empty")
	}
	for i, f := range cfg.Fills {
		if f.Column == "" {
			return fmt.Errorf("fill_missing.fills[%d].column is required", i)
		}
		if err := oneOf(fmt.Sprintf("fill_missing.fills[%d].strategy", i), f.Strategy, validFillStrategies); err != nil {
			return err
		}
		if f.Strategy == FillValue && f.Value == nil {
			return fmt.Errorf("fill_missing.fills[%d].value is required for %q", i, FillValue)
		}
	}
	return nil
}

func validateMask(cfg *MaskConfig) error {
	if cfg == nil {
		return fmt.Errorf("mask config is required")
	}
	if len(cfg.Masks) == 0 {
		return fmt.Errorf("mask.masks must not be empty")
	}
	for i, m := range cfg.Masks {
		if m.Column == "" {
			return fmt.Errorf("mask.masks[%d].column is required", i)
		}
		if err := oneOf(fmt.Sprintf("mask.masks[%d].strategy", i), m.Strategy, validMaskStrategies); err != nil {
			return err
		}
		if (m.Start != nil && *m.Start < 0) || (m.End != nil && *m.End < 0) {
			return fmt.Errorf("mask.masks[%d]: start and end must not be negative", i)
		}
	}
	return nil
}

func validateRename(cfg *RenameConfig) error {
	if cfg == nil {
		return fmt.Errorf("rename config is required")
	}
	if len(cfg.Mapping) == 0 {
		return fmt.Errorf("rename.mapping must not be empty")
	}
	seen := make(map[string]string, len(cfg.Mapping))
	for from, to := range cfg.Mapping {
		if to == "" {
			return fmt.Errorf("rename.mapping[%q] must not be empty", from)
		}
		if other, dup := seen[to]; dup {
			return fmt.Errorf("rename.mapping: %q and %q both rename to %q", other, from, to)
		}
		seen[to] = from
	}
	return nil
}

func validateTypeCast(cfg *TypeCastConfig) error {
	if cfg == nil {
		return fmt.Errorf("type_cast config is required")
	}
	if len(cfg.Casts) == 0 {
		return fmt.Errorf("type_cast.casts must not be empty")
	}
	for i, c := range cfg.Casts {
		if c.Column == "" {
			return fmt.Errorf("type_cast.casts[%d].column is required", i)
		}
		if err := oneOf(fmt.Sprintf("type_cast.casts[%d].target_type", i), c.TargetType, validCastTypes); err != nil {
			return err
		}
	}
	return nil
}

func validateAggregate(cfg *AggregateConfig) error {
	if cfg == nil {
		return fmt.Errorf("aggregate config is required")
	}
	if len(cfg.Aggregations) == 0 {
		return fmt.Errorf("aggregate.aggregations must not be empty")
	}
	for i, a := range cfg.Aggregations {
		if a.Column == "" {
			return fmt.Errorf("aggregate.aggregations[%d].column is required", i)
		}
		if err := oneOf(fmt.Sprintf("aggregate.aggregations[%d].function", i), a.Function, validAggFunctions); err != nil {
			return err
		}
	}
	return nil
}

func validateSort(cfg *SortConfig) error {
	if cfg == nil {
		return fmt.Errorf("sort config is required")
	}
	if len(cfg.Columns) == 0 {
		return fmt.Errorf("sort.columns must not be empty")
	}
	if len(cfg.Ascending) > 1 && len(cfg.Ascending) != len(cfg.Columns) {
		return fmt.Errorf("sort.ascending has %d entries for %d columns", len(cfg.Ascending), len(cfg.Columns))
	}
	return nil
}

func validateColumns(field string, cfg *ColumnsConfig) error {
	if cfg == nil {
		return fmt.Errorf("%s config is required", field)
	}
	if len(cfg.Columns) == 0 {
		return fmt.Errorf("%s.columns must not be empty", field)
	}
	return nil
}

func validateCustomExpression(cfg *CustomExpressionConfig) error {
	if cfg == nil {
		return fmt.Errorf("custom_expression config is required")
	}
	if strings.TrimSpace(cfg.Expression) == "" {
		return fmt.Errorf("custom_expression.expression is required")
	}
	return nil
}
