package steps

import (
	"github.com/systemstart/many-etl/pkg/api"
)

// NewStep creates a Step implementation from a StepConfig. The variant
// configuration is validated here; column references are checked when the
// step runs.
func NewStep(cfg api.StepConfig, env Env) (Step, error) {
	if err := api.ValidateStep(cfg); err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	switch cfg.Type {
	case api.StepTypeFilter:
		return NewFilterStep(cfg.Name, cfg.Filter), nil
	case api.StepTypeDeduplicate:
		return NewDeduplicateStep(cfg.Name, cfg.Deduplicate), nil
	case api.StepTypeMapValues:
		return NewMapValuesStep(cfg.Name, cfg.MapValues)
	case api.StepTypeJoin:
		return NewJoinStep(cfg.Name, cfg.Join, env.JoinTables)
	case api.StepTypeCalculate:
		return NewCalculateStep(cfg.Name, cfg.Calculate)
	case api.StepTypeFillMissing:
		return NewFillMissingStep(cfg.Name, cfg.FillMissing)
	case api.StepTypeMask:
		return NewMaskStep(cfg.Name, cfg.Mask), nil
	case api.StepTypeRename:
		return NewRenameStep(cfg.Name, cfg.Rename), nil
	case api.StepTypeTypeCast:
		return NewTypeCastStep(cfg.Name, cfg.TypeCast), nil
	case api.StepTypeAggregate:
		return NewAggregateStep(cfg.Name, cfg.Aggregate), nil
	case api.StepTypeSort:
		return NewSortStep(cfg.Name, cfg.Sort), nil
	case api.StepTypeDropColumns:
		return NewDropColumnsStep(cfg.Name, cfg.DropColumns), nil
	case api.StepTypeSelectColumns:
		return NewSelectColumnsStep(cfg.Name, cfg.SelectColumns), nil
	case api.StepTypeCustomExpression:
		return NewCustomExpressionStep(cfg.Name, cfg.CustomExpression)
	default:
		return nil, configErrorf("unknown step type: %s", cfg.Type)
	}
}
