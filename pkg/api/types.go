package api

import "time"

const (
	StepTypeFilter           = "filter"
	StepTypeDeduplicate      = "deduplicate"
	StepTypeMapValues        = "map_values"
	StepTypeJoin             = "join"
	StepTypeCalculate        = "calculate"
	StepTypeFillMissing      = "fill_missing"
	StepTypeMask             = "mask"
	StepTypeRename           = "rename"
	StepTypeTypeCast         = "type_cast"
	StepTypeAggregate        = "aggregate"
	StepTypeSort             = "sort"
	StepTypeDropColumns      = "drop_columns"
	StepTypeSelectColumns    = "select_columns"
	StepTypeCustomExpression = "custom_expression"

	OpEq       = "eq"
	OpNe       = "ne"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpIn       = "in"
	OpContains = "contains"
	OpIsNull   = "is_null"
	OpNotNull  = "not_null"

	KeepFirst = "first"
	KeepLast  = "last"

	JoinInner = "inner"
	JoinLeft  = "left"
	JoinRight = "right"
	JoinOuter = "outer"

	CalcFormula  = "formula"
	CalcConcat   = "concat"
	CalcTemplate = "template"

	FillValue    = "value"
	FillMean     = "mean"
	FillMedian   = "median"
	FillMode     = "mode"
	FillForward  = "forward"
	FillBackward = "backward"

	MaskPartial = "partial"
	MaskHash    = "hash"
	MaskFull    = "full"

	CastString   = "str"
	CastInt      = "int"
	CastFloat    = "float"
	CastBool     = "bool"
	CastDatetime = "datetime"

	AggSum   = "sum"
	AggMean  = "mean"
	AggMax   = "max"
	AggMin   = "min"
	AggCount = "count"

	ConnectorSQLite   = "sqlite"
	ConnectorPostgres = "postgres"
	ConnectorCSV      = "csv"

	DefaultJoinTimeout = 30 * time.Second
)

// Pipeline is a pipeline definition as read from a YAML or JSON file.
type Pipeline struct {
	Name        string                     `yaml:"name"`
	Description string                     `yaml:"description,omitempty"`
	Source      *ConnectorConfig           `yaml:"source,omitempty"`
	Target      *ConnectorConfig           `yaml:"target,omitempty"`
	Sources     map[string]ConnectorConfig `yaml:"sources,omitempty"`
	JoinTimeout time.Duration              `yaml:"join_timeout,omitempty"`
	Steps       []StepConfig               `yaml:"steps"`

	// Set by the loader, not from YAML.
	FilePath string `yaml:"-"`
}

// ConnectorConfig locates a tabular source or target.
type ConnectorConfig struct {
	Connector string `yaml:"connector"`
	DSN       string `yaml:"dsn"`
	Table     string `yaml:"table,omitempty"`
	Query     string `yaml:"query,omitempty"`
	Limit     int    `yaml:"limit,omitempty"`
}

// StepConfig defines a single step within a pipeline. Exactly one of the
// variant blocks matching Type is expected to be set.
type StepConfig struct {
	ID          string `yaml:"id,omitempty"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Order       int    `yaml:"order"`
	Enabled     *bool  `yaml:"enabled,omitempty"` // default true
	Description string `yaml:"description,omitempty"`

	Filter           *FilterConfig           `yaml:"filter,omitempty"`
	Deduplicate      *DeduplicateConfig      `yaml:"deduplicate,omitempty"`
	MapValues        *MapValuesConfig        `yaml:"map_values,omitempty"`
	Join             *JoinConfig             `yaml:"join,omitempty"`
	Calculate        *CalculateConfig        `yaml:"calculate,omitempty"`
	FillMissing      *FillMissingConfig      `yaml:"fill_missing,omitempty"`
	Mask             *MaskConfig             `yaml:"mask,omitempty"`
	Rename           *RenameConfig           `yaml:"rename,omitempty"`
	TypeCast         *TypeCastConfig         `yaml:"type_cast,omitempty"`
	Aggregate        *AggregateConfig        `yaml:"aggregate,omitempty"`
	Sort             *SortConfig             `yaml:"sort,omitempty"`
	DropColumns      *ColumnsConfig          `yaml:"drop_columns,omitempty"`
	SelectColumns    *ColumnsConfig          `yaml:"select_columns,omitempty"`
	CustomExpression *CustomExpressionConfig `yaml:"custom_expression,omitempty"`
}

// IsEnabled reports whether the step runs. Steps are enabled unless set otherwise.
func (s StepConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Identifier returns the step id, falling back to its name.
func (s StepConfig) Identifier() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Name
}

// Condition is a single filter predicate.
type Condition struct {
	Column   string `yaml:"column"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value,omitempty"`
}

// FilterConfig configures the filter step. Conditions are combined with AND.
type FilterConfig struct {
	Conditions []Condition `yaml:"conditions"`
}

// DeduplicateConfig configures the deduplicate step.
type DeduplicateConfig struct {
	Columns []string `yaml:"columns,omitempty"` // default all columns
	Keep    string   `yaml:"keep,omitempty"`    // first (default) or last
}

// MapValuesConfig configures the map_values step.
type MapValuesConfig struct {
	Column  string         `yaml:"column"`
	Mapping map[string]any `yaml:"mapping"`
}

// TableRef names a table reachable through one of the pipeline's sources.
type TableRef struct {
	SourceID string `yaml:"source_id"`
	Table    string `yaml:"table"`
}

// JoinConfig configures the join step.
type JoinConfig struct {
	JoinTable TableRef `yaml:"join_table"`
	JoinType  string   `yaml:"join_type,omitempty"` // default inner
	On        []string `yaml:"on,omitempty"`
	LeftOn    []string `yaml:"left_on,omitempty"`
	RightOn   []string `yaml:"right_on,omitempty"`
	Suffixes  []string `yaml:"suffixes,omitempty"` // default ["_x", "_y"]
}

// Calculation derives one target column.
type Calculation struct {
	TargetColumn string   `yaml:"target_column"`
	Type         string   `yaml:"type"`
	Expression   string   `yaml:"expression,omitempty"`
	Columns      []string `yaml:"columns,omitempty"`
	Separator    string   `yaml:"separator,omitempty"`
	Template     string   `yaml:"template,omitempty"`
}

// CalculateConfig configures the calculate step.
type CalculateConfig struct {
	Calculations []Calculation `yaml:"calculations"`
}

// Fill describes how nulls in one column are replaced.
type Fill struct {
	Column   string `yaml:"column"`
	Strategy string `yaml:"strategy"`
	Value    any    `yaml:"value,omitempty"`
}

// FillMissingConfig configures the fill_missing step.
type FillMissingConfig struct {
	Fills []Fill `yaml:"fills"`
}

// MaskRule describes how one column is masked.
type MaskRule struct {
	Column   string `yaml:"column"`
	Strategy string `yaml:"strategy"`
	Start    *int   `yaml:"start,omitempty"` // partial only, default 3
	End      *int   `yaml:"end,omitempty"`   // partial only, default 4
}

// MaskConfig configures the mask step.
type MaskConfig struct {
	Masks []MaskRule `yaml:"masks"`
}

// RenameConfig configures the rename step.
type RenameConfig struct {
	Mapping map[string]string `yaml:"mapping"`
}

// Cast coerces one column to a target type.
type Cast struct {
	Column     string `yaml:"column"`
	TargetType string `yaml:"target_type"`
	Layout     string `yaml:"layout,omitempty"` // datetime only, Go time layout
}

// TypeCastConfig configures the type_cast step.
type TypeCastConfig struct {
	Casts []Cast `yaml:"casts"`
}

// Aggregation computes one statistic per group.
type Aggregation struct {
	Column   string `yaml:"column"`
	Function string `yaml:"function"`
	As       string `yaml:"as,omitempty"`
}

// AggregateConfig configures the aggregate step.
type AggregateConfig struct {
	GroupBy      []string     `yaml:"group_by"`
	Aggregations Aggregations `yaml:"aggregations"`
}

// SortConfig configures the sort step.
type SortConfig struct {
	Columns   []string  `yaml:"columns"`
	Ascending Ascending `yaml:"ascending,omitempty"`
}

// ColumnsConfig configures drop_columns and select_columns. Entries may be
// column names or glob patterns.
type ColumnsConfig struct {
	Columns []string `yaml:"columns"`
}

// CustomExpressionConfig configures the custom_expression step. Without a
// target column the expression filters rows.
type CustomExpressionConfig struct {
	Expression   string `yaml:"expression"`
	TargetColumn string `yaml:"target_column,omitempty"`
}
