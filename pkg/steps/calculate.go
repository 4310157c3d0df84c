package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
	"github.com/systemstart/many-etl/pkg/expr"
)

type calculation struct {
	api.Calculation
	program *expr.Program
	tmpl    *template.Template
}

type calculateStep struct {
	base
	calcs []calculation
}

// NewCalculateStep creates a calculate step. Formulas and templates are
// compiled up front so syntax errors surface as configuration errors.
func NewCalculateStep(name string, cfg *api.CalculateConfig) (Step, error) {
	s := &calculateStep{base: base{name, api.StepTypeCalculate}}
	for _, c := range cfg.Calculations {
		calc := calculation{Calculation: c}
		switch c.Type {
		case api.CalcFormula:
			p, err := expr.Compile(c.Expression)
			if err != nil {
				return nil, &ConfigurationError{Err: err}
			}
			calc.program = p
		case api.CalcTemplate:
			t, err := template.New(c.TargetColumn).
				Option("missingkey=zero").
				Funcs(sprig.HermeticTxtFuncMap()).
				Parse(c.Template)
			if err != nil {
				return nil, configErrorf("parsing template for %q: %w", c.TargetColumn, err)
			}
			calc.tmpl = t
		}
		s.calcs = append(s.calcs, calc)
	}
	return s, nil
}

func (s *calculateStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	columns := in.Columns()
	rows := make([][]any, in.Len())
	for i := range rows {
		rows[i] = in.CloneRow(i)
	}

	for _, c := range s.calcs {
		var err error
		columns, rows, err = s.apply(c, columns, rows)
		if err != nil {
			return nil, err
		}
	}
	return batch.New(columns, rows)
}

// apply evaluates one calculation over all rows, creating or overwriting its
// target column. Later calculations see the columns produced by earlier ones.
func (s *calculateStep) apply(c calculation, columns []string, rows [][]any) ([]string, [][]any, error) {
	position := func(name string) int { return slices.Index(columns, name) }

	var inputs []string
	switch c.Type {
	case api.CalcFormula:
		inputs = c.program.Variables()
	case api.CalcConcat:
		inputs = c.Columns
	}
	for _, name := range inputs {
		if position(name) < 0 {
			return nil, nil, &ColumnNotFoundError{Column: name, Available: columns}
		}
	}

	target := position(c.TargetColumn)
	if target < 0 {
		columns = append(slices.Clone(columns), c.TargetColumn)
		target = len(columns) - 1
		for i := range rows {
			rows[i] = append(rows[i], nil)
		}
	}

	for i, row := range rows {
		lookup := func(name string) (any, bool) {
			j := position(name)
			if j < 0 {
				return nil, false
			}
			return row[j], true
		}

		var v any
		var err error
		switch c.Type {
		case api.CalcFormula:
			v, err = c.program.Eval(lookup)
		case api.CalcConcat:
			parts := make([]string, len(c.Columns))
			for n, name := range c.Columns {
				parts[n] = batch.Format(row[position(name)])
			}
			v = strings.Join(parts, c.Separator)
		case api.CalcTemplate:
			v, err = renderRow(c.tmpl, columns, row)
		}
		if err != nil {
			var uv *expr.UnknownVariableError
			if errors.As(err, &uv) {
				return nil, nil, &ColumnNotFoundError{Column: uv.Name, Available: columns}
			}
			return nil, nil, &TypeMismatchError{Column: c.TargetColumn, Row: i, Err: err}
		}
		row[target] = v
	}
	return columns, rows, nil
}

func renderRow(t *template.Template, columns []string, row []any) (string, error) {
	data := make(map[string]any, len(columns))
	for j, c := range columns {
		if row[j] == nil {
			data[c] = ""
			continue
		}
		data[c] = row[j]
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}
