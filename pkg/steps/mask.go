package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/systemstart/many-etl/pkg/api"
	"github.com/systemstart/many-etl/pkg/batch"
	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultMaskStart = 3
	defaultMaskEnd   = 4
	maskChar         = "*"
	fullMaskToken    = "****"
)

type maskStep struct {
	base
	masks []api.MaskRule
}

// NewMaskStep creates a mask step.
func NewMaskStep(name string, cfg *api.MaskConfig) Step {
	return &maskStep{base: base{name, api.StepTypeMask}, masks: cfg.Masks}
}

func (s *maskStep) Process(_ context.Context, in *batch.Batch) (*batch.Batch, error) {
	idx := make([]int, len(s.masks))
	for n, m := range s.masks {
		j, ok := in.ColumnIndex(m.Column)
		if !ok {
			return nil, &ColumnNotFoundError{Column: m.Column, Available: in.Columns()}
		}
		idx[n] = j
	}

	rows := make([][]any, in.Len())
	for i := range rows {
		row := in.CloneRow(i)
		for n, m := range s.masks {
			if row[idx[n]] == nil {
				continue
			}
			row[idx[n]] = maskValue(batch.Format(row[idx[n]]), m)
		}
		rows[i] = row
	}
	return in.WithRows(rows)
}

func maskValue(s string, m api.MaskRule) string {
	switch m.Strategy {
	case api.MaskPartial:
		start, end := defaultMaskStart, defaultMaskEnd
		if m.Start != nil {
			start = *m.Start
		}
		if m.End != nil {
			end = *m.End
		}
		return MaskPartial(s, start, end)
	case api.MaskHash:
		return MaskHash(s)
	default:
		return fullMaskToken
	}
}

// MaskPartial keeps the first start and last end characters of s and replaces
// every character in between with an asterisk. Strings no longer than
// start+end are masked entirely. Length in characters is preserved.
func MaskPartial(s string, start, end int) string {
	runes := []rune(norm.NFC.String(s))
	if len(runes) <= start+end {
		return strings.Repeat(maskChar, len(runes))
	}
	hidden := len(runes) - start - end
	return string(runes[:start]) + strings.Repeat(maskChar, hidden) + string(runes[len(runes)-end:])
}

// MaskHash returns a 16 character hex digest of s. Equal inputs give equal digests.
func MaskHash(s string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(s))
}
