// Package ingest loads cleaned loan-event CSV files into the fact store.
// The upstream cleaning stage owns the data; this layer only enforces the
// input contract (non-null keys, parseable timestamps) and derives the
// fico average when only the range bounds are present.
package ingest

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/featuremart/internal/model"
)

// record mirrors the cleaned export columns.
type record struct {
	LoanID         string   `csv:"loan_id"`
	State          string   `csv:"state"`
	Kind           string   `csv:"kind"`
	EventTimestamp string   `csv:"event_timestamp"`
	LoanAmount     *float64 `csv:"loan_amount"`
	FundedAmount   *float64 `csv:"funded_amount"`
	AnnualIncome   *float64 `csv:"annual_income"`
	DTI            *float64 `csv:"dti"`
	IntRatePct     *float64 `csv:"int_rate_pct"`
	RevolUtilPct   *float64 `csv:"revol_util_pct"`
	FicoAvg        *float64 `csv:"fico_avg"`
	FicoRangeLow   *float64 `csv:"fico_range_low"`
	FicoRangeHigh  *float64 `csv:"fico_range_high"`
}

// timestamp layouts accepted in the export, most specific first.
var tsLayouts = []string{time.RFC3339, "2006-01-02", "2006-01"}

// Result summarizes one import.
type Result struct {
	Loaded  int
	Skipped int
}

// ReadFacts decodes a cleaned loan-event CSV into facts. Rows that break
// the input contract (missing entity id, unparseable timestamp, unknown
// kind) are skipped and counted, never silently dropped.
func ReadFacts(r io.Reader) ([]model.Fact, *Result, error) {
	csvReader := csv.NewReader(r)
	dec, err := csvutil.NewDecoder(csvReader)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: read csv header")
	}

	log := zap.L().With(zap.String("component", "ingest"))
	res := &Result{}
	var facts []model.Fact

	for line := 1; ; line++ {
		var rec record
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, nil, eris.Wrapf(err, "ingest: decode row %d", line)
		}

		fact, ok := rec.toFact()
		if !ok {
			res.Skipped++
			log.Warn("skipping malformed row",
				zap.Int("row", line),
				zap.String("loan_id", rec.LoanID),
			)
			continue
		}
		facts = append(facts, fact)
		res.Loaded++
	}

	log.Info("csv read complete",
		zap.Int("loaded", res.Loaded),
		zap.Int("skipped", res.Skipped),
	)
	return facts, res, nil
}

func (rec record) toFact() (model.Fact, bool) {
	if rec.LoanID == "" {
		return model.Fact{}, false
	}

	var ts time.Time
	var err error
	for _, layout := range tsLayouts {
		if ts, err = time.Parse(layout, rec.EventTimestamp); err == nil {
			break
		}
	}
	if err != nil {
		return model.Fact{}, false
	}

	kind := model.FactKind(rec.Kind)
	switch kind {
	case "":
		kind = model.FactAccepted
	case model.FactAccepted, model.FactRejected:
	default:
		return model.Fact{}, false
	}

	fico := rec.FicoAvg
	if fico == nil && rec.FicoRangeLow != nil && rec.FicoRangeHigh != nil {
		avg := (*rec.FicoRangeLow + *rec.FicoRangeHigh) / 2
		fico = &avg
	}

	return model.Fact{
		EntityID:       rec.LoanID,
		State:          rec.State,
		Kind:           kind,
		EventTimestamp: ts.UTC(),
		Values: map[string]*float64{
			"loan_amount":    rec.LoanAmount,
			"funded_amount":  rec.FundedAmount,
			"annual_income":  rec.AnnualIncome,
			"dti":            rec.DTI,
			"int_rate_pct":   rec.IntRatePct,
			"revol_util_pct": rec.RevolUtilPct,
			"fico_avg":       fico,
		},
	}, true
}
