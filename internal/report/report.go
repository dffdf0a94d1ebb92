// Package report writes the hardening pipeline's persisted side-output:
// a CSV listing every function whose body was duplicated during a run,
// so a downstream pass (such as an external CFC pass) can skip
// re-deriving that set itself.
package report

import (
	"encoding/csv"
	"io"

	"github.com/google/uuid"
)

// Row is one duplicated function recorded against the run that
// duplicated it.
type Row struct {
	RunID    string
	Function string
}

// RunID mints a fresh identifier for one pipeline invocation. No
// third-party CSV library exists anywhere in the retrieval pack (nor a
// stable one in the wider ecosystem beyond the stdlib encoding/csv this
// writes through), so the writer itself stays on encoding/csv; the run
// identifier alone is a dependency worth pulling, matching the pack's
// own use of google/uuid for stable identifiers.
func RunID() string {
	return uuid.NewString()
}

// Write serializes one run's duplicated-function list as CSV: a header
// row followed by one (run_id, function) row per name in names, in the
// order the pipeline produced them (internal/harden.Result.DuplicatedFunctions
// preserves duplication order already).
func Write(w io.Writer, runID string, names []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run_id", "function"}); err != nil {
		return err
	}
	for _, n := range names {
		if err := cw.Write([]string{runID, n}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Rows parses back a side-output CSV into Row values, the shape a
// downstream consumer (such as an external CFC pass) reads to
// learn which functions the data-flow core already touched.
func Rows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < 2 {
			continue
		}
		rows = append(rows, Row{RunID: rec[0], Function: rec[1]})
	}
	return rows, nil
}
