package series

import (
	"context"
	"errors"
	"fmt"
)

// ImportResult lists the patients copied by ImportCSV and those without data
type ImportResult struct {
	Imported []int `json:"imported"`
	Skipped  []int `json:"skipped"`
}

// ImportCSV copies patients first..last from src into the sql table, creating it if needed.
// Patients without data in src are skipped.
func ImportCSV(ctx context.Context, src Provider, dst *SQLProvider, first, last int) (*ImportResult, error) {
	if err := dst.CreateSchema(ctx); err != nil {
		return nil, err
	}

	res := &ImportResult{}
	for patient := first; patient <= last; patient++ {
		ds, err := src.Load(ctx, patient)
		if err != nil {
			if errors.Is(err, ErrDataUnavailable) {
				res.Skipped = append(res.Skipped, patient)
				continue
			}
			return nil, fmt.Errorf("unable to load patient %s, %w", PatientID(patient), err)
		}
		if err := dst.Insert(ctx, patient, ds); err != nil {
			return nil, err
		}
		res.Imported = append(res.Imported, patient)
	}
	return res, nil
}
