package transfer

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type PostCreation struct {
	Caption       string `json:"caption"`
	Title         string `json:"title"`
	ScheduledTime string `json:"scheduled_time"`
	AccountID     int64  `json:"account_id"`
}

func (pc PostCreation) Validate() error {
	return validation.ValidateStruct(&pc,
		validation.Field(&pc.Caption, validation.Required, validation.Length(1, 5000)),
		validation.Field(&pc.Title, validation.Length(0, 200)),
		validation.Field(&pc.AccountID, validation.Required, validation.Min(int64(1))),
	)
}

// BulkDeleteResult is the per-item outcome summary of a bulk deletion
// job. Succeeded plus Failed always covers every requested id.
type BulkDeleteResult struct {
	Succeeded []int64          `json:"succeeded"`
	Failed    map[int64]string `json:"failed"`
}

// BulkDeleteProgress is written after each batch so callers can watch
// a long job advance.
type BulkDeleteProgress struct {
	Done     int     `json:"done"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
}

type SchedulerStatus struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
}
