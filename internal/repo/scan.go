package repo

import "time"

type ScanRow struct {
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Open      bool      `json:"open"`
	ScannedAt time.Time `json:"scanned_at"`
}

// ScanStatus is the textual status stored per port.
func (r ScanRow) ScanStatus() string {
	if r.Open {
		return "open"
	}
	return "closed"
}
