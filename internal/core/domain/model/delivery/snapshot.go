package delivery

import "time"

// Snapshot is the serializable view of a Delivery. It is what queries return,
// what the activity journal records and what the HTTP API renders.
type Snapshot struct {
	ID                          string    `json:"id"`
	Name                        string    `json:"name"`
	Origin                      string    `json:"origin"`
	Destination                 string    `json:"destination"`
	ContactPhone                string    `json:"contactPhone"`
	Status                      Status    `json:"status"`
	OriginalEtaEpochSecs        int64     `json:"originalEtaEpochSecs"`
	CurrentRouteDurationSeconds int64     `json:"currentRouteDurationSeconds"`
	CurrentLocation             string    `json:"currentLocation"`
	Notified                    bool      `json:"notified"`
	CreatedAt                   time.Time `json:"createdAt"`
	UpdatedAt                   time.Time `json:"updatedAt"`
}
