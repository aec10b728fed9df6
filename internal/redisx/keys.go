package redisx

import "time"

const (
	// Cache status booking: booking_status:{booking_id} -> {"id": "...", "status": "...", "holdUntil": "..."}
	KeyBookingStatus = "booking_status:%s"

	// Public catalog (active houses + extras) served by /api/meta.
	KeyCatalog = "catalog:meta"

	// Dedup processing: dedup:{scope}:{id} (id = event_id or order:status:payment)
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLCatalog     = time.Minute
	TTLDedup       = 48 * time.Hour
)
