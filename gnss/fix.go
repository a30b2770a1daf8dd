// Package gnss decodes the SIM868 +CGNSINF navigation record.
//
// Fields follow the device layout: GNSS run status, fix status, UTC time,
// latitude, longitude, then altitude and the remaining navigation values.
package gnss

import (
	"time"
)

// FixStatus is the second field of the record.
type FixStatus int

const (
	// FixUnknown is reported when the modem leaves the field empty.
	FixUnknown FixStatus = iota
	FixNone
	FixAcquired
)

func (s FixStatus) String() string {
	switch s {
	case FixNone:
		return "no fix"
	case FixAcquired:
		return "acquired"
	default:
		return "unknown"
	}
}

// Fix is one decoded record. Every field except Status is optional and nil
// when the modem left it empty or sent something that does not parse.
type Fix struct {
	Running   *bool
	Status    FixStatus
	Time      *time.Time
	Latitude  *float64
	Longitude *float64
	Altitude  *float64 // metres above mean sea level
	Speed     *float64 // km/h over ground
	Course    *float64 // degrees over ground
	Mode      *int

	HDOP *float64
	PDOP *float64
	VDOP *float64

	SatellitesInView   *int
	SatellitesUsed     *int
	GLONASSUsed        *int
	CN0Max             *int     // dB-Hz
	HorizontalAccuracy *float64 // HPA, metres
	VerticalAccuracy   *float64 // VPA, metres
}

// Valid reports whether the record carries an acquired position.
func (f Fix) Valid() bool {
	return f.Status == FixAcquired && f.Latitude != nil && f.Longitude != nil
}

// Empty reports whether nothing at all was decoded, which is what a modem
// with the GNSS engine powered down returns.
func (f Fix) Empty() bool {
	return f == Fix{}
}
