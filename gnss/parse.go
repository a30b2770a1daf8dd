package gnss

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrParse is returned when the fix status field is missing or malformed.
var ErrParse = errors.New("gnss: malformed navigation record")

// Prefix is the information response tag of AT+CGNSINF.
const Prefix = "+CGNSINF:"

// TimeLayout is the UTC date and time format of the record.
const TimeLayout = "20060102150405.000"

// Field positions of the SIM868 record.
const (
	fieldRunStatus = iota
	fieldFixStatus
	fieldTime
	fieldLatitude
	fieldLongitude
	fieldAltitude
	fieldSpeed
	fieldCourse
	fieldMode
	_ // reserved
	fieldHDOP
	fieldPDOP
	fieldVDOP
	_ // reserved
	fieldSatellitesInView
	fieldSatellitesUsed
	fieldGLONASSUsed
	_ // reserved
	fieldCN0Max
	fieldHPA
	fieldVPA
)

// Parse decodes a +CGNSINF record, with or without its prefix.
//
// Only the fix status is load bearing: a record too short to hold it, or a
// value other than 0 or 1, fails with ErrParse. An empty status decodes as
// FixUnknown. Every other field is best effort.
func Parse(record string) (Fix, error) {
	record = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(record), Prefix))
	fields := strings.Split(record, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	if len(fields) <= fieldFixStatus {
		return Fix{}, errors.Wrapf(ErrParse, "no fix status in %q", record)
	}

	var fix Fix
	switch fields[fieldFixStatus] {
	case "":
		fix.Status = FixUnknown
	case "0":
		fix.Status = FixNone
	case "1":
		fix.Status = FixAcquired
	default:
		return Fix{}, errors.Wrapf(ErrParse, "fix status %q", fields[fieldFixStatus])
	}

	field := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	if run := intField(field(fieldRunStatus)); run != nil {
		running := *run == 1
		fix.Running = &running
	}
	fix.Time = timeField(field(fieldTime))
	fix.Latitude = floatField(field(fieldLatitude))
	fix.Longitude = floatField(field(fieldLongitude))
	fix.Altitude = floatField(field(fieldAltitude))
	fix.Speed = floatField(field(fieldSpeed))
	fix.Course = floatField(field(fieldCourse))
	fix.Mode = intField(field(fieldMode))
	fix.HDOP = floatField(field(fieldHDOP))
	fix.PDOP = floatField(field(fieldPDOP))
	fix.VDOP = floatField(field(fieldVDOP))
	fix.SatellitesInView = intField(field(fieldSatellitesInView))
	fix.SatellitesUsed = intField(field(fieldSatellitesUsed))
	fix.GLONASSUsed = intField(field(fieldGLONASSUsed))
	fix.CN0Max = intField(field(fieldCN0Max))
	fix.HorizontalAccuracy = floatField(field(fieldHPA))
	fix.VerticalAccuracy = floatField(field(fieldVPA))

	return fix, nil
}

func floatField(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func intField(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

func timeField(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}
