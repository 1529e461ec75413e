package util

import (
	"time"
)

const gtfsDateLayout = "20060102"

// ParseGTFSDate reads a YYYYMMDD service date as a UTC calendar date
func ParseGTFSDate(value string) (time.Time, error) {
	return time.ParseInLocation(gtfsDateLayout, value, time.UTC)
}

func FormatGTFSDate(date time.Time) string {
	return date.Format(gtfsDateLayout)
}
