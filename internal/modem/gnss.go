package modem

import (
	"context"
	"fmt"
	"strconv"

	"github.com/zerynth/lib-quectel-ug96/internal/at"
)

// Fix is a GNSS position as reported by AT+QGPSLOC=2.
type Fix struct {
	UTC        string  `json:"utc"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	HDOP       float64 `json:"hdop"`
	Altitude   float64 `json:"altitude"`
	Mode       int     `json:"mode"`
	Course     string  `json:"course"`
	SpeedKmh   float64 `json:"speed_kmh"`
	Date       string  `json:"date"`
	Satellites int     `json:"satellites"`
}

func (d *Driver) EnableGNSS(ctx context.Context) error {
	_, err := d.Exec(ctx, at.QGPS, "="+at.FormatArgs(1), SlotOptions{})
	return err
}

func (d *Driver) DisableGNSS(ctx context.Context) error {
	_, err := d.Exec(ctx, at.QGPSEND, "", SlotOptions{})
	return err
}

// Location returns the current fix. Without one the modem answers
// +CME ERROR: 516.
func (d *Driver) Location(ctx context.Context) (Fix, error) {
	resp, err := d.Exec(ctx, at.QGPSLOC, "="+at.FormatArgs(2), SlotOptions{Max: 128, Params: 1})
	if err != nil {
		return Fix{}, err
	}
	return parseFix(resp)
}

func parseFix(resp []byte) (Fix, error) {
	var f Fix
	var utc, lat, lon, hdop, alt, cog, spkm, spkn, date []byte
	n := at.ParseArgs(resp, "sssssissssi", &utc, &lat, &lon, &hdop, &alt, &f.Mode, &cog, &spkm, &spkn, &date, &f.Satellites)
	if n < 10 {
		return Fix{}, fmt.Errorf("+QGPSLOC %q: %w", resp, ErrMalformedResponse)
	}
	f.UTC = string(utc)
	f.Course = string(cog)
	f.Date = string(date)
	var perr error
	num := func(b []byte) float64 {
		v, err := strconv.ParseFloat(string(b), 64)
		if err != nil && perr == nil {
			perr = err
		}
		return v
	}
	f.Latitude = num(lat)
	f.Longitude = num(lon)
	f.HDOP = num(hdop)
	f.Altitude = num(alt)
	f.SpeedKmh = num(spkm)
	if perr != nil {
		return Fix{}, fmt.Errorf("+QGPSLOC %q: %w", resp, ErrMalformedResponse)
	}
	return f, nil
}
