package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIP(t *testing.T) {
	assert.Equal(t, "203.0.113.7", ParseIP("::ffff:203.0.113.7").String())
	assert.Equal(t, "203.0.113.7", ParseIP(" 203.0.113.7 ").String())
	assert.Equal(t, "2001:db8::1", ParseIP("2001:db8::1").String())
	assert.Nil(t, ParseIP("not-an-ip"))
	assert.Nil(t, ParseIP(""))
}

func TestToResult(t *testing.T) {
	var rec cityRecord
	assert.Nil(t, toResult(rec), "empty record is a miss")

	lat, lng := 21.03, 105.85
	rec.City.Names = map[string]string{"en": "Hanoi"}
	rec.Subdivisions = append(rec.Subdivisions, struct {
		IsoCode string `maxminddb:"iso_code"`
	}{IsoCode: "HN"})
	rec.Country.IsoCode = "VN"
	rec.Location.Latitude = &lat
	rec.Location.Longitude = &lng

	res := toResult(rec)
	if assert.NotNil(t, res) {
		assert.Equal(t, "Hanoi", res.City)
		assert.Equal(t, "HN", res.Region)
		assert.Equal(t, "VN", res.Country)
		assert.InDelta(t, 21.03, *res.Lat, 1e-9)
	}
}

func TestNoopNeverResolves(t *testing.T) {
	res, err := Noop{}.Lookup(context.Background(), "8.8.8.8")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenMaxMindMissingFile(t *testing.T) {
	_, err := OpenMaxMind("/definitely/not/here.mmdb")
	assert.Error(t, err)
}
