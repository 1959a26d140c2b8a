package ids

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFamilyParse(t *testing.T) {
	cases := []struct {
		f    Family
		id   string
		want int64
		ok   bool
	}{
		{Order, "order17", 17, true},
		{Order, "order0", 0, true},
		{Order, "order", 0, false},
		{Order, "order-1", 0, false},
		{Order, "order1a", 0, false},
		{Order, "ORDER3", 0, false},
		{Product, "prod12", 12, true},
		{Product, "product12", 0, false},
		{User, "seller4", 0, false},
		{Seller, "seller4", 4, true},
		{Review, "rev99999999999999999999", 0, false},
	}
	for _, c := range cases {
		got, ok := c.f.Parse(c.id)
		assert.Equal(t, c.ok, ok, c.id)
		assert.Equal(t, c.want, got, c.id)
	}
}

func TestFamilyFormatAndPattern(t *testing.T) {
	assert.Equal(t, "rev3", Review.Format(3))

	re := regexp.MustCompile(Order.Pattern())
	assert.True(t, re.MatchString("order42"))
	assert.False(t, re.MatchString("order42x"))
	assert.False(t, re.MatchString("xorder42"))
}

func TestFamilyValid(t *testing.T) {
	for _, f := range Families {
		assert.True(t, f.Valid(), f)
	}
	assert.False(t, Family("invoice").Valid())
}
