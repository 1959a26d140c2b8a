package ids

import (
	"strconv"
	"strings"
)

// Family is the prefix of a sequential readable id (order17, prod3, ...).
// Each family is an independent sequence.
type Family string

const (
	User    Family = "user"
	Seller  Family = "seller"
	Product Family = "prod"
	Order   Family = "order"
	Review  Family = "rev"
)

var Families = []Family{User, Seller, Product, Order, Review}

func (f Family) Valid() bool {
	for _, k := range Families {
		if f == k {
			return true
		}
	}
	return false
}

func (f Family) Format(seq int64) string {
	return string(f) + strconv.FormatInt(seq, 10)
}

// Parse returns the sequence of id when it matches ^<prefix>[0-9]+$.
// Ids of other shapes are unrelated to the family and report ok=false.
func (f Family) Parse(id string) (seq int64, ok bool) {
	digits, found := strings.CutPrefix(id, string(f))
	if !found || digits == "" {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Pattern is the POSIX regex matching ids of the family whose sequence fits an int64.
func (f Family) Pattern() string {
	return "^" + string(f) + "[0-9]{1,18}$"
}
