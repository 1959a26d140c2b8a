package orders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MsgInsufficientStock = "Stok tidak mencukupi"
	MsgMissingFields     = "Missing required fields"
	MsgInvalidRequest    = "Invalid order request"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")

	// ErrOrderIDTaken is returned by a store when the minted order id was
	// committed by another transaction first.
	ErrOrderIDTaken = errors.New("order id already taken")
)

// ValidationError reports a malformed request; no transaction was opened.
type ValidationError struct {
	Problems []string
	// MissingFields is set when at least one required field is absent.
	MissingFields bool
}

func (e *ValidationError) Error() string {
	if e.MissingFields {
		return MsgMissingFields
	}
	return MsgInvalidRequest
}

type Reason string

const (
	ReasonNotFound          Reason = "not_found"
	ReasonInsufficientStock Reason = "insufficient_stock"
	ReasonPriceMismatch     Reason = "price_mismatch"
)

// ItemProblem is one failing line of an order request.
type ItemProblem struct {
	ProductID   string
	ProductName string
	Reason      Reason
	Requested   int
	Available   int

	RequestedPrice decimal.Decimal
	CatalogPrice   decimal.Decimal
}

// Detail is the human readable text returned to the client.
func (p ItemProblem) Detail() string {
	switch p.Reason {
	case ReasonNotFound:
		return fmt.Sprintf("Product ID %s not found", p.ProductID)
	case ReasonPriceMismatch:
		return fmt.Sprintf("%s: Price %s, Catalog price %s", p.ProductName, p.RequestedPrice, p.CatalogPrice)
	default:
		return fmt.Sprintf("%s: Requested %d, Available %d", p.ProductName, p.Requested, p.Available)
	}
}

// StockError aggregates every failing item of one request. Returned only
// after the transaction was rolled back.
type StockError struct {
	Problems []ItemProblem
}

func (e *StockError) Error() string {
	return MsgInsufficientStock + ": " + strings.Join(e.Details(), "; ")
}

func (e *StockError) Details() []string {
	out := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		out = append(out, p.Detail())
	}
	return out
}

// PersistenceError is a storage failure unrelated to business rules.
// The whole transaction was rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "persist order: " + e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }
