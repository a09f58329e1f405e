// Package ledger holds the pure replay rules that derive stock positions from
// an ordered sequence of movements. Nothing here touches storage.
package ledger

import (
	"pantry-service/internal/models"
)

// legacyRemoveLocation is the old write-off location kept out of source totals
const legacyRemoveLocation = "Remove"

// IsShelf reports whether stock at e can still be handed out. External,
// Customer (consumed) and Reserved (held for an open order) are not shelves.
func IsShelf(e models.Endpoint) bool {
	if e.IsExternal() {
		return false
	}
	return !e.Is(models.LocationCustomer) && !e.Is(models.LocationReserved)
}

// IsShelfLocation is IsShelf for a bare location key
func IsShelfLocation(location string) bool {
	return IsShelf(models.At(location))
}

// OnHand replays movements in ledger order and returns the quantity available
// for shopping. The result may be negative when the ledger is inconsistent.
func OnHand(movements []models.Movement) int64 {
	var onHand int64
	for _, m := range movements {
		if IsShelf(m.To) {
			onHand += m.Qty
		}
		if IsShelf(m.From) {
			onHand -= m.Qty
		}
	}
	return onHand
}

// Delta is the signed effect of a movement on one location
type Delta struct {
	Location string
	Qty      int64
}

// Deltas returns the per-location effect of m: the source loses qty and the
// destination gains it. External sides produce no delta.
func Deltas(m models.Movement) []Delta {
	deltas := make([]Delta, 0, 2)
	if !m.From.IsExternal() {
		deltas = append(deltas, Delta{Location: m.From.Location(), Qty: -m.Qty})
	}
	if !m.To.IsExternal() {
		deltas = append(deltas, Delta{Location: m.To.Location(), Qty: m.Qty})
	}
	return deltas
}

// Invert returns deltas that undo ds
func Invert(ds []Delta) []Delta {
	inverted := make([]Delta, len(ds))
	for i, d := range ds {
		inverted[i] = Delta{Location: d.Location, Qty: -d.Qty}
	}
	return inverted
}

// Balances is the net quantity per location, the shape kept in the
// incremental balance projection.
func Balances(movements []models.Movement) map[string]int64 {
	balances := make(map[string]int64)
	for _, m := range movements {
		for _, d := range Deltas(m) {
			balances[d.Location] += d.Qty
		}
	}
	return balances
}

// OnHandFromBalances sums the shelf locations of a balance map
func OnHandFromBalances(balances map[string]int64) int64 {
	var onHand int64
	for location, qty := range balances {
		if IsShelfLocation(location) {
			onHand += qty
		}
	}
	return onHand
}

// BalanceReport is the staff inventory report replay for one product's
// movements. The first movement seeds a balance only when it is a pure
// inbound; later movements start tracking any new location at zero and then
// move qty from source to destination.
func BalanceReport(movements []models.Movement) map[string]int64 {
	report := make(map[string]int64)
	for i, m := range movements {
		if i == 0 {
			if !m.To.IsExternal() && m.From.IsExternal() {
				report[m.To.Location()] = m.Qty
			}
			continue
		}
		if !m.To.IsExternal() {
			report[m.To.Location()] += m.Qty
		}
		if !m.From.IsExternal() {
			report[m.From.Location()] -= m.Qty
		}
	}
	return report
}

// BalanceReportAll groups movements by product, keeping ledger order within
// each product, and applies BalanceReport to every group.
func BalanceReportAll(movements []models.Movement) map[string]map[string]int64 {
	byProduct := make(map[string][]models.Movement)
	for _, m := range movements {
		byProduct[m.ProductID] = append(byProduct[m.ProductID], m)
	}
	report := make(map[string]map[string]int64, len(byProduct))
	for productID, productMovements := range byProduct {
		report[productID] = BalanceReport(productMovements)
	}
	return report
}

// OutboundByLocation totals the quantity that left each location, ignoring
// Customer and the legacy Remove location.
func OutboundByLocation(movements []models.Movement) map[string]int64 {
	totals := make(map[string]int64)
	for _, m := range movements {
		if m.From.IsExternal() {
			continue
		}
		location := m.From.Location()
		if location == models.LocationCustomer || location == legacyRemoveLocation {
			continue
		}
		totals[location] += m.Qty
	}
	return totals
}
