package game

import (
	"errors"

	"simboard/internal/content"
)

// Store failure taxonomy. The gateway maps driver errors onto these so
// engines can branch without knowing the driver.
var (
	ErrNotFound         = errors.New("record not found")
	ErrConflict         = errors.New("unique constraint conflict")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTimeout          = errors.New("store call timed out")
	ErrCircuitOpen      = errors.New("store circuit open")
)

var (
	ErrBudgetExceeded     = errors.New("investment basket exceeds phase budget")
	ErrUnknownOption      = errors.New("option is not in the phase catalog")
	ErrInvalidCombination = errors.New("option combination is not allowed")
	ErrNotEligible        = errors.New("double-down picks must come from the round-3 basket")
	ErrUnknownPhase       = errors.New("unknown phase")
	ErrPayloadMismatch    = errors.New("decision payload does not match phase kind")
	ErrSessionNotActive   = errors.New("session is not active")
	ErrResultPending      = errors.New("double-down result not yet available")
	ErrNoRoll             = errors.New("no canonical roll persisted")
)

// ImmediatePurchaseSuffix derives the standalone phase id an immediate
// purchase is stored under, so it never collides with (and is never reset
// with) the phase's regular decision.
func ImmediatePurchasePhaseID(phaseID, optionID string) string {
	return phaseID + ":ip:" + optionID
}

// ScaleAndRound applies a boost percentage to a base delta and rounds the
// result away from zero to the KPI kind's denomination, so displayed
// bonuses land on score-sheet numbers.
func ScaleAndRound(base int64, boostPercent int, kpi content.KPIKey) int64 {
	scaled := base * int64(boostPercent) / 100
	return roundToDenomination(scaled, content.Denomination(kpi))
}

func roundToDenomination(v, denom int64) int64 {
	if denom <= 1 || v == 0 {
		return v
	}
	neg := v < 0
	a := v
	if neg {
		a = -a
	}
	rounded := (a + denom/2) / denom * denom
	if neg {
		return -rounded
	}
	return rounded
}

// Recompute fills the derived figures from the four base KPIs. Revenue is
// bounded by whichever of capacity and orders is scarcer.
func (k *KPIRound) Recompute() {
	sold := k.Capacity
	if k.Orders < sold {
		sold = k.Orders
	}
	if sold < 0 {
		sold = 0
	}
	k.Revenue = sold * k.ASP
	k.NetIncome = k.Revenue - k.Cost
	if k.Revenue > 0 {
		k.NetMarginBps = k.NetIncome * 10_000 / k.Revenue
	} else {
		k.NetMarginBps = 0
	}
}

// Apply adds one delta to the matching base KPI and refreshes the derived
// figures.
func (k *KPIRound) Apply(d KPIDelta) {
	switch d.KPI {
	case content.KPICapacity:
		k.Capacity += d.Change
	case content.KPIOrders:
		k.Orders += d.Change
	case content.KPICost:
		k.Cost += d.Change
	case content.KPIASP:
		k.ASP += d.Change
	}
	k.Recompute()
}
