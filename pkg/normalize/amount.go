// Package normalize converts raw chain values (amounts, timestamps, reputation, free text) into indexed form.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Asset symbols.
const (
	WORTH = "WORTH"
	WBD   = "WBD"
	VESTS = "VESTS"
)

var naiSymbols = map[string]string{
	"@@000000013": WBD,
	"@@000000021": WORTH,
	"@@000000037": VESTS,
}

var ErrBadAmount = errors.New("malformed amount")

// ParseAmount parses either a legacy "5.000 WBD" string or an NAI object
// {"amount":"5000","precision":3,"nai":"@@000000013"}.
func ParseAmount(raw json.RawMessage) (decimal.Decimal, string, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return decimal.Zero, "", ErrBadAmount
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, "", fmt.Errorf("%w: %v", ErrBadAmount, err)
		}
		return ParseAmountString(s)
	}

	var nai struct {
		Amount    string `json:"amount"`
		Precision int32  `json:"precision"`
		NAI       string `json:"nai"`
	}
	if err := json.Unmarshal(raw, &nai); err != nil {
		return decimal.Zero, "", fmt.Errorf("%w: %v", ErrBadAmount, err)
	}
	sym, ok := naiSymbols[nai.NAI]
	if !ok {
		return decimal.Zero, "", fmt.Errorf("%w: unknown nai %q", ErrBadAmount, nai.NAI)
	}
	units, err := decimal.NewFromString(nai.Amount)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("%w: %v", ErrBadAmount, err)
	}
	return units.Shift(-nai.Precision), sym, nil
}

// ParseAmountString parses "<number> <SYMBOL>".
func ParseAmountString(s string) (decimal.Decimal, string, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return decimal.Zero, "", fmt.Errorf("%w: %q", ErrBadAmount, s)
	}
	amt, err := decimal.NewFromString(fields[0])
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("%w: %q", ErrBadAmount, s)
	}
	sym := fields[1]
	// legacy symbol aliases
	switch sym {
	case "SBD", "HBD":
		sym = WBD
	case "STEEM", "HIVE":
		sym = WORTH
	}
	return amt, sym, nil
}

// AmountOf parses raw and requires the given symbol.
func AmountOf(raw json.RawMessage, symbol string) (decimal.Decimal, error) {
	amt, sym, err := ParseAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if sym != symbol {
		return decimal.Zero, fmt.Errorf("%w: expected %s, got %s", ErrBadAmount, symbol, sym)
	}
	return amt, nil
}

// WbdAmount returns the WBD value of raw; empty input counts as zero.
func WbdAmount(raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero
	}
	amt, err := AmountOf(raw, WBD)
	if err != nil {
		return decimal.Zero
	}
	return amt
}
