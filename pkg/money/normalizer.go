// Package money turns loosely shaped POS ticket payloads into integer-cent
// totals and a flat item list.
package money

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PriceMode decides how bare numeric prices from a POS adapter are read.
type PriceMode string

const (
	// PriceModeAuto treats fractional values and integers below 100 as
	// dollars and everything else as cents.
	PriceModeAuto    PriceMode = "auto"
	PriceModeCents   PriceMode = "cents"
	PriceModeDollars PriceMode = "dollars"
)

// ParsePriceMode falls back to auto for unknown values.
func ParsePriceMode(s string) PriceMode {
	switch PriceMode(strings.ToLower(strings.TrimSpace(s))) {
	case PriceModeCents:
		return PriceModeCents
	case PriceModeDollars:
		return PriceModeDollars
	default:
		return PriceModeAuto
	}
}

type Totals struct {
	SubtotalCents  int64 `json:"subtotal_cents"`
	TaxCents       int64 `json:"tax_cents"`
	DiscountsCents int64 `json:"discounts_cents"`
	TotalCents     int64 `json:"total_cents"`
	DueCents       int64 `json:"due_cents"`
	// ReportedDueCents is what the POS claims is due. Display only.
	ReportedDueCents int64 `json:"reported_due_cents"`
}

type Modifier struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitCents int64  `json:"unit_cents"`
}

type Item struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Quantity  int64      `json:"quantity"`
	UnitCents int64      `json:"unit_cents"`
	LineCents int64      `json:"line_cents"`
	Mods      []Modifier `json:"mods"`
}

type Result struct {
	Totals Totals `json:"totals"`
	Items  []Item `json:"items"`
}

var (
	unitPriceKeys = []string{"price_per_unit", "unit_price", "price"}
	extendedKeys  = []string{"line_total", "price_total", "extended_price", "total"}
)

// Normalize computes canonical totals. The amount owed is always
// subtotal + tax; POS due/total figures are surfaced but never trusted.
func Normalize(ticket map[string]interface{}, items []map[string]interface{}, mode PriceMode) Result {
	if items == nil {
		items = EmbeddedItems(ticket)
	}

	normalized := make([]Item, 0, len(items))
	var lineSum int64
	for _, raw := range items {
		item := normalizeItem(raw, mode)
		lineSum += item.LineCents
		normalized = append(normalized, item)
	}

	totals := mapValue(ticket, "totals")
	subtotal := firstCents(totals, mode, "subtotal", "sub_total")
	if subtotal <= 0 {
		subtotal = lineSum
	}
	tax := firstCents(totals, mode, "tax")
	discounts := firstCents(totals, mode, "discounts")
	reported := firstCents(totals, mode, "due")
	if reported == 0 {
		reported = firstCents(totals, mode, "total")
	}

	subtotal = clamp(subtotal)
	tax = clamp(tax)
	total := subtotal + tax

	return Result{
		Totals: Totals{
			SubtotalCents:    subtotal,
			TaxCents:         tax,
			DiscountsCents:   discounts,
			TotalCents:       total,
			DueCents:         total,
			ReportedDueCents: reported,
		},
		Items: normalized,
	}
}

func normalizeItem(raw map[string]interface{}, mode PriceMode) Item {
	item := Item{
		ID:       stringValue(raw["id"]),
		Name:     itemName(raw),
		Quantity: quantity(raw["quantity"]),
		Mods:     []Modifier{},
	}

	for _, m := range modifiers(raw) {
		mod := Modifier{
			ID:       stringValue(m["id"]),
			Name:     stringValue(m["name"]),
			Quantity: quantity(m["quantity"]),
		}
		mod.UnitCents, _ = firstPresent(m, mode, unitPriceKeys...)
		item.Mods = append(item.Mods, mod)
	}

	if unit, ok := firstPresent(raw, mode, unitPriceKeys...); ok {
		item.UnitCents = unit
		item.LineCents = item.Quantity * unit
		for _, mod := range item.Mods {
			item.LineCents += mod.Quantity * mod.UnitCents
		}
	} else if ext, ok := firstPresent(raw, mode, extendedKeys...); ok {
		item.LineCents = ext
		if item.Quantity > 0 {
			item.UnitCents = ext / item.Quantity
		}
	}
	return item
}

func itemName(raw map[string]interface{}) string {
	if name := stringValue(raw["name"]); name != "" {
		return name
	}
	if menuItem := mapValue(mapValue(raw, "_embedded"), "menu_item"); menuItem != nil {
		return stringValue(menuItem["name"])
	}
	return ""
}

func modifiers(raw map[string]interface{}) []map[string]interface{} {
	if mods := mapSlice(raw["modifiers"]); len(mods) > 0 {
		return mods
	}
	return mapSlice(mapValue(raw, "_embedded")["modifiers"])
}

// EmbeddedItems returns the item list carried inside a ticket payload, if any.
func EmbeddedItems(ticket map[string]interface{}) []map[string]interface{} {
	if items := mapSlice(ticket["items"]); len(items) > 0 {
		return items
	}
	return mapSlice(mapValue(ticket, "_embedded")["items"])
}

// ToCents converts a JSON scalar into cents according to mode.
func ToCents(v interface{}, mode PriceMode) (int64, bool) {
	var (
		f          float64
		fractional bool
	)
	switch n := v.(type) {
	case nil:
		return 0, false
	case json.Number:
		s := n.String()
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f, fractional = parsed, strings.ContainsAny(s, ".eE")
	case float64:
		f, fractional = n, n != math.Trunc(n)
	case float32:
		f = float64(n)
		fractional = f != math.Trunc(f)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		s := strings.TrimPrefix(strings.TrimSpace(n), "$")
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f, fractional = parsed, strings.Contains(s, ".")
	default:
		return 0, false
	}

	switch mode {
	case PriceModeCents:
		return int64(math.Round(f)), true
	case PriceModeDollars:
		return int64(math.Round(f * 100)), true
	}
	if fractional || math.Abs(f) < 100 {
		return int64(math.Round(f * 100)), true
	}
	return int64(math.Round(f)), true
}

// FormatDollars renders cents as "12.34".
func FormatDollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// DecodeObject decodes a JSON object keeping numbers as json.Number so the
// dollars/cents heuristic can see the original literal.
func DecodeObject(data []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func firstPresent(m map[string]interface{}, mode PriceMode, keys ...string) (int64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if cents, ok := ToCents(v, mode); ok {
				return cents, true
			}
		}
	}
	return 0, false
}

func firstCents(m map[string]interface{}, mode PriceMode, keys ...string) int64 {
	cents, _ := firstPresent(m, mode, keys...)
	return cents
}

func quantity(v interface{}) int64 {
	switch n := v.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil && f > 0 {
			return int64(math.Round(f))
		}
	case float64:
		if n > 0 {
			return int64(math.Round(n))
		}
	case int:
		if n > 0 {
			return int64(n)
		}
	case int64:
		if n > 0 {
			return n
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil && f > 0 {
			return int64(math.Round(f))
		}
	}
	return 1
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func mapValue(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	out, _ := m[key].(map[string]interface{})
	return out
}

func mapSlice(v interface{}) []map[string]interface{} {
	switch list := v.(type) {
	case []map[string]interface{}:
		return list
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(list))
		for _, e := range list {
			if m, ok := e.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	}
	return fmt.Sprint(v)
}
