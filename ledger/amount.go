/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ledger

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseUnits parses a decimal amount string (e.g. "20.00") into integer base
// units at the given mint precision. Fractional digits beyond the mint
// precision are truncated toward zero, never rounded up. All arithmetic is
// integer; no floats are involved at any point.
func ParseUnits(amount string, decimals uint8) (uint64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, fmt.Errorf("failed to parse amount; empty string")
	}
	if strings.HasPrefix(amount, "-") {
		return 0, fmt.Errorf("failed to parse amount %s; negative amounts are not supported", amount)
	}

	whole := amount
	frac := ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole = amount[:i]
		frac = amount[i+1:]
		if strings.IndexByte(frac, '.') >= 0 {
			return 0, fmt.Errorf("failed to parse amount %s; malformed decimal", amount)
		}
	}
	if whole == "" {
		whole = "0"
	}

	if len(frac) > int(decimals) {
		frac = frac[:decimals] // truncate toward zero
	}
	for len(frac) < int(decimals) {
		frac += "0"
	}

	units := new(big.Int)
	if _, ok := units.SetString(whole+frac, 10); !ok {
		return 0, fmt.Errorf("failed to parse amount %s; malformed decimal", amount)
	}
	if !units.IsUint64() {
		return 0, fmt.Errorf("failed to parse amount %s; base units overflow", amount)
	}

	return units.Uint64(), nil
}

// ApplyMultiplier scales the given base units by the rational multiplier
// num/den, truncating toward zero at one base unit
func ApplyMultiplier(units, num, den uint64) (uint64, error) {
	if den == 0 {
		return 0, fmt.Errorf("failed to apply price multiplier; zero denominator")
	}

	scaled := new(big.Int).SetUint64(units)
	scaled.Mul(scaled, new(big.Int).SetUint64(num))
	scaled.Quo(scaled, new(big.Int).SetUint64(den))
	if !scaled.IsUint64() {
		return 0, fmt.Errorf("failed to apply price multiplier %d/%d; base units overflow", num, den)
	}

	return scaled.Uint64(), nil
}

// FormatUnits renders integer base units as a decimal string at the given
// mint precision
func FormatUnits(units uint64, decimals uint8) string {
	str := new(big.Int).SetUint64(units).String()
	if decimals == 0 {
		return str
	}
	for len(str) <= int(decimals) {
		str = "0" + str
	}
	split := len(str) - int(decimals)
	return str[:split] + "." + str[split:]
}
