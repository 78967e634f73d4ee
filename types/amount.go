package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Amount is an on-chain balance: an arbitrary-precision unsigned integer in
// the chain's smallest unit, plus the number of decimals of the native token.
// The zero value is a valid zero amount.
type Amount struct {
	v        *big.Int
	decimals uint8
}

// NewAmount copies v. A nil or negative v yields zero.
func NewAmount(v *big.Int, decimals uint8) Amount {
	if v == nil || v.Sign() <= 0 {
		return Amount{v: new(big.Int), decimals: decimals}
	}
	return Amount{v: new(big.Int).Set(v), decimals: decimals}
}

func ZeroAmount(decimals uint8) Amount {
	return Amount{v: new(big.Int), decimals: decimals}
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string, decimals uint8) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return Amount{v: v, decimals: decimals}, nil
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Int returns a copy of the raw integer value.
func (a Amount) Int() *big.Int {
	return new(big.Int).Set(a.big())
}

func (a Amount) Decimals() uint8 {
	return a.decimals
}

func (a Amount) IsZero() bool {
	return a.big().Sign() == 0
}

func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), b.big()), decimals: a.decimals}
}

// Sub returns a - b, or zero when b exceeds a.
func (a Amount) Sub(b Amount) Amount {
	d := new(big.Int).Sub(a.big(), b.big())
	if d.Sign() < 0 {
		d.SetInt64(0)
	}
	return Amount{v: d, decimals: a.decimals}
}

// String returns the raw integer in base 10.
func (a Amount) String() string {
	return a.big().String()
}

// Human renders the amount in whole tokens.
func (a Amount) Human() string {
	return decimal.NewFromBigInt(a.big(), -int32(a.decimals)).String()
}

// Tokens returns the amount in whole tokens as a decimal.
func (a Amount) Tokens() decimal.Decimal {
	return decimal.NewFromBigInt(a.big(), -int32(a.decimals))
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAmount(s, a.decimals)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// SumAmounts adds up xs exactly.
func SumAmounts(decimals uint8, xs ...Amount) Amount {
	total := new(big.Int)
	for _, x := range xs {
		total.Add(total, x.big())
	}
	return Amount{v: total, decimals: decimals}
}

// PerbillToPercent converts a Perbill (1e9 = 100%) into a percent capped at 100.
func PerbillToPercent(perbill uint32) decimal.Decimal {
	if perbill > 1_000_000_000 {
		perbill = 1_000_000_000
	}
	return decimal.New(int64(perbill), -7)
}

// Duration is a time.Duration encoded in JSON as whole milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) Milliseconds() int64 {
	return time.Duration(d).Milliseconds()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Milliseconds())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}
