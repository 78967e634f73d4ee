package substrate

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/safwentrabelsi/staking-aggregator/snapshot"
)

type accountID [32]byte

type unlockChunk struct {
	Value *big.Int
	Era   uint32
}

// stakingLedger is Staking.Ledger; claimed rewards are not read.
type stakingLedger struct {
	Stash     accountID
	Total     *big.Int
	Active    *big.Int
	Unlocking []unlockChunk
}

type individualExposure struct {
	Who   accountID
	Value *big.Int
}

type exposure struct {
	Total  *big.Int
	Own    *big.Int
	Others []individualExposure
}

type exposureOverview struct {
	Total     *big.Int
	Own       *big.Int
	PageCount uint32
}

type validatorPrefs struct {
	Commission uint32
	Blocked    bool
}

func newDecoder(raw []byte) *scale.Decoder {
	return scale.NewDecoder(bytes.NewReader(raw))
}

func encodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func readAccount(d *scale.Decoder) (accountID, error) {
	var acc accountID
	err := d.Read(acc[:])
	return acc, err
}

func readU32(d *scale.Decoder) (uint32, error) {
	var v types.U32
	if err := d.Decode(&v); err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func readU128(d *scale.Decoder) (*big.Int, error) {
	var v types.U128
	if err := d.Decode(&v); err != nil {
		return nil, err
	}
	return u128ToBig(v), nil
}

func readCompactU32(d *scale.Decoder) (uint32, error) {
	v, err := d.DecodeUintCompact()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > 0xffffffff {
		return 0, fmt.Errorf("compact %s overflows u32", v)
	}
	return uint32(v.Uint64()), nil
}

func readLength(d *scale.Decoder, limit uint64) (int, error) {
	n, err := d.DecodeUintCompact()
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() || n.Uint64() > limit {
		return 0, fmt.Errorf("vector length %s exceeds %d", n, limit)
	}
	return int(n.Uint64()), nil
}

func readBool(d *scale.Decoder) (bool, error) {
	b, err := d.ReadOneByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool byte %d", b)
	}
}

func u128ToBig(v types.U128) *big.Int {
	if v.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.Int)
}

const maxVectorLen = 1 << 16

func decodeLedger(raw []byte) (*stakingLedger, error) {
	d := newDecoder(raw)
	var (
		l   stakingLedger
		err error
	)
	if l.Stash, err = readAccount(d); err != nil {
		return nil, fmt.Errorf("stash: %w", err)
	}
	if l.Total, err = d.DecodeUintCompact(); err != nil {
		return nil, fmt.Errorf("total: %w", err)
	}
	if l.Active, err = d.DecodeUintCompact(); err != nil {
		return nil, fmt.Errorf("active: %w", err)
	}
	n, err := readLength(d, maxVectorLen)
	if err != nil {
		return nil, fmt.Errorf("unlocking: %w", err)
	}
	for i := 0; i < n; i++ {
		var c unlockChunk
		if c.Value, err = d.DecodeUintCompact(); err != nil {
			return nil, fmt.Errorf("unlocking value: %w", err)
		}
		if c.Era, err = readCompactU32(d); err != nil {
			return nil, fmt.Errorf("unlocking era: %w", err)
		}
		l.Unlocking = append(l.Unlocking, c)
	}
	return &l, nil
}

func decodeOthers(d *scale.Decoder) ([]individualExposure, error) {
	n, err := readLength(d, maxVectorLen)
	if err != nil {
		return nil, err
	}
	others := make([]individualExposure, 0, n)
	for i := 0; i < n; i++ {
		var o individualExposure
		if o.Who, err = readAccount(d); err != nil {
			return nil, err
		}
		if o.Value, err = d.DecodeUintCompact(); err != nil {
			return nil, err
		}
		others = append(others, o)
	}
	return others, nil
}

// decodeExposure reads the legacy Staking.ErasStakers value.
func decodeExposure(raw []byte) (*exposure, error) {
	d := newDecoder(raw)
	var (
		e   exposure
		err error
	)
	if e.Total, err = d.DecodeUintCompact(); err != nil {
		return nil, fmt.Errorf("total: %w", err)
	}
	if e.Own, err = d.DecodeUintCompact(); err != nil {
		return nil, fmt.Errorf("own: %w", err)
	}
	if e.Others, err = decodeOthers(d); err != nil {
		return nil, fmt.Errorf("others: %w", err)
	}
	return &e, nil
}

func decodeExposureOverview(raw []byte) (*exposureOverview, error) {
	d := newDecoder(raw)
	var (
		o   exposureOverview
		err error
	)
	if o.Total, err = d.DecodeUintCompact(); err != nil {
		return nil, fmt.Errorf("total: %w", err)
	}
	if o.Own, err = d.DecodeUintCompact(); err != nil {
		return nil, fmt.Errorf("own: %w", err)
	}
	// nominator count
	if _, err = readU32(d); err != nil {
		return nil, fmt.Errorf("nominator count: %w", err)
	}
	if o.PageCount, err = readU32(d); err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	return &o, nil
}

func decodeExposurePage(raw []byte) ([]individualExposure, error) {
	d := newDecoder(raw)
	if _, err := d.DecodeUintCompact(); err != nil {
		return nil, fmt.Errorf("page total: %w", err)
	}
	others, err := decodeOthers(d)
	if err != nil {
		return nil, fmt.Errorf("others: %w", err)
	}
	return others, nil
}

// decodeNominations returns the targets of Staking.Nominators.
func decodeNominations(raw []byte) ([]accountID, error) {
	d := newDecoder(raw)
	n, err := readLength(d, maxVectorLen)
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	targets := make([]accountID, 0, n)
	for i := 0; i < n; i++ {
		acc, err := readAccount(d)
		if err != nil {
			return nil, fmt.Errorf("target: %w", err)
		}
		targets = append(targets, acc)
	}
	return targets, nil
}

func decodeValidatorPrefs(raw []byte) (*validatorPrefs, error) {
	d := newDecoder(raw)
	commission, err := readCompactU32(d)
	if err != nil {
		return nil, fmt.Errorf("commission: %w", err)
	}
	blocked, err := readBool(d)
	if err != nil {
		return nil, fmt.Errorf("blocked: %w", err)
	}
	return &validatorPrefs{Commission: commission, Blocked: blocked}, nil
}

const judgementFeePaid = 1

// decodeRegistration reads Identity.IdentityOf up to the display name.
func decodeRegistration(raw []byte) (*snapshot.Identity, error) {
	d := newDecoder(raw)
	n, err := readLength(d, maxVectorLen)
	if err != nil {
		return nil, fmt.Errorf("judgements: %w", err)
	}
	for i := 0; i < n; i++ {
		// registrar index
		if _, err := readU32(d); err != nil {
			return nil, fmt.Errorf("judgement registrar: %w", err)
		}
		tag, err := d.ReadOneByte()
		if err != nil {
			return nil, fmt.Errorf("judgement: %w", err)
		}
		if tag == judgementFeePaid {
			if _, err := readU128(d); err != nil {
				return nil, fmt.Errorf("judgement fee: %w", err)
			}
		}
	}
	// deposit
	if _, err := readU128(d); err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}

	additional, err := readLength(d, maxVectorLen)
	if err != nil {
		return nil, fmt.Errorf("additional: %w", err)
	}
	for i := 0; i < 2*additional; i++ {
		if _, err := readData(d); err != nil {
			return nil, fmt.Errorf("additional field: %w", err)
		}
	}
	display, err := readData(d)
	if err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}
	return &snapshot.Identity{Display: display, Judgements: n}, nil
}

// readData reads an identity Data value. Only raw values carry text; hashes
// yield an empty string.
func readData(d *scale.Decoder) (string, error) {
	tag, err := d.ReadOneByte()
	if err != nil {
		return "", err
	}
	switch {
	case tag == 0:
		return "", nil
	case tag == 1:
		return "", nil
	case tag <= 33:
		buf := make([]byte, tag-1)
		if err := d.Read(buf); err != nil {
			return "", err
		}
		return string(buf), nil
	case tag <= 37:
		var hash [32]byte
		if err := d.Read(hash[:]); err != nil {
			return "", err
		}
		return "", nil
	default:
		return "", fmt.Errorf("invalid data tag %d", tag)
	}
}

// constU32 reads a u32 pallet constant from the metadata.
func constU32(meta *types.Metadata, pallet, name string) (uint32, bool) {
	for _, p := range meta.AsMetadataV14.Pallets {
		if string(p.Name) != pallet {
			continue
		}
		for _, c := range p.Constants {
			if string(c.Name) == name && len(c.Value) >= 4 {
				return binary.LittleEndian.Uint32(c.Value[:4]), true
			}
		}
	}
	return 0, false
}

func constU16(meta *types.Metadata, pallet, name string) (uint16, bool) {
	for _, p := range meta.AsMetadataV14.Pallets {
		if string(p.Name) != pallet {
			continue
		}
		for _, c := range p.Constants {
			if string(c.Name) == name && len(c.Value) >= 2 {
				return binary.LittleEndian.Uint16(c.Value[:2]), true
			}
		}
	}
	return 0, false
}
