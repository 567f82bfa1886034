package wallet

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
)

// HashTransaction returns Keccak-256 over to(20) || value(32, big-endian) || data.
// Value accepts a decimal or 0x-prefixed hex quantity; empty means zero.
// Data accepts 0x-prefixed hex; empty means no call data.
func HashTransaction(tx model.PendingTransaction) (common.Hash, error) {
	if !model.IsValidAddress(tx.To) {
		return common.Hash{}, &model.ValidationError{Field: "transaction.to", Reason: "expected 0x-prefixed 20-byte hex address"}
	}

	value, err := parseQuantity(tx.Value)
	if err != nil {
		return common.Hash{}, err
	}

	var data []byte
	if tx.Data != "" && tx.Data != model.EmptyHex {
		data, err = hexutil.Decode(tx.Data)
		if err != nil {
			return common.Hash{}, &model.ValidationError{Field: "transaction.data", Reason: err.Error()}
		}
	}

	to := common.HexToAddress(tx.To)
	return crypto.Keccak256Hash(to.Bytes(), common.BigToHash(value).Bytes(), data), nil
}

func parseQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}

	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}

	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, &model.ValidationError{Field: "transaction.value", Reason: "expected non-negative decimal or hex quantity"}
	}
	if v.BitLen() > 256 {
		return nil, &model.ValidationError{Field: "transaction.value", Reason: "exceeds 256 bits"}
	}
	return v, nil
}
