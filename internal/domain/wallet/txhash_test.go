package wallet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
)

const testRecipient = "0x1111111111111111111111111111111111111111"

func TestHashTransaction(t *testing.T) {
	base := model.PendingTransaction{To: testRecipient, Value: "1000", Data: "0xdeadbeef"}

	baseHash, err := HashTransaction(base)
	require.NoError(t, err)

	tests := []struct {
		name     string
		tx       model.PendingTransaction
		wantSame bool
	}{
		{name: "identical", tx: base, wantSame: true},
		{name: "hex value equals decimal", tx: model.PendingTransaction{To: testRecipient, Value: "0x3e8", Data: "0xdeadbeef"}, wantSame: true},
		{name: "uppercase data", tx: model.PendingTransaction{To: testRecipient, Value: "1000", Data: "0xDEADBEEF"}, wantSame: true},
		{name: "different value", tx: model.PendingTransaction{To: testRecipient, Value: "1001", Data: "0xdeadbeef"}},
		{name: "different data", tx: model.PendingTransaction{To: testRecipient, Value: "1000", Data: "0xdeadbeee"}},
		{name: "different recipient", tx: model.PendingTransaction{To: "0x2222222222222222222222222222222222222222", Value: "1000", Data: "0xdeadbeef"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := HashTransaction(tt.tx)
			require.NoError(t, err)
			if tt.wantSame {
				assert.Equal(t, baseHash, h)
			} else {
				assert.NotEqual(t, baseHash, h)
			}
		})
	}
}

func TestHashTransaction_EmptyValueAndData(t *testing.T) {
	a, err := HashTransaction(model.PendingTransaction{To: testRecipient})
	require.NoError(t, err)
	b, err := HashTransaction(model.PendingTransaction{To: testRecipient, Value: "0", Data: "0x"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestHashTransaction_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		tx    model.PendingTransaction
		field string
	}{
		{name: "bad recipient", tx: model.PendingTransaction{To: "0x123"}, field: "transaction.to"},
		{name: "negative value", tx: model.PendingTransaction{To: testRecipient, Value: "-1"}, field: "transaction.value"},
		{name: "garbage value", tx: model.PendingTransaction{To: testRecipient, Value: "ten"}, field: "transaction.value"},
		{name: "odd hex data", tx: model.PendingTransaction{To: testRecipient, Data: "0xabc"}, field: "transaction.data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HashTransaction(tt.tx)
			var vErr *model.ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}
