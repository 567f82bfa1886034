package model

import (
	"fmt"
	"strings"
)

// EmptyHex is the marker for an absent byte field on the wire.
const EmptyHex = "0x"

// PendingTransaction is the caller-supplied transaction awaiting a signature.
// Value is a decimal or 0x-prefixed hex quantity in wei; Data is hex call data.
type PendingTransaction struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

// UserOperation is the ERC-4337 (v0.6) wire struct. Quantities are 0x-prefixed
// hex strings as JSON-RPC bundlers expect them.
type UserOperation struct {
	Sender               string `json:"sender"`
	Nonce                string `json:"nonce"`
	InitCode             string `json:"initCode"`
	CallData             string `json:"callData"`
	CallGasLimit         string `json:"callGasLimit"`
	VerificationGasLimit string `json:"verificationGasLimit"`
	PreVerificationGas   string `json:"preVerificationGas"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	PaymasterAndData     string `json:"paymasterAndData"`
	Signature            string `json:"signature"`
}

// WithDefaults returns a copy of op with the optional byte fields set to the
// empty marker when absent.
func (op UserOperation) WithDefaults() UserOperation {
	if op.InitCode == "" {
		op.InitCode = EmptyHex
	}
	if op.PaymasterAndData == "" {
		op.PaymasterAndData = EmptyHex
	}
	if op.Signature == "" {
		op.Signature = EmptyHex
	}
	return op
}

// MissingFields lists the required fields that are empty. Only InitCode,
// PaymasterAndData and Signature may be omitted before submission.
func (op UserOperation) MissingFields() []string {
	required := []struct {
		name  string
		value string
	}{
		{"sender", op.Sender},
		{"nonce", op.Nonce},
		{"callData", op.CallData},
		{"callGasLimit", op.CallGasLimit},
		{"verificationGasLimit", op.VerificationGasLimit},
		{"preVerificationGas", op.PreVerificationGas},
		{"maxFeePerGas", op.MaxFeePerGas},
		{"maxPriorityFeePerGas", op.MaxPriorityFeePerGas},
	}

	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// ValidateForSubmission returns a *ValidationError naming every missing field.
func (op UserOperation) ValidateForSubmission() error {
	if missing := op.MissingFields(); len(missing) > 0 {
		return &ValidationError{Field: "userOperation", Reason: fmt.Sprintf("missing fields: %s", strings.Join(missing, ", "))}
	}
	return nil
}

// ApplySponsorship returns a copy of op carrying the gas and paymaster fields
// of r. Empty fields in r leave the corresponding op field untouched.
func (op UserOperation) ApplySponsorship(r PaymasterResult) UserOperation {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&op.PaymasterAndData, r.PaymasterAndData)
	set(&op.PreVerificationGas, r.PreVerificationGas)
	set(&op.VerificationGasLimit, r.VerificationGasLimit)
	set(&op.CallGasLimit, r.CallGasLimit)
	set(&op.MaxFeePerGas, r.MaxFeePerGas)
	set(&op.MaxPriorityFeePerGas, r.MaxPriorityFeePerGas)
	return op
}

// PaymasterResult is the canonical sponsorship answer. Exactly one adapter
// produces it per request; results are never merged across adapters.
type PaymasterResult struct {
	Provider             string `json:"provider"`
	PaymasterAndData     string `json:"paymasterAndData"`
	PreVerificationGas   string `json:"preVerificationGas"`
	VerificationGasLimit string `json:"verificationGasLimit"`
	CallGasLimit         string `json:"callGasLimit"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
}

// SubmitResult is the operation hash returned by the bundler that accepted it.
type SubmitResult struct {
	Provider string `json:"provider"`
	OpHash   string `json:"userOpHash"`
}

// UserOperationReceipt is the subset of eth_getUserOperationReceipt the
// service reports back.
type UserOperationReceipt struct {
	UserOpHash    string `json:"userOpHash"`
	Sender        string `json:"sender"`
	Nonce         string `json:"nonce"`
	Paymaster     string `json:"paymaster"`
	ActualGasCost string `json:"actualGasCost"`
	ActualGasUsed string `json:"actualGasUsed"`
	Success       bool   `json:"success"`
	Reason        string `json:"reason,omitempty"`
	TxHash        string `json:"transactionHash,omitempty"`
}

// ProviderHealth maps provider name to reachability. It is recomputed on every
// health check and never persisted.
type ProviderHealth map[string]bool

// Usable reports whether at least one provider is reachable.
func (h ProviderHealth) Usable() bool {
	for _, ok := range h {
		if ok {
			return true
		}
	}
	return false
}
