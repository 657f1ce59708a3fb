package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransferPair(t *testing.T) {
	accountID := uuid.New()
	subID := uuid.New()
	balance := dec("700.00")

	debit, credit := NewTransferPair(PairSpec{
		Amount:      dec("200.00"),
		InitiatedBy: uuid.New(),
		Linkage:     TransferLinkage{TransferType: TransferTypeCreditToMain, SubAccountCreditID: &subID},
		Debit:       LegSpec{AccountID: accountID, Description: DescriptionCreditTransferOut},
		Credit:      LegSpec{AccountID: accountID, Description: DescriptionCreditTransferIn, BalanceAfter: &balance},
		At:          t0,
	})

	assert.Equal(t, TransactionTypeDebit, debit.Type)
	assert.Equal(t, TransactionTypeCredit, credit.Type)
	assert.True(t, debit.SignedAmount().Add(credit.SignedAmount()).IsZero())

	require.NotNil(t, credit.Metadata.RelatedTransactionID)
	assert.Equal(t, debit.ID, *credit.Metadata.RelatedTransactionID)
	assert.Nil(t, debit.Metadata.RelatedTransactionID, "debit leg keeps its own linkage")
	assert.Equal(t, subID, *credit.Metadata.SubAccountCreditID)

	require.NotNil(t, credit.BalanceAfter)
	assert.True(t, balance.Equal(*credit.BalanceAfter))
}

func TestTransferLinkage_ValueIsJSONText(t *testing.T) {
	id := uuid.New()
	v, err := TransferLinkage{TransferType: TransferTypeBeneficiary, TransferID: &id}.Value()
	require.NoError(t, err)

	s, ok := v.(string)
	require.True(t, ok, "jsonb parameters must be sent as text")

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	assert.Equal(t, "beneficiary", raw["transfer_type"])
	assert.Equal(t, id.String(), raw["transfer_id"])
	assert.NotContains(t, raw, "sub_account_credit_id")
}

func TestTransferLinkage_ScanNil(t *testing.T) {
	l := TransferLinkage{TransferType: TransferTypeBeneficiary}
	require.NoError(t, l.Scan(nil))
	assert.Equal(t, TransferLinkage{}, l)
	require.Error(t, l.Scan(42))
}
