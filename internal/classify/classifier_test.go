package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFilename(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantType string
	}{
		{"receipt", "uploads/lunch_receipt.jpg", TypeReceipt},
		{"invoice", "invoice_2025_001.pdf", TypeInvoice},
		{"bank statement", "bank_statement_jan.pdf", TypeBankStatement},
		{"stmt abbreviation", "acct_stmt_03.pdf", TypeBankStatement},
		{"credit card statement", "credit_card_statement.pdf", TypeCreditCardStatement},
		{"expense report", "q1_expense_report.xlsx", TypeExpenseReport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New().Classify(tt.path, "", nil)
			assert.Equal(t, tt.wantType, res.DocumentType)
			assert.InDelta(t, 0.8, res.Confidence, 0.001)
		})
	}
}

func TestClassifyContent(t *testing.T) {
	receipt := "RECEIPT\nOffice Depot\nSubtotal 104.50\nTotal 113.03\nThank you for shopping\nCard ending 5678"
	res := New().Classify("scan001.jpg", receipt, nil)
	assert.Equal(t, TypeReceipt, res.DocumentType)
	assert.Greater(t, res.Confidence, 0.5)

	invoice := "INVOICE\nInvoice Number: 2025-001\nBill To: Acme Corp\nDue Date: 2025-02-01\nAmount Due: $450.00\nPayment Terms: Net 30"
	res = New().Classify("doc.pdf", invoice, nil)
	assert.Equal(t, TypeInvoice, res.DocumentType)
}

func TestClassifyUnknown(t *testing.T) {
	res := New().Classify("notes.pdf", "nothing financial in here", nil)
	assert.Equal(t, TypeUnknown, res.DocumentType)
	assert.Equal(t, 0.0, res.Confidence)
	assert.False(t, res.IsMultiTransaction)
}

func TestClassifyMultiTransactionSpreadsheet(t *testing.T) {
	structured := map[string]any{
		"columns":   []string{"Date", "Description", "Amount", "Balance"},
		"row_count": 5,
		"detected_transaction_columns": map[string][]string{
			"date":        {"Date"},
			"amount":      {"Amount"},
			"description": {"Description"},
		},
		"is_multi_transaction": true,
	}
	rawText := "Date | Description | Amount | Balance\n" +
		"2025-01-02 | Coffee Shop | -50.00 | 950.00\n" +
		"2025-01-03 | Grocery Store | -85.67 | 864.33\n" +
		"2025-01-04 | Client Payment | 500.00 | 1364.33\n" +
		"2025-01-05 | Parking | -4.50 | 1359.83\n" +
		"2025-01-06 | Office Supplies | -45.80 | 1314.03\n"

	res := New().Classify("statement.csv", rawText, structured)
	assert.True(t, res.IsMultiTransaction)
	assert.Greater(t, res.MultiTransactionConfidence, 0.7)
	assert.Equal(t, "bank_statement_multi", res.DocumentType)
}

func TestClassifyMultiSignalAdditive(t *testing.T) {
	text := "Statement Period: Jan 2025\nOpening Balance: 1000.00\n" +
		"Transaction 1 ...\nTransaction 2 ...\nTransaction 3 ...\n"
	res := New().Classify("doc.pdf", text, nil)
	// Two keyword bundles plus numbered transactions.
	assert.InDelta(t, 0.7, res.MultiTransactionConfidence, 0.001)
	assert.True(t, res.IsMultiTransaction)
}

func TestClassifyMultiConfidenceCapped(t *testing.T) {
	structured := map[string]any{
		"row_count": 50,
		"detected_transaction_columns": map[string][]string{
			"date":   {"Date"},
			"amount": {"Amount"},
		},
		"is_multi_transaction": true,
	}
	text := "statement period opening balance transaction history account activity\n" +
		"transaction 1 transaction 2 transaction 3\n" +
		"2025-01-02 4.50\n2025-01-03 5.50\n2025-01-04 6.50\n2025-01-05 7.50\n"
	res := New().Classify("statement.csv", text, structured)
	assert.LessOrEqual(t, res.MultiTransactionConfidence, 1.0)
	assert.True(t, res.IsMultiTransaction)
}

func TestClassifyNoUpgradeForSingleTypes(t *testing.T) {
	// A receipt never becomes receipt_multi even with a strong multi signal.
	structured := map[string]any{
		"row_count":            10,
		"is_multi_transaction": true,
	}
	res := New().Classify("shop_receipt.jpg", "receipt subtotal thank you for shopping", structured)
	assert.Equal(t, TypeReceipt, res.DocumentType)
}
