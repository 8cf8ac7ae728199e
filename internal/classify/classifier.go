// Package classify assigns a document type and a multi-transaction flag to an
// extraction result using filename hints, structured-data shape, and
// regex/keyword scoring over the raw text.
package classify

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Result is the classifier verdict for one document.
type Result struct {
	DocumentType               string
	IsMultiTransaction         bool
	Confidence                 float64
	MultiTransactionConfidence float64
	Indicators                 []string
}

const (
	TypeReceipt             = "receipt"
	TypeInvoice             = "invoice"
	TypeUtilityBill         = "utility_bill"
	TypePaystub             = "paystub"
	TypeBankStatement       = "bank_statement"
	TypeExpenseReport       = "expense_report"
	TypeCreditCardStatement = "credit_card_statement"
	TypeUnknown             = "unknown"
)

const (
	multiThreshold   = 0.6
	upgradeThreshold = 0.7
	filenameScore    = 0.8
)

// filenamePatterns maps filename keywords to a type, checked after the
// bank/credit modifiers.
var filenamePatterns = []struct {
	keyword string
	docType string
}{
	{"receipt", TypeReceipt},
	{"invoice", TypeInvoice},
	{"bill", TypeUtilityBill},
	{"expense", TypeExpenseReport},
	{"statement", TypeBankStatement},
	{"stmt", TypeBankStatement},
}

// contentPatterns drives the second pass; confidence is matched/total per
// type.
var contentPatterns = map[string][]*regexp.Regexp{
	TypeReceipt: {
		regexp.MustCompile(`(?i)\breceipt\b`),
		regexp.MustCompile(`(?i)\b(sub\s*total|subtotal)\b`),
		regexp.MustCompile(`(?i)\b(cash|change\s+due|card\s+ending)\b`),
		regexp.MustCompile(`(?i)thank\s+you\s+for\s+(your|shopping)`),
	},
	TypeInvoice: {
		regexp.MustCompile(`(?i)\binvoice\b`),
		regexp.MustCompile(`(?i)\b(invoice\s*(no|number|#)|bill\s+to)\b`),
		regexp.MustCompile(`(?i)\b(due\s+date|payment\s+terms|net\s+\d+)\b`),
		regexp.MustCompile(`(?i)\bamount\s+due\b`),
	},
	TypeUtilityBill: {
		regexp.MustCompile(`(?i)\b(electric|gas|water|utility|internet|broadband)\b`),
		regexp.MustCompile(`(?i)\b(billing\s+period|meter|usage|kwh)\b`),
		regexp.MustCompile(`(?i)\b(service\s+address|account\s+number)\b`),
	},
	TypePaystub: {
		regexp.MustCompile(`(?i)\b(pay\s*stub|payslip|earnings\s+statement)\b`),
		regexp.MustCompile(`(?i)\b(gross\s+pay|net\s+pay|ytd)\b`),
		regexp.MustCompile(`(?i)\b(deductions?|withholding|federal\s+tax)\b`),
	},
	TypeBankStatement: {
		regexp.MustCompile(`(?i)\b(bank\s+statement|account\s+statement)\b`),
		regexp.MustCompile(`(?i)\b(opening\s+balance|closing\s+balance|beginning\s+balance|ending\s+balance)\b`),
		regexp.MustCompile(`(?i)\b(deposits?|withdrawals?)\b`),
		regexp.MustCompile(`(?i)\b(account\s+number|routing\s+number)\b`),
	},
	TypeExpenseReport: {
		regexp.MustCompile(`(?i)\bexpense\s+report\b`),
		regexp.MustCompile(`(?i)\b(reimburs\w+|per\s+diem)\b`),
		regexp.MustCompile(`(?i)\b(employee|submitted\s+by|approved\s+by)\b`),
	},
	TypeCreditCardStatement: {
		regexp.MustCompile(`(?i)\bcredit\s+card\b`),
		regexp.MustCompile(`(?i)\b(minimum\s+payment|payment\s+due|credit\s+limit)\b`),
		regexp.MustCompile(`(?i)\b(purchases?|previous\s+balance|new\s+balance)\b`),
		regexp.MustCompile(`(?i)\bapr\b`),
	},
}

// multiTypes is the set for which an upgraded `<type>_multi` tag exists.
var multiTypes = map[string]bool{
	TypeBankStatement:       true,
	TypeExpenseReport:       true,
	TypeCreditCardStatement: true,
}

// multiKeywordBundles each add +0.2 to the multi-transaction signal when any
// of the bundle's words hit.
var multiKeywordBundles = [][]string{
	{"statement period", "statement date", "billing cycle"},
	{"opening balance", "closing balance", "beginning balance", "ending balance"},
	{"transaction history", "transaction detail", "account activity"},
}

var (
	transactionNumberPattern = regexp.MustCompile(`(?i)transaction\s*\d+`)
	dateAmountLinePattern    = regexp.MustCompile(`(?m)^.*\d{1,4}[/\-]\d{1,2}[/\-]\d{1,4}.*[\$\-]?\d+[\.,]\d{2}.*$`)
)

// Classifier scores documents into types. Stateless.
type Classifier struct{}

func New() *Classifier { return &Classifier{} }

// Classify runs the three scoring passes; each may raise confidence and the
// best wins for type. The multi-transaction signal is scored separately.
func (c *Classifier) Classify(filePath, rawText string, structured map[string]any) Result {
	res := Result{DocumentType: TypeUnknown}

	c.scoreFilename(filePath, structured, &res)
	c.scoreContent(rawText, &res)
	c.scoreMulti(rawText, structured, &res)

	res.IsMultiTransaction = res.MultiTransactionConfidence > multiThreshold
	if res.IsMultiTransaction && res.MultiTransactionConfidence > upgradeThreshold && multiTypes[res.DocumentType] {
		res.DocumentType += "_multi"
	}
	return res
}

func (c *Classifier) scoreFilename(filePath string, structured map[string]any, res *Result) {
	name := strings.ToLower(filepath.Base(filePath))

	if strings.Contains(name, "statement") || strings.Contains(name, "stmt") {
		docType := TypeBankStatement
		if strings.Contains(name, "credit") || strings.Contains(name, "card") {
			docType = TypeCreditCardStatement
		}
		c.raise(res, docType, filenameScore, "filename:"+docType)
		return
	}
	for _, p := range filenamePatterns {
		if strings.Contains(name, p.keyword) {
			c.raise(res, p.docType, filenameScore, "filename:"+p.keyword)
			return
		}
	}

	// Spreadsheet shape: a sheet whose headers hit at least 3 of the
	// transaction vocabulary reads as a bank statement.
	if cols, ok := structured["columns"].([]string); ok {
		hits := 0
		for _, col := range cols {
			lower := strings.ToLower(col)
			for _, w := range []string{"date", "amount", "description", "vendor", "transaction"} {
				if strings.Contains(lower, w) {
					hits++
					break
				}
			}
		}
		if hits >= 3 {
			c.raise(res, TypeBankStatement, filenameScore, "columns:transaction-shaped")
		}
	}
}

func (c *Classifier) scoreContent(rawText string, res *Result) {
	if rawText == "" {
		return
	}
	for docType, patterns := range contentPatterns {
		matched := 0
		for _, p := range patterns {
			if p.MatchString(rawText) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(patterns))
		c.raise(res, docType, score, "content:"+docType)
	}
}

func (c *Classifier) scoreMulti(rawText string, structured map[string]any, res *Result) {
	score := 0.0
	lower := strings.ToLower(rawText)

	for _, bundle := range multiKeywordBundles {
		for _, w := range bundle {
			if strings.Contains(lower, w) {
				score += 0.2
				res.Indicators = append(res.Indicators, "multi:keyword:"+w)
				break
			}
		}
	}

	if rows, ok := intValue(structured["row_count"]); ok && rows > 5 {
		score += 0.3
		res.Indicators = append(res.Indicators, "multi:row_count")
	}
	if detected, ok := structured["detected_transaction_columns"].(map[string][]string); ok {
		if len(detected["amount"]) > 0 && len(detected["date"]) > 0 {
			score += 0.4
			res.Indicators = append(res.Indicators, "multi:amount+date columns")
		}
	}
	if len(transactionNumberPattern.FindAllString(rawText, 4)) > 2 {
		score += 0.3
		res.Indicators = append(res.Indicators, "multi:numbered transactions")
	}
	if len(dateAmountLinePattern.FindAllString(rawText, 5)) > 3 {
		score += 0.25
		res.Indicators = append(res.Indicators, "multi:date-amount lines")
	}

	// An extractor-level verdict counts toward the signal too.
	if isMulti, ok := structured["is_multi_transaction"].(bool); ok && isMulti {
		score += 0.4
		res.Indicators = append(res.Indicators, "multi:structured flag")
	}

	if score > 1.0 {
		score = 1.0
	}
	res.MultiTransactionConfidence = score
}

func (c *Classifier) raise(res *Result, docType string, score float64, indicator string) {
	res.Indicators = append(res.Indicators, indicator)
	if score > res.Confidence {
		res.Confidence = score
		res.DocumentType = docType
	}
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
