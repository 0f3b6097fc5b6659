package assessment

import (
	"strconv"
	"strings"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// fraudPatterns are the local fraud patterns the reviewer is asked to weigh.
var fraudPatterns = []string{
	"SIM swap attacks (especially with unverified BVN)",
	"Account takeover",
	"Money mule activity",
	"Romance/investment scams",
	"Structuring to avoid AML thresholds",
	"New account fraud",
	"Unusual transaction patterns for the Nigerian market",
}

// BuildPrompt renders the narrative brief sent to reasoning services.
func BuildPrompt(req domain.AssessmentRequest) string {
	tx := req.Transaction
	state := "Unknown"
	if tx.Location.State != nil {
		state = *tx.Location.State
	}
	flags := "None"
	if len(req.RuleFlags) > 0 {
		flags = strings.Join(req.RuleFlags, ", ")
	}

	var b strings.Builder
	b.WriteString("You are a fraud detection expert for a Nigerian fintech company. ")
	b.WriteString("Analyze this transaction for potential fraud risk.\n\n")
	b.WriteString("Transaction Details:\n")
	line(&b, "Amount", "₦"+groupThousands(tx.Amount))
	line(&b, "Type", string(tx.TransactionType))
	line(&b, "Channel", string(tx.Channel))
	line(&b, "KYC Tier", string(tx.KYCTier))
	line(&b, "BVN Verified", yesNo(tx.BVNVerified))
	line(&b, "Account Age", groupThousands(tx.AccountAge)+" days")
	line(&b, "Time", tx.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"))
	line(&b, "Location", state+", "+tx.Location.Country)
	line(&b, "New Recipient", yesNo(tx.RecipientNew))
	line(&b, "User's Average Transaction", "₦"+groupThousands(tx.UserHistory.AvgTransactionAmount))
	line(&b, "Failed Transactions (24h)", groupThousands(tx.UserHistory.FailedTransactionsLast24h))
	line(&b, "Daily Transaction Count", groupThousands(tx.UserHistory.DailyTransactionCount))
	b.WriteString("\nRule-Based Risk Score: ")
	b.WriteString(strconv.FormatFloat(req.RiskScore, 'f', -1, 64))
	b.WriteString("/100\nFlags Raised: ")
	b.WriteString(flags)
	b.WriteString("\n\nConsider Nigerian fintech fraud patterns:\n")
	for _, p := range fraudPatterns {
		b.WriteString("- ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString("\nProvide your risk assessment.")
	return b.String()
}

func line(b *strings.Builder, label, value string) {
	b.WriteString("- ")
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// groupThousands formats 2500000 as "2,500,000", keeping any fraction.
func groupThousands(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var out strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(r)
	}
	if hasFrac {
		out.WriteByte('.')
		out.WriteString(frac)
	}
	return sign + out.String()
}
