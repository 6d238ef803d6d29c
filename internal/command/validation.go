package command

import (
	"fmt"
	"strings"

	"github.com/familyledger/ledger/shared/models"
	"github.com/shopspring/decimal"
)

type field struct {
	name  string
	value string
}

func missingFields(fields ...field) []string {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Amounts are limited to what a balance column can hold. Anything beyond is
// rejected before any arithmetic, since rescaling a huge exponent is costly.
const (
	maxAmountScale         = 8
	maxAmountIntegerDigits = 20
)

// checkAmountBounds reports amounts with more than maxAmountScale decimal
// places or more than maxAmountIntegerDigits integer digits.
func checkAmountBounds(name string, amount decimal.Decimal) error {
	exp := int64(amount.Exponent())
	digits := int64(amount.NumDigits())
	if exp < -maxAmountScale || digits+exp > maxAmountIntegerDigits {
		return &models.ValidationError{
			Message: fmt.Sprintf("%s must have at most %d integer digits and %d decimal places",
				name, maxAmountIntegerDigits, maxAmountScale),
			Fields: []string{name},
		}
	}
	return nil
}

// validateAmount treats a zero amount as missing, like an absent id, and
// rejects negative or out-of-range amounts.
func validateAmount(amount decimal.Decimal, ids ...field) error {
	missing := missingFields(ids...)
	if amount.IsZero() {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return &models.ValidationError{Message: models.MissingFieldsMessage, Fields: missing}
	}
	if amount.IsNegative() {
		return &models.ValidationError{Message: "Amount must be greater than zero", Fields: []string{"amount"}}
	}
	return checkAmountBounds("amount", amount)
}
