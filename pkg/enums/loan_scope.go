package enums

import (
	"fmt"
	"strings"
)

// LoanScope selects whose active loans a listing returns.
type LoanScope string

const (
	LoanScopeSelf LoanScope = "self"
	LoanScopeAll  LoanScope = "all"
)

// ParseLoanScope converts raw query input into a LoanScope. Empty input means self.
func ParseLoanScope(value string) (LoanScope, error) {
	switch LoanScope(strings.ToLower(strings.TrimSpace(value))) {
	case "", LoanScopeSelf:
		return LoanScopeSelf, nil
	case LoanScopeAll:
		return LoanScopeAll, nil
	}
	return "", fmt.Errorf("invalid loan scope %q", value)
}
