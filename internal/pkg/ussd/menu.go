package ussd

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	msgWelcome        = "Welcome to VoteFox\n1. Vote\n0. Exit"
	msgInvalid        = "Invalid choice."
	msgCancelled      = "Session cancelled. Goodbye."
	msgNoEvents       = "There are no open voting events right now."
	msgNoCategories   = "This event has no categories yet."
	msgNoNominees     = "This category has no nominees yet."
	msgInitiateFailed = "We could not start your payment."
	msgProcessing     = "Your payment is being processed. Please wait for the prompt."
	msgUnavailable    = "Service temporarily unavailable. Please try again later."
	cancelOption      = "0"
	cancelKeyword     = "cancel"
	confirmOption     = "1"
	welcomeVoteOption = "1"
)

func isCancel(input string) bool {
	return input == cancelOption || strings.EqualFold(input, cancelKeyword)
}

func listMenu(title string, names []string) string {
	var b strings.Builder
	b.WriteString(title)
	for i, name := range names {
		fmt.Fprintf(&b, "\n%d. %s", i+1, name)
	}
	b.WriteString("\n0. Cancel")
	return b.String()
}

func votesPrompt(nominee string, maxVotes int) string {
	return fmt.Sprintf("Vote for %s\nEnter number of votes (1-%d):\n0. Cancel", nominee, maxVotes)
}

func confirmMenu(nominee string, votes int, amount decimal.Decimal) string {
	return fmt.Sprintf("Confirm %d vote(s) for %s\nTotal: %s\n1. Pay\n0. Cancel", votes, nominee, amount.StringFixed(2))
}

func approvePrompt(reference string) string {
	return fmt.Sprintf("Approve the payment prompt on your phone to complete your vote.\nRef: %s", reference)
}

func withError(prefix, menu string) string {
	return prefix + "\n" + menu
}
