package report

import (
	"fmt"
	"strings"

	"github.com/sakif/leaseshield/internal/model"
)

// EmailDraft writes a letter to the landlord raising every identified risk.
func EmailDraft(res model.AnalysisResult) string {
	landlord, ok := value(res.ExtractedData, "Landlord_Name")
	if !ok {
		landlord = "Landlord"
	}
	property, ok := value(res.ExtractedData, "Property_Address")
	if !ok {
		property = "the property"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", landlord)
	fmt.Fprintf(&b, "I hope this email finds you well. I am writing regarding the lease agreement for %s.\n\n", property)

	if len(res.Risks) > 0 {
		b.WriteString("After reviewing the lease, I would like to discuss the following concerns:\n\n")
		for i, r := range res.Risks {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
		b.WriteString("\n")
	}

	b.WriteString("I would appreciate the opportunity to discuss these points before finalizing the agreement. ")
	b.WriteString("Please let me know when you would be available for a conversation.\n\n")
	b.WriteString("Thank you for your consideration.\n\n")
	b.WriteString("Sincerely,\n[Your Name]")
	return b.String()
}
