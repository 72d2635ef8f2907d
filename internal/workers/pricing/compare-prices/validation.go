// internal/workers/pricing/compare-prices/validation.go
package compareprices

import (
	"fmt"
	"regexp"
	"strings"
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

func validateInput(input *Input, maxProducts int) error {
	if input == nil {
		return fmt.Errorf("input cannot be nil")
	}
	if strings.TrimSpace(input.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if strings.TrimSpace(input.ProjectID) == "" {
		return fmt.Errorf("projectId is required")
	}

	nonBlank := 0
	for _, name := range input.ProductNames {
		if strings.TrimSpace(name) != "" {
			nonBlank++
		}
	}
	if nonBlank == 0 {
		return fmt.Errorf("productNames must contain at least one non-blank entry")
	}
	if nonBlank > maxProducts {
		return fmt.Errorf("productNames exceeds the limit of %d products", maxProducts)
	}

	if input.ZipCode != "" && !zipPattern.MatchString(input.ZipCode) {
		return fmt.Errorf("zipCode must be a 5-digit US ZIP code")
	}
	return nil
}
