package mcpserver

import (
	"fmt"

	"github.com/projectvak/contracthub/internal/status"
)

// StatusRules describes how a contract's status is derived, for LLM
// consumers that read or explain contract listings.
func StatusRules(t status.Thresholds) string {
	return fmt.Sprintf(`# Contract Status Rules

Every contract has exactly one derived status. It is computed on read and
never stored; do not try to set it directly.

## Order of evaluation

The first rule that applies wins.

1. **pushed**: the contract was sent to the CRM (flag never goes back).
2. **manually_edited**: someone edited the extracted data by hand.
3. **pending**: no confidence score yet (absent or 0).
4. **parsed**: confidence >= %[1]g. Ready for the CRM; the next sweep pushes it.
5. **needs_review**: confidence >= %[2]g.
6. **error**: any other positive confidence.

## Property rollup

A property (all contracts sharing one address) shows the worst status of
its contracts, in this order from worst to best:

error > needs_review > pending > manually_edited > parsed = pushed

A property only looks resolved when every contract is parsed or pushed.

## Pushing

- Sweeps push only contracts whose status is **parsed**.
- A manual push is allowed at any confidence and marks the contract as
  pushed manually.
- A failed push leaves the contract unchanged; the next sweep retries it.
`, t.Ready, t.Review)
}
