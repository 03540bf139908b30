package reconcile

import (
	"fmt"
	"strings"
)

// RenderOrgList renders an ordered organization membership list as the
// canonical "Name (id)" comma-separated string. Duplicate external ids are
// suppressed; first-seen order is preserved.
func RenderOrgList(orgs []OrgRef) string {
	var b strings.Builder
	seen := make(map[int]bool, len(orgs))
	for _, org := range orgs {
		if seen[org.ID] {
			continue
		}
		seen[org.ID] = true
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%d)", org.Name, org.ID)
	}
	return b.String()
}
