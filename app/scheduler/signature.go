// Package scheduler contains the convergence and reconciliation engine that
// keeps the remote campaign platform's schedules in step with the local ledger
package scheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// ComputeSignature returns a deterministic content hash over everything that
// would change the remote schedule: the send instant, the audience membership
// and the localized texts. Audience keys are sorted first so the result is
// order-independent. The signature is only ever compared for equality.
func ComputeSignature(sendAt time.Time, audienceKeys []string, localizedTexts ...string) string {
	keys := make([]string, len(audienceKeys))
	copy(keys, audienceKeys)
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(sendAt.UTC().Format(time.RFC3339))
	b.WriteByte('\n')
	b.WriteString(strings.Join(keys, "\x1f"))
	b.WriteByte('\n')
	b.WriteString(strings.Join(localizedTexts, "\x1f"))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
