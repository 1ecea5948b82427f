package aggregate

import "github.com/sells-group/pharmareach-cli/internal/store"

// ResolvePrimaryPayers picks, per recipient identifier, the payer with the
// largest summed payment. Exact ties break alphabetically by payer name so
// reruns are deterministic regardless of input order.
func ResolvePrimaryPayers(groups []store.PayerSpend) map[string]string {
	type best struct {
		payer string
		cents int64
	}

	top := make(map[string]best)
	for _, g := range groups {
		cur, ok := top[g.RecipientID]
		switch {
		case !ok:
			top[g.RecipientID] = best{payer: g.PayerName, cents: g.AmountCents}
		case g.AmountCents > cur.cents:
			top[g.RecipientID] = best{payer: g.PayerName, cents: g.AmountCents}
		case g.AmountCents == cur.cents && g.PayerName < cur.payer:
			top[g.RecipientID] = best{payer: g.PayerName, cents: g.AmountCents}
		}
	}

	out := make(map[string]string, len(top))
	for id, b := range top {
		out[id] = b.payer
	}
	return out
}
