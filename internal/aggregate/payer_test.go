package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/pharmareach-cli/internal/store"
)

func TestResolvePrimaryPayers(t *testing.T) {
	primary := ResolvePrimaryPayers([]store.PayerSpend{
		{RecipientID: "1", PayerName: "Acme", AmountCents: 30_00},
		{RecipientID: "1", PayerName: "Beta", AmountCents: 45_00},
		{RecipientID: "2", PayerName: "Gamma", AmountCents: 10_00},
	})

	assert.Equal(t, map[string]string{"1": "Beta", "2": "Gamma"}, primary)
}

func TestResolvePrimaryPayers_TieBreaksAlphabetically(t *testing.T) {
	// Same totals either input order; the winner must not depend on order.
	forward := ResolvePrimaryPayers([]store.PayerSpend{
		{RecipientID: "1", PayerName: "Acme", AmountCents: 30_00},
		{RecipientID: "1", PayerName: "Zeta", AmountCents: 30_00},
	})
	reverse := ResolvePrimaryPayers([]store.PayerSpend{
		{RecipientID: "1", PayerName: "Zeta", AmountCents: 30_00},
		{RecipientID: "1", PayerName: "Acme", AmountCents: 30_00},
	})

	assert.Equal(t, "Acme", forward["1"])
	assert.Equal(t, "Acme", reverse["1"])
}

func TestResolvePrimaryPayers_Empty(t *testing.T) {
	assert.Empty(t, ResolvePrimaryPayers(nil))
}
