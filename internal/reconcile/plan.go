package reconcile

import "github.com/stakebonds/bonds-settlement/internal/ledger"

// Chain is a sequence of transactions where each one depends on the ones
// before it.
type Chain []*ledger.Transaction

// Plan is the set of transactions of one operation. Chains are independent
// of each other.
type Plan struct {
	Operation string
	Chains    []Chain
}

func (p *Plan) add(txs ...*ledger.Transaction) {
	if len(txs) > 0 {
		p.Chains = append(p.Chains, Chain(txs))
	}
}

func (p *Plan) Transactions() int {
	n := 0
	for _, chain := range p.Chains {
		n += len(chain)
	}
	return n
}

func (p *Plan) Instructions() int {
	n := 0
	for _, chain := range p.Chains {
		for _, tx := range chain {
			n += len(tx.Instructions)
		}
	}
	return n
}

func (p *Plan) IsEmpty() bool {
	return len(p.Chains) == 0
}
