package purchase

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"solana-presale/internal/ledger"
)

// buildTransfer builds an unsigned system transfer citing the checkpoint, paid for by payer.
func buildTransfer(payer, payee solanago.PublicKey, lamports uint64, cp ledger.Checkpoint) (*solanago.Transaction, error) {
	blockhash, err := solanago.HashFromBase58(cp.Blockhash)
	if err != nil {
		return nil, fmt.Errorf("parse checkpoint %q: %w", cp.Blockhash, err)
	}

	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{
			system.NewTransferInstruction(lamports, payer, payee).Build(),
		},
		blockhash,
		solanago.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("build transfer: %w", err)
	}
	return tx, nil
}
