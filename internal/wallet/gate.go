package wallet

import (
	"encoding/binary"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// Gate approves a transaction before it is signed. A non-nil error rejects it.
type Gate func(tx *solanago.Transaction) error

// systemTransferIndex is the system program's Transfer instruction discriminator.
const systemTransferIndex = 2

// MaxLamportsGate rejects transactions whose system transfers exceed max lamports in total.
func MaxLamportsGate(max uint64) Gate {
	return func(tx *solanago.Transaction) error {
		total, err := TransferredLamports(tx)
		if err != nil {
			return err
		}
		if total > max {
			return fmt.Errorf("transfer of %d lamports exceeds limit %d", total, max)
		}
		return nil
	}
}

// TransferredLamports sums lamports moved by system program Transfer instructions.
func TransferredLamports(tx *solanago.Transaction) (uint64, error) {
	if tx == nil {
		return 0, fmt.Errorf("nil transaction")
	}

	var total uint64
	keys := tx.Message.AccountKeys
	for i, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(keys) {
			return 0, fmt.Errorf("instruction %d: program index %d out of range", i, inst.ProgramIDIndex)
		}
		if !keys[inst.ProgramIDIndex].Equals(solanago.SystemProgramID) {
			continue
		}

		data := []byte(inst.Data)
		// u32 discriminator followed by u64 lamports
		if len(data) < 12 || binary.LittleEndian.Uint32(data[:4]) != systemTransferIndex {
			continue
		}
		total += binary.LittleEndian.Uint64(data[4:12])
	}
	return total, nil
}
