package domain

import "strings"

// ReceiptResultSuccess is the execution result of a transaction that did not revert.
const ReceiptResultSuccess = "SUCCESS"

// Receipt is a ledger node's record of an executed transaction.
type Receipt struct {
	TxID        string `json:"txid"`
	Result      string `json:"result"`
	BlockNumber uint64 `json:"block_number"`
	Logs        []Log  `json:"logs"`
}

// Succeeded reports whether the transaction executed successfully.
func (r *Receipt) Succeeded() bool {
	return strings.EqualFold(r.Result, ReceiptResultSuccess)
}

// Log is one event emitted during execution.
// Address is in the ledger's display form; Topics and Data are hex strings.
type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}
