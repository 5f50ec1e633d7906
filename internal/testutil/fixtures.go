// Package testutil holds contract fixtures and log builders shared by package tests.
package testutil

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// PaymentABI is a trimmed payment contract ABI: two events and one function.
const PaymentABI = `[
  {"type":"function","name":"pay","stateMutability":"nonpayable","inputs":[
    {"name":"merchantId","type":"bytes32"},{"name":"orderId","type":"bytes32"},
    {"name":"invoiceId","type":"bytes32"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"PaymentDetected","anonymous":false,"inputs":[
    {"name":"merchantId","type":"bytes32","indexed":true},
    {"name":"orderId","type":"bytes32","indexed":true},
    {"name":"invoiceId","type":"bytes32","indexed":true},
    {"name":"payer","type":"address","indexed":false},
    {"name":"paymentToken","type":"address","indexed":false},
    {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"PaymentRefunded","anonymous":false,"inputs":[
    {"name":"orderId","type":"bytes32","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]}
]`

// RegistryABI is a trimmed merchant registry ABI.
const RegistryABI = `[
  {"type":"event","name":"MerchantOnboarded","anonymous":false,"inputs":[
    {"name":"merchantId","type":"bytes32","indexed":true},
    {"name":"owner","type":"address","indexed":true},
    {"name":"active","type":"bool","indexed":false},
    {"name":"feeBps","type":"uint16","indexed":false}]}
]`

// Fixed addresses used across tests.
var (
	PaymentContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	TokenContract   = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	OtherToken      = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	Payer           = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	RegistryContract = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
)

// EventLog packs one log for the named event. indexed holds topic values in order;
// data holds the non-indexed values in order.
func EventLog(abiJSON, event, contract string, indexed []common.Hash, data ...any) (domain.Log, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return domain.Log{}, err
	}
	ev, ok := parsed.Events[event]
	if !ok {
		return domain.Log{}, fmt.Errorf("unknown event %s", event)
	}

	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return domain.Log{}, err
	}

	topics := []string{ev.ID.Hex()}
	for _, h := range indexed {
		topics = append(topics, h.Hex())
	}

	return domain.Log{
		Address: contract,
		Topics:  topics,
		Data:    hexutil.Encode(packed),
	}, nil
}

// PaymentDetected builds a PaymentDetected log emitted by PaymentContract.
func PaymentDetected(merchant, order, invoice domain.Digest, token common.Address, amount *big.Int) domain.Log {
	log, err := EventLog(PaymentABI, "PaymentDetected", PaymentContract.Hex(),
		[]common.Hash{hash(merchant), hash(order), hash(invoice)},
		Payer, token, amount,
	)
	if err != nil {
		panic(err)
	}
	return log
}

// PaymentRefunded builds a PaymentRefunded log emitted by PaymentContract.
func PaymentRefunded(order domain.Digest, amount *big.Int) domain.Log {
	log, err := EventLog(PaymentABI, "PaymentRefunded", PaymentContract.Hex(),
		[]common.Hash{hash(order)}, amount)
	if err != nil {
		panic(err)
	}
	return log
}

// MerchantOnboarded builds a MerchantOnboarded log emitted by RegistryContract.
func MerchantOnboarded(merchant domain.Digest, owner common.Address, active bool) domain.Log {
	log, err := EventLog(RegistryABI, "MerchantOnboarded", RegistryContract.Hex(),
		[]common.Hash{hash(merchant), common.BytesToHash(owner.Bytes())}, active, uint16(25))
	if err != nil {
		panic(err)
	}
	return log
}

// Raw parses a base-10 integer for test amounts.
func Raw(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer " + s)
	}
	return n
}

func hash(d domain.Digest) common.Hash {
	if d.Absent() {
		return common.Hash{}
	}
	return common.HexToHash(d.String())
}
