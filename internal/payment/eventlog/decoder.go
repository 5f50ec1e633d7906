// Package eventlog decodes contract events from receipt logs using an ABI description.
package eventlog

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/payment/digest"
)

// AddressFormatter renders a 20-byte account in the ledger's display form.
type AddressFormatter func(common.Address) string

// HexAddress is the EVM display form (EIP-55 checksummed hex).
func HexAddress(a common.Address) string {
	return a.Hex()
}

// Options scope a Decoder.
type Options struct {
	// Contract restricts matching to logs emitted by this address (display form).
	// Empty matches any emitter.
	Contract string
	// Format renders address-typed arguments. Defaults to HexAddress.
	Format AddressFormatter
}

// Decoder matches receipt logs against the events of one contract ABI.
type Decoder struct {
	contract string
	format   AddressFormatter
	// events in ABI declaration order; the first matching (log, event) pair wins.
	events []abi.Event
}

// NewDecoder parses an ABI JSON document. Both a bare ABI array and a compiler
// artifact with an "abi" field are accepted.
func NewDecoder(abiJSON []byte, opts Options) (*Decoder, error) {
	raw := abiJSON
	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(abiJSON, &artifact); err == nil && len(artifact.ABI) > 0 {
		raw = artifact.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	order, err := eventOrder(raw)
	if err != nil {
		return nil, err
	}

	events := make([]abi.Event, 0, len(order))
	for _, name := range order {
		ev, ok := parsed.Events[name]
		if !ok || ev.Anonymous {
			continue
		}
		events = append(events, ev)
	}

	format := opts.Format
	if format == nil {
		format = HexAddress
	}

	return &Decoder{
		contract: opts.Contract,
		format:   format,
		events:   events,
	}, nil
}

// LoadDecoder reads the ABI from a file.
func LoadDecoder(path string, opts Options) (*Decoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ABI file: %w", err)
	}
	return NewDecoder(data, opts)
}

// Events returns the known event names in declaration order.
func (d *Decoder) Events() []string {
	names := make([]string, len(d.events))
	for i, ev := range d.events {
		names[i] = ev.RawName
	}
	return names
}

// Signature returns the topic-0 digest of a known event.
func (d *Decoder) Signature(name string) (domain.Digest, bool) {
	for _, ev := range d.events {
		if ev.RawName == name {
			return digest.FromHash(ev.ID), true
		}
	}
	return "", false
}

// Decode returns the first log whose topic 0 matches a known event, decoded.
// It returns (nil, nil) when nothing matches. A log that matched topic 0 but cannot
// be decoded yields a MalformedLog error; it is never skipped.
func (d *Decoder) Decode(logs []domain.Log) (*domain.DecodedEvent, error) {
	for i, log := range logs {
		if d.contract != "" && log.Address != d.contract {
			continue
		}
		if len(log.Topics) == 0 {
			continue
		}
		topic0 := digest.Normalize(log.Topics[0])

		for _, ev := range d.events {
			if digest.FromHash(ev.ID) != topic0 {
				continue
			}
			args, err := d.decodeArgs(ev, log)
			if err != nil {
				return nil, domain.NewError(domain.KindMalformedLog, err.Error(), map[string]any{
					"event":    ev.RawName,
					"logIndex": i,
				})
			}
			return &domain.DecodedEvent{
				Name:     ev.RawName,
				Contract: log.Address,
				LogIndex: i,
				Args:     args,
			}, nil
		}
	}
	return nil, nil
}

func (d *Decoder) decodeArgs(ev abi.Event, log domain.Log) (map[string]any, error) {
	args := make(map[string]any, len(ev.Inputs))

	// Indexed parameters come positionally from topics 1..n.
	topicIdx := 1
	for _, input := range ev.Inputs {
		if !input.Indexed {
			continue
		}
		if topicIdx >= len(log.Topics) {
			return nil, fmt.Errorf("missing topic %d for indexed %s", topicIdx, input.Name)
		}
		word, err := parseWord(log.Topics[topicIdx])
		if err != nil {
			return nil, fmt.Errorf("topic %d: %w", topicIdx, err)
		}
		topicIdx++

		if input.Type.T == abi.AddressTy {
			args[input.Name] = d.format(common.BytesToAddress(word.Bytes()[12:]))
		} else {
			args[input.Name] = digest.FromHash(word)
		}
	}

	nonIndexed := ev.Inputs.NonIndexed()
	if len(nonIndexed) == 0 {
		return args, nil
	}

	data, err := decodeHex(log.Data)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	values, err := ev.Inputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}
	if len(values) != len(nonIndexed) {
		return nil, fmt.Errorf("unpacked %d values for %d parameters", len(values), len(nonIndexed))
	}

	for i, input := range nonIndexed {
		args[input.Name] = d.convert(input.Type, values[i])
	}
	return args, nil
}

// convert maps go-ethereum's unpacked Go values onto the DecodedEvent value set.
func (d *Decoder) convert(t abi.Type, v any) any {
	switch t.T {
	case abi.AddressTy:
		if a, ok := v.(common.Address); ok {
			return d.format(a)
		}
	case abi.UintTy, abi.IntTy:
		return toBigInt(v)
	case abi.FixedBytesTy:
		rv := reflect.ValueOf(v)
		b := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
		if len(b) == digest.Size {
			return digest.FromHash(common.BytesToHash(b))
		}
		return hexutil.Encode(b)
	case abi.BytesTy:
		if b, ok := v.([]byte); ok {
			return hexutil.Encode(b)
		}
	}
	return v
}

func toBigInt(v any) any {
	switch n := v.(type) {
	case *big.Int:
		return n
	case uint8:
		return new(big.Int).SetUint64(uint64(n))
	case uint16:
		return new(big.Int).SetUint64(uint64(n))
	case uint32:
		return new(big.Int).SetUint64(uint64(n))
	case uint64:
		return new(big.Int).SetUint64(n)
	case int8:
		return big.NewInt(int64(n))
	case int16:
		return big.NewInt(int64(n))
	case int32:
		return big.NewInt(int64(n))
	case int64:
		return big.NewInt(n)
	}
	return v
}

func parseWord(s string) (common.Hash, error) {
	b, err := decodeHex(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("expected %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	return hex.DecodeString(s)
}

// eventOrder lists event names in declaration order, resolving overloads the way
// abi.JSON does (Transfer, Transfer0, Transfer1, ...).
func eventOrder(raw []byte) ([]string, error) {
	var entries []struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to read ABI entries: %w", err)
	}

	used := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.Type != "event" {
			continue
		}
		name := e.Name
		for idx := 0; used[name]; idx++ {
			name = fmt.Sprintf("%s%d", e.Name, idx)
		}
		used[name] = true
		names = append(names, name)
	}
	return names, nil
}
