package EVMRPC

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"

	"ckbridge/types"
)

// rawLog and rawReceipt mirror the eth_getTransactionReceipt JSON result.
type rawLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
}

type rawReceipt struct {
	TransactionHash string   `json:"transactionHash"`
	BlockNumber     string   `json:"blockNumber"`
	From            string   `json:"from"`
	To              string   `json:"to"`
	Status          string   `json:"status"`
	Logs            []rawLog `json:"logs"`
}

// normalize converts quantities to decimal strings. Addresses are kept
// exactly as the provider returned them.
func (r *rawReceipt) normalize() (*types.ReceiptData, error) {
	status, err := hexutil.DecodeUint64(r.Status)
	if err != nil {
		return nil, fmt.Errorf("malformed status %q: %w", r.Status, err)
	}
	block, err := hexutil.DecodeBig(r.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("malformed block number %q: %w", r.BlockNumber, err)
	}

	logs := make([]types.LogEntry, 0, len(r.Logs))
	for _, l := range r.Logs {
		topics := make([]string, len(l.Topics))
		copy(topics, l.Topics)
		logs = append(logs, types.LogEntry{Address: l.Address, Topics: topics})
	}

	return &types.ReceiptData{
		To:              r.To,
		Status:          fmt.Sprintf("%d", status),
		TransactionHash: r.TransactionHash,
		BlockNumber:     block.String(),
		From:            r.From,
		Logs:            logs,
	}, nil
}

// ReceiptCaller fetches one receipt from one provider. A nil receipt with a
// nil error means the provider does not know the transaction.
type ReceiptCaller func(ctx context.Context, url, hash string) (*types.ReceiptData, error)

// CallReceipt is the go-ethereum backed ReceiptCaller. The raw JSON-RPC call
// is used instead of ethclient.TransactionReceipt so that addresses keep the
// provider's spelling.
func CallReceipt(ctx context.Context, url, hash string) (*types.ReceiptData, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var raw *rawReceipt
	if err := client.Client().CallContext(ctx, &raw, "eth_getTransactionReceipt", strings.TrimSpace(hash)); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return raw.normalize()
}
