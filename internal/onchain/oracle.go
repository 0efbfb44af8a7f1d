// Package onchain talks to the SecurityOracle contract: submitting
// audit reports and polling for AuditRequested events. Event delivery
// uses block-range polling because public HTTP RPC endpoints do not
// serve eth_newFilter subscriptions.
package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/oraclesec/sentinel/internal/logging"
	"github.com/oraclesec/sentinel/internal/report"
)

const oracleABIJSON = `[
  {"type":"function","name":"submitReport","stateMutability":"nonpayable","inputs":[
    {"name":"target","type":"address"},
    {"name":"riskScore","type":"uint8"},
    {"name":"ipfsHash","type":"string"},
    {"name":"findingsCount","type":"uint16"},
    {"name":"criticalCount","type":"uint8"},
    {"name":"highCount","type":"uint8"},
    {"name":"mediumCount","type":"uint8"},
    {"name":"lowCount","type":"uint8"},
    {"name":"sourceVerified","type":"bool"}],"outputs":[]},
  {"type":"function","name":"getScore","stateMutability":"view","inputs":[
    {"name":"target","type":"address"}],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"isAudited","stateMutability":"view","inputs":[
    {"name":"target","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getAuditedCount","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"AuditRequested","anonymous":false,"inputs":[
    {"name":"target","type":"address","indexed":true},
    {"name":"requester","type":"address","indexed":true}]},
  {"type":"event","name":"ReportSubmitted","anonymous":false,"inputs":[
    {"name":"target","type":"address","indexed":true},
    {"name":"riskScore","type":"uint8","indexed":false},
    {"name":"ipfsHash","type":"string","indexed":false}]}
]`

const pollInterval = 15 * time.Second

// RequestCallback receives AuditRequested events.
type RequestCallback func(target, requester string)

// OracleClient wraps the SecurityOracle contract for the agent wallet.
type OracleClient struct {
	client     *ethclient.Client
	contract   *bind.BoundContract
	parsedABI  abi.ABI
	auth       *bind.TransactOpts
	oracleAddr common.Address
	agentAddr  common.Address
	logger     logging.Logger
}

// NewOracleClient dials the RPC endpoint and binds the oracle contract
// to the agent key.
func NewOracleClient(ctx context.Context, oracleAddress, privateKeyHex, rpcURL string, logger logging.Logger) (*OracleClient, error) {
	if !common.IsHexAddress(oracleAddress) {
		return nil, fmt.Errorf("invalid oracle address: %s", oracleAddress)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc %s: %w", rpcURL, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing agent private key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying chain id: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("creating transactor: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(oracleABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing oracle abi: %w", err)
	}

	oracleAddr := common.HexToAddress(oracleAddress)
	return &OracleClient{
		client:     client,
		contract:   bind.NewBoundContract(oracleAddr, parsedABI, client, client, client),
		parsedABI:  parsedABI,
		auth:       auth,
		oracleAddr: oracleAddr,
		agentAddr:  crypto.PubkeyToAddress(key.PublicKey),
		logger:     logger.With(logging.Field{Key: "component", Value: "oracle"}),
	}, nil
}

// AgentAddress is the submitting wallet address.
func (o *OracleClient) AgentAddress() string {
	return o.agentAddr.Hex()
}

// SubmitReport publishes a summary on-chain and waits for the receipt.
func (o *OracleClient) SubmitReport(ctx context.Context, sum report.Summary) (string, error) {
	if !common.IsHexAddress(sum.Address) {
		return "", fmt.Errorf("invalid target address: %s", sum.Address)
	}

	opts := *o.auth
	opts.Context = ctx

	tx, err := o.contract.Transact(&opts, "submitReport",
		common.HexToAddress(sum.Address),
		clampUint8(sum.RiskScore),
		sum.IPFSHash,
		clampUint16(sum.TotalFindings),
		clampUint8(sum.CriticalCount),
		clampUint8(sum.HighCount),
		clampUint8(sum.MediumCount),
		clampUint8(sum.LowCount),
		sum.SourceVerified,
	)
	if err != nil {
		return "", fmt.Errorf("submitReport tx: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, o.client, tx)
	if err != nil {
		return "", fmt.Errorf("waiting for submitReport receipt: %w", err)
	}
	return receipt.TxHash.Hex(), nil
}

// GetScore reads the stored risk score for a target.
func (o *OracleClient) GetScore(ctx context.Context, target string) (uint8, error) {
	var out []interface{}
	err := o.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getScore", common.HexToAddress(target))
	if err != nil {
		return 0, fmt.Errorf("getScore: %w", err)
	}
	score, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("getScore returned unexpected type %T", out[0])
	}
	return score, nil
}

// IsAudited reports whether a target has an on-chain report.
func (o *OracleClient) IsAudited(ctx context.Context, target string) (bool, error) {
	var out []interface{}
	err := o.contract.Call(&bind.CallOpts{Context: ctx}, &out, "isAudited", common.HexToAddress(target))
	if err != nil {
		return false, fmt.Errorf("isAudited: %w", err)
	}
	audited, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("isAudited returned unexpected type %T", out[0])
	}
	return audited, nil
}

// GetAuditedCount reads the number of audited contracts.
func (o *OracleClient) GetAuditedCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	err := o.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAuditedCount")
	if err != nil {
		return 0, fmt.Errorf("getAuditedCount: %w", err)
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("getAuditedCount returned unexpected type %T", out[0])
	}
	return count.Uint64(), nil
}

// ListenForRequests polls for AuditRequested events until the context
// is cancelled, invoking the callback for each one. Transient RPC
// errors skip the cycle; the next tick retries from the same block.
func (o *OracleClient) ListenForRequests(ctx context.Context, callback RequestCallback) error {
	lastBlock, err := o.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("reading head block: %w", err)
	}
	o.logger.Info("polling for audit requests",
		logging.Field{Key: "from_block", Value: lastBlock},
		logging.Field{Key: "oracle", Value: o.oracleAddr.Hex()})

	eventID := o.parsedABI.Events["AuditRequested"].ID

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		current, err := o.client.BlockNumber(ctx)
		if err != nil || current <= lastBlock {
			continue
		}

		logs, err := o.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(lastBlock + 1),
			ToBlock:   new(big.Int).SetUint64(current),
			Addresses: []common.Address{o.oracleAddr},
			Topics:    [][]common.Hash{{eventID}},
		})
		if err != nil {
			o.logger.Warn("event filter failed", logging.Field{Key: "error", Value: err.Error()})
			continue
		}

		for _, lg := range logs {
			if len(lg.Topics) < 3 {
				continue
			}
			target := common.BytesToAddress(lg.Topics[1].Bytes())
			requester := common.BytesToAddress(lg.Topics[2].Bytes())
			callback(target.Hex(), requester.Hex())
		}
		lastBlock = current
	}
}

// ValidAddress reports whether s looks like a hex contract address.
func ValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

func clampUint8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clampUint16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}
