package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"certportal/internal/models"
)

// Client resolves a certificate id to its on-chain status. An unknown or
// revoked certificate is a normal result with IsValid=false, not an error.
type Client interface {
	VerifyCertificate(ctx context.Context, certID string) (models.VerificationResult, error)
}

// ContractCaller is the read-only slice of ethclient.Client we need.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

const verifyMethod = "verifyCertificate"

// CertificateRegistryABI describes the registry's read method:
// verifyCertificate(string) view returns (bool isValid, string studentName, string blobId)
const CertificateRegistryABI = `[{
	"type": "function",
	"name": "verifyCertificate",
	"stateMutability": "view",
	"inputs": [{"name": "certId", "type": "string"}],
	"outputs": [
		{"name": "isValid", "type": "bool"},
		{"name": "studentName", "type": "string"},
		{"name": "blobId", "type": "string"}
	]
}]`

var (
	ErrInvalidAddress = errors.New("invalid contract address")
	ErrNoContractCode = errors.New("no contract code at address")
)

var registryABI = mustParseABI(CertificateRegistryABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse certificate registry abi: %v", err))
	}
	return parsed
}

// ContractClient reads certificate status from the registry contract with
// plain eth_call, always against the latest block.
type ContractClient struct {
	caller  ContractCaller
	address common.Address
}

func NewContractClient(caller ContractCaller, address string) (*ContractClient, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return &ContractClient{caller: caller, address: common.HexToAddress(address)}, nil
}

// Dial connects to a JSON-RPC endpoint and binds the registry at address.
// The returned close func releases the RPC connection.
func Dial(ctx context.Context, rpcURL, address string) (*ContractClient, func(), error) {
	if !common.IsHexAddress(address) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	c, err := NewContractClient(ec, address)
	if err != nil {
		ec.Close()
		return nil, nil, err
	}
	return c, ec.Close, nil
}

func (c *ContractClient) Address() common.Address { return c.address }

func (c *ContractClient) VerifyCertificate(ctx context.Context, certID string) (models.VerificationResult, error) {
	var res models.VerificationResult

	input, err := registryABI.Pack(verifyMethod, certID)
	if err != nil {
		return res, fmt.Errorf("pack %s: %w", verifyMethod, err)
	}

	to := c.address
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return res, fmt.Errorf("call %s on %s: %w", verifyMethod, c.address.Hex(), err)
	}
	if len(out) == 0 {
		return res, fmt.Errorf("%w %s", ErrNoContractCode, c.address.Hex())
	}

	vals, err := registryABI.Unpack(verifyMethod, out)
	if err != nil {
		return res, fmt.Errorf("unpack %s: %w", verifyMethod, err)
	}
	if len(vals) != 3 {
		return res, fmt.Errorf("unpack %s: got %d values, want 3", verifyMethod, len(vals))
	}

	valid, ok1 := vals[0].(bool)
	name, ok2 := vals[1].(string)
	blob, ok3 := vals[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return res, fmt.Errorf("unpack %s: unexpected output types %T, %T, %T", verifyMethod, vals[0], vals[1], vals[2])
	}

	if !valid {
		// the contract may still return data for revoked entries; never surface it
		return models.VerificationResult{}, nil
	}
	return models.VerificationResult{
		IsValid:     true,
		StudentName: name,
		BlobID:      blob,
	}, nil
}
