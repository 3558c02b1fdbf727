package config

import (
	"time"

	"ckbridge/types"
)

type Configuration struct {
	// Server config
	Server struct {
		Port      int    `yaml:"port" envconfig:"PORT"`
		UseSSL    bool   `yaml:"ssl" envconfig:"SSL"`
		RedisPort int    `yaml:"redis_port" envconfig:"REDIS_PORT"`
		RedisHost string `yaml:"redis_host" envconfig:"REDIS_HOST"`
		// memory, redis or postgres
		RegistryBackend string `yaml:"registry_backend" envconfig:"REGISTRY_BACKEND"`
		PostgresDSN     string `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN"`
	} `yaml:"server" envconfig:"SERVER"`
	// request signing and privileged callers
	Auth struct {
		HMACSecret  string        `yaml:"hmac_secret" envconfig:"HMAC_SECRET"`
		MaxSkew     time.Duration `yaml:"max_skew" envconfig:"MAX_SKEW"`
		Controllers []string      `yaml:"controllers" envconfig:"CONTROLLERS"`
		// principal the service itself runs as on the ledgers
		ServicePrincipal string `yaml:"service_principal" envconfig:"SERVICE_PRINCIPAL"`
	} `yaml:"auth" envconfig:"AUTH"`
	// JSON-RPC gateways in front of the ledger and minter canisters
	Gateway struct {
		LedgerURL string `yaml:"ledger_url" envconfig:"LEDGER_URL"`
		MinterURL string `yaml:"minter_url" envconfig:"MINTER_URL"`
	} `yaml:"gateway" envconfig:"GATEWAY"`
	// EVM-related config
	EVM struct {
		Providers      []string      `yaml:"providers" envconfig:"PROVIDERS"`
		ReceiptTimeout time.Duration `yaml:"receipt_timeout" envconfig:"RECEIPT_TIMEOUT"`
	} `yaml:"EVM" envconfig:"EVM"`
	Timeouts struct {
		Ledger time.Duration `yaml:"ledger" envconfig:"LEDGER"`
		Minter time.Duration `yaml:"minter" envconfig:"MINTER"`
	} `yaml:"timeouts" envconfig:"TIMEOUTS"`
	Log struct {
		Level  string `yaml:"level" envconfig:"LEVEL"`
		Format string `yaml:"format" envconfig:"FORMAT"`
	} `yaml:"log" envconfig:"LOG"`
	Reconcile struct {
		Interval time.Duration `yaml:"interval" envconfig:"INTERVAL"`
	} `yaml:"reconcile" envconfig:"RECONCILE"`
}

var Config Configuration

const (
	DefaultReceiptTimeout = 10 * time.Second
	DefaultLedgerTimeout  = 15 * time.Second
	DefaultMinterTimeout  = 30 * time.Second
	DefaultMaxSkew        = time.Minute
	DefaultReconcile      = 30 * time.Second
)

// receipts are only trusted when every one of these agrees
var SepoliaProviders = []string{
	"https://ethereum-sepolia-rpc.publicnode.com",
	"https://ethereum-sepolia.blockpi.network/v1/rpc/public",
	"https://rpc.ankr.com/eth_sepolia",
}

// minimal number of independent providers a receipt query must use
const MinProviders = 3

const (
	CkSepoliaETHMinterAddress = "0xb44b5e756a894775fc32eddf3314bb1b1944dc34"
	CkSepoliaETHLedger        = "apia6-jaaaa-aaaar-qabma-cai"
	CkSepoliaETHMinter        = "jzenf-aiaaa-aaaar-qaa7q-cai"

	CkSepoliaERC20Orchestrator = "2s5qh-7aaaa-aaaar-qadya-cai"

	SepoliaChainID      = "11155111"
	EthereumChainID     = "1"
	SepoliaUSDCAddress  = "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
	EthereumUSDCAddress = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"

	CkSepoliaUSDCLedger = "yfumr-cyaaa-aaaar-qaela-cai"
	CkSepoliaUSDCIndex  = "ycvkf-paaaa-aaaar-qaelq-cai"

	EVMRPCCanister = "7hfb6-caaaa-aaaar-qadga-cai"
)

const (
	AssetCkSepoliaETH  = "ckSepoliaETH"
	AssetCkSepoliaUSDC = "ckSepoliaUSDC"
)

// bridged assets, keyed by symbol
var Assets = map[string]types.Asset{
	AssetCkSepoliaETH: {
		Symbol:             AssetCkSepoliaETH,
		Kind:               types.NativeWrappedAsset,
		LedgerID:           CkSepoliaETHLedger,
		MinterID:           CkSepoliaETHMinter,
		CounterpartAddress: CkSepoliaETHMinterAddress,
	},
	AssetCkSepoliaUSDC: {
		Symbol:             AssetCkSepoliaUSDC,
		Kind:               types.FungibleWrappedAsset,
		LedgerID:           CkSepoliaUSDCLedger,
		MinterID:           CkSepoliaETHMinter,
		CounterpartAddress: CkSepoliaETHMinterAddress,
		Erc20Address:       SepoliaUSDCAddress,
	},
}

// asset used when a caller does not name one
const DefaultAsset = AssetCkSepoliaETH

// logical service name -> external address / canister id
var Identities = map[string]string{
	"ck_sepolia_eth_minter_address": CkSepoliaETHMinterAddress,
	"ck_sepolia_eth_ledger":         CkSepoliaETHLedger,
	"ck_sepolia_eth_minter":         CkSepoliaETHMinter,
	"ck_sepolia_erc20_orchestrator": CkSepoliaERC20Orchestrator,
	"ck_sepolia_usdc_ledger":        CkSepoliaUSDCLedger,
	"ck_sepolia_usdc_index":         CkSepoliaUSDCIndex,
	"evm_rpc":                       EVMRPCCanister,
	"sepolia_chain_id":              SepoliaChainID,
	"ethereum_chain_id":             EthereumChainID,
	"sepolia_usdc_address":          SepoliaUSDCAddress,
	"ethereum_usdc_address":         EthereumUSDCAddress,
}

var RedisStatusSets = map[string]string{
	types.StatusApproving:    "withdrawops:approving",    // approve call issued
	types.StatusApproved:     "withdrawops:approved",     // ledger accepted the approval, withdraw not sent yet
	types.StatusApproveFail:  "withdrawops:approvefail",  // ledger rejected the approval
	types.StatusWithdrawing:  "withdrawops:withdrawing",  // withdraw call issued to the minter
	types.StatusSubmitted:    "withdrawops:submitted",    // minter accepted the withdrawal
	types.StatusWithdrawFail: "withdrawops:withdrawfail", // minter rejected the withdrawal
}
