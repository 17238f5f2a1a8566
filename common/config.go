package common

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	logger "github.com/kthomas/go-logger"
)

var (
	// Log is the configured logger
	Log *logger.Logger

	// ConsumeNATSStreamingSubscriptions when true starts the package NATS consumers
	ConsumeNATSStreamingSubscriptions bool

	// StoreAddress is the base58-encoded address of the storefront wallet
	StoreAddress string

	// LoyaltyTreeAddress is the base58-encoded address of the loyalty/coupon tree
	LoyaltyTreeAddress string

	// LoyaltyTreeAuthority is the base58-encoded authority of the loyalty/coupon tree
	LoyaltyTreeAuthority string

	// LoyaltyCollectionAddress is the base58-encoded address of the loyalty credential collection
	LoyaltyCollectionAddress string

	// StablecoinMintAddress is the base58-encoded address of the stablecoin mint accepted for payment
	StablecoinMintAddress string

	// LedgerRPCURL is the url of the ledger JSON-RPC read endpoint
	LedgerRPCURL string

	// LedgerWebsocketURL is the url of the ledger websocket notification endpoint
	LedgerWebsocketURL string

	// LedgerIndexURL is the url of the external compressed asset index
	LedgerIndexURL string

	// IssuerAPIURL is the url of the external credential issuer
	IssuerAPIURL string

	// CheckoutLabel is the display label returned by the checkout API
	CheckoutLabel string

	// CheckoutIconURL is the display icon returned by the checkout API
	CheckoutIconURL string

	// PaymentWatchStrategy selects the payment detection strategy (poll or subscribe)
	PaymentWatchStrategy string

	// PaymentWatchInterval is the polling interval applied by the payment watcher
	PaymentWatchInterval time.Duration

	// PaymentWatchTimeout is the horizon after which an unpaid order reference expires
	PaymentWatchTimeout time.Duration
)

func init() {
	godotenv.Load()

	requireLogger()
	requireCheckoutConfiguration()
}

func requireLogger() {
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = "INFO"
	}

	var endpoint *string
	if os.Getenv("SYSLOG_ENDPOINT") != "" {
		endpt := os.Getenv("SYSLOG_ENDPOINT")
		endpoint = &endpt
	}

	Log = logger.NewLogger("checkout", lvl, endpoint)
}

func requireCheckoutConfiguration() {
	ConsumeNATSStreamingSubscriptions = os.Getenv("CONSUME_NATS_STREAMING_SUBSCRIPTIONS") == "true"

	StoreAddress = os.Getenv("CHECKOUT_STORE_ADDRESS")
	LoyaltyTreeAddress = os.Getenv("CHECKOUT_LOYALTY_TREE_ADDRESS")
	LoyaltyTreeAuthority = os.Getenv("CHECKOUT_LOYALTY_TREE_AUTHORITY")
	LoyaltyCollectionAddress = os.Getenv("CHECKOUT_LOYALTY_COLLECTION_ADDRESS")
	StablecoinMintAddress = os.Getenv("CHECKOUT_STABLECOIN_MINT_ADDRESS")

	LedgerRPCURL = os.Getenv("LEDGER_RPC_URL")
	LedgerWebsocketURL = os.Getenv("LEDGER_RPC_WS_URL")
	LedgerIndexURL = os.Getenv("LEDGER_INDEX_URL")
	if LedgerIndexURL == "" {
		LedgerIndexURL = LedgerRPCURL
	}

	IssuerAPIURL = os.Getenv("ISSUER_API_URL")

	CheckoutLabel = os.Getenv("CHECKOUT_LABEL")
	if CheckoutLabel == "" {
		CheckoutLabel = "checkout"
	}

	CheckoutIconURL = os.Getenv("CHECKOUT_ICON_URL")

	PaymentWatchStrategy = os.Getenv("PAYMENT_WATCH_STRATEGY")
	if PaymentWatchStrategy == "" {
		PaymentWatchStrategy = "poll"
	}

	PaymentWatchInterval = defaultDuration("PAYMENT_WATCH_INTERVAL", time.Second*5)
	PaymentWatchTimeout = defaultDuration("PAYMENT_WATCH_TIMEOUT", time.Minute*5)
}

func defaultDuration(name string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(name); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil {
			Log.Panicf("failed to parse %s as duration; %s", name, err.Error())
		}
		return duration
	}
	return fallback
}

// RequireCheckoutEnvironment panics unless the configuration the service
// cannot run without is present; invoked at service start, not at package
// init, so misconfiguration fails fast without poisoning library consumers
func RequireCheckoutEnvironment() {
	PanicIfEmpty(StoreAddress, "CHECKOUT_STORE_ADDRESS not provided")
	PanicIfEmpty(LoyaltyTreeAddress, "CHECKOUT_LOYALTY_TREE_ADDRESS not provided")
	PanicIfEmpty(LoyaltyTreeAuthority, "CHECKOUT_LOYALTY_TREE_AUTHORITY not provided")
	PanicIfEmpty(LoyaltyCollectionAddress, "CHECKOUT_LOYALTY_COLLECTION_ADDRESS not provided")
	PanicIfEmpty(StablecoinMintAddress, "CHECKOUT_STABLECOIN_MINT_ADDRESS not provided")
	PanicIfEmpty(LedgerRPCURL, "LEDGER_RPC_URL not provided")
	PanicIfEmpty(IssuerAPIURL, "ISSUER_API_URL not provided")
}
