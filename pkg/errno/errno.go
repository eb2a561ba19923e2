package errno

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Code, typed.Message
	case Errno:
		return typed.Code, typed.Message
	default:
		return InternalServerError.Code, err.Error()
	}
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
)

// Vault Errors (20100+)
var (
	ErrWalletExists      = Errno{Code: 20101, Message: "Wallet already exists for this user"}
	ErrWalletNotFound    = Errno{Code: 20102, Message: "Wallet not found"}
	ErrInvalidSecret     = Errno{Code: 20103, Message: "Invalid private key or mnemonic"}
	ErrBadCredentials    = Errno{Code: 20104, Message: "Incorrect password or PIN"}
	ErrWalletLocked      = Errno{Code: 20105, Message: "Wallet is locked"}
	ErrAttemptsExceeded  = Errno{Code: 20106, Message: "Too many failed attempts, wallet unlock refused"}
	ErrNeedsSecondFactor = Errno{Code: 20107, Message: "Two-factor code required"}
	ErrBadTOTP           = Errno{Code: 20108, Message: "Invalid two-factor code"}
)

// Trade Errors (20200+)
var (
	ErrNoRoute             = Errno{Code: 20201, Message: "No viable swap route for this token"}
	ErrInsufficientBalance = Errno{Code: 20202, Message: "Insufficient balance"}
	ErrStaleQuote          = Errno{Code: 20203, Message: "Quote expired, please retry"}
	ErrSlippageExceeded    = Errno{Code: 20204, Message: "Price moved beyond slippage tolerance"}
	ErrPartialSplitFailure = Errno{Code: 20205, Message: "Some split legs failed"}
	ErrBadAmount           = Errno{Code: 20206, Message: "Invalid amount expression"}
	ErrOrderNotFound       = Errno{Code: 20207, Message: "Order not found"}
)

// Mirror Errors (20300+)
var (
	ErrBadTargetWallet = Errno{Code: 20301, Message: "Invalid target wallet address"}
	ErrMirrorNotFound  = Errno{Code: 20302, Message: "No mirror configuration for this user"}
)

// Network Errors (20400+)
var (
	ErrRPCTimeout     = Errno{Code: 20401, Message: "Blockchain RPC timed out"}
	ErrRPCUnreachable = Errno{Code: 20402, Message: "Blockchain RPC unreachable"}
)
