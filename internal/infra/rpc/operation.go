package rpc

import (
	"context"
	"net/http"
	"strings"

	"github.com/vietddude/paywatch/internal/infra/rpc/provider"
)

// walletPrefix is the path prefix of the Tron full-node HTTP API.
const walletPrefix = "wallet/"

// NewRESTOperation creates an Operation for a REST call. An empty method means POST.
func NewRESTOperation(path string, method string, body any) Operation {
	if method == "" {
		method = http.MethodPost
	}
	return provider.Operation{
		Name:       strings.TrimPrefix(path, "/"),
		Params:     body,
		IsREST:     true,
		RESTMethod: method,
	}
}

// WalletCall builds a POST to the Tron wallet API, e.g. WalletCall("getnowblock", nil).
func WalletCall(endpoint string, body any) Operation {
	return NewRESTOperation(walletPrefix+strings.TrimPrefix(endpoint, walletPrefix), http.MethodPost, body)
}

// NewInvokeOperation wraps a custom call. fn runs once per attempt against the
// provider the router selected.
func NewInvokeOperation(name string, fn func(ctx context.Context, p Provider) (any, error)) Operation {
	return provider.Operation{
		Name:   name,
		Invoke: fn,
	}
}
