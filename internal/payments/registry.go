package payments

import (
	"fmt"

	"github.com/novamart/orderflow/pkg/enums"
	pkgerrors "github.com/novamart/orderflow/pkg/errors"
)

// Registry resolves the gateway implementation for a payment method.
type Registry struct {
	gateways map[enums.PaymentMethod]Gateway
}

// NewRegistry indexes the provided gateways by method.
func NewRegistry(gateways ...Gateway) (*Registry, error) {
	indexed := make(map[enums.PaymentMethod]Gateway, len(gateways))
	for _, gw := range gateways {
		if gw == nil {
			return nil, fmt.Errorf("nil gateway provided")
		}
		method := gw.Method()
		if _, exists := indexed[method]; exists {
			return nil, fmt.Errorf("duplicate gateway for method %s", method)
		}
		indexed[method] = gw
	}
	return &Registry{gateways: indexed}, nil
}

// ByMethod returns the gateway registered for the method.
func (r *Registry) ByMethod(method enums.PaymentMethod) (Gateway, error) {
	gw, ok := r.gateways[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no gateway for payment method %q", method))
	}
	return gw, nil
}
