package credit

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a credit operation. Status carries the consume
// outcome for consumption attempts, so an insufficient balance is logged as
// a status rather than an error.
type OperationLog struct {
	Operation string
	UserID    UserID
	EventID   EventID
	Kind      LedgerKind
	Amount    int64
	Metadata  MetadataJSON
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}
