package gateway

import (
	"context"
	"fmt"
)

// Composite joins a store with a separately reachable assistant.
type Composite struct {
	LedgerStore
	Assistant
}

var _ Gateway = Composite{}

// NewComposite returns a Gateway; a nil assistant answers every call with ErrUnsupported.
func NewComposite(store LedgerStore, assistant Assistant) Composite {
	if assistant == nil {
		assistant = noAssistant{}
	}
	return Composite{LedgerStore: store, Assistant: assistant}
}

type noAssistant struct{}

func (noAssistant) ExtractReceipt(ctx context.Context, image []byte, filename string) (ReceiptFields, error) {
	return ReceiptFields{}, fmt.Errorf("receipt extraction: %w", ErrUnsupported)
}

func (noAssistant) ChatQuery(ctx context.Context, message string) (ChatReply, error) {
	return ChatReply{}, fmt.Errorf("chat: %w", ErrUnsupported)
}
