package inject

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// PasteSink injects text by writing it to the clipboard, synthesizing a
// Ctrl+V chord, and restoring the previous clipboard contents. Useful on
// surfaces where no typing tool is available.
type PasteSink struct {
	kb keybd_event.KeyBonding
}

// NewPasteSink prepares the key synthesizer. On Linux the underlying uinput
// device needs a moment before the first synthesized event is accepted.
func NewPasteSink() (*PasteSink, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key synthesizer: %w", err)
	}

	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}

	return &PasteSink{kb: kb}, nil
}

// Name returns the backend name.
func (s *PasteSink) Name() string { return BackendPaste }

// Type swaps the fragment into the clipboard, pastes it, and restores the
// prior clipboard contents.
func (s *PasteSink) Type(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	previous, _ := clipboard.ReadAll()

	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	time.Sleep(80 * time.Millisecond)

	s.kb.HasCTRL(true)
	s.kb.SetKeys(keybd_event.VK_V)
	if err := s.kb.Launching(); err != nil {
		return fmt.Errorf("failed to synthesize paste chord: %w", err)
	}

	time.Sleep(120 * time.Millisecond)
	if err := clipboard.WriteAll(previous); err != nil {
		return fmt.Errorf("failed to restore clipboard: %w", err)
	}

	return nil
}
