package campaign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/quitaai/cobranca-ai-platform/internal/engine"
	"github.com/quitaai/cobranca-ai-platform/internal/messaging/zapclient"
	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

var runnerTracer = otel.Tracer("cobranca/campaign-runner")

// Sender delivers campaign messages. *zapclient.Client satisfies it.
type Sender interface {
	SendText(ctx context.Context, req zapclient.SendTextRequest) (*zapclient.MessageResponse, error)
}

// RunnerConfig tunes the outbound batch.
type RunnerConfig struct {
	// Workers is the number of concurrent senders.
	Workers int
	// MessagesPerSecond caps the global outbound rate toward the provider.
	MessagesPerSecond float64
}

// Result summarizes one batch run.
type Result struct {
	Sent   int
	Failed int
}

// Runner sends the opening message to every debtor in a spreadsheet and
// seeds each sender's conversation context with the billing figures, so
// the first inbound reply already has {{amount}} and {{due_date}} filled.
type Runner struct {
	sender Sender
	memory *engine.MemoryStore
	cfg    RunnerConfig
	logger *logging.Logger
}

func NewRunner(sender Sender, memory *engine.MemoryStore, cfg RunnerConfig, logger *logging.Logger) *Runner {
	if sender == nil {
		panic("campaign: sender cannot be nil")
	}
	if memory == nil {
		panic("campaign: memory store cannot be nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 10
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{sender: sender, memory: memory, cfg: cfg, logger: logger}
}

// Run processes the whole batch. Cancelling the context stops dispatching;
// in-flight sends finish.
func (r *Runner) Run(ctx context.Context, debtors []Debtor) (Result, error) {
	ctx, span := runnerTracer.Start(ctx, "campaign.run")
	defer span.End()
	span.SetAttributes(attribute.Int("campaign.debtors", len(debtors)))

	jobs := make(chan Debtor)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result Result
	)

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for debtor := range jobs {
				err := r.dispatch(ctx, debtor)
				mu.Lock()
				if err != nil {
					result.Failed++
				} else {
					result.Sent++
				}
				mu.Unlock()
				if err != nil {
					r.logger.Warn("campaign send failed", "phone", debtor.Phone, "error", err)
				}
			}
		}()
	}

	interval := time.Duration(float64(time.Second) / r.cfg.MessagesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var dispatchErr error
dispatch:
	for _, debtor := range debtors {
		select {
		case <-ctx.Done():
			dispatchErr = ctx.Err()
			break dispatch
		case <-ticker.C:
			jobs <- debtor
		}
	}
	close(jobs)
	wg.Wait()

	span.SetAttributes(
		attribute.Int("campaign.sent", result.Sent),
		attribute.Int("campaign.failed", result.Failed),
	)
	r.logger.Info("campaign batch finished", "sent", result.Sent, "failed", result.Failed)
	return result, dispatchErr
}

func (r *Runner) dispatch(ctx context.Context, debtor Debtor) error {
	handle, err := r.memory.Acquire(ctx, debtor.Phone, debtor.Name)
	if err != nil {
		return fmt.Errorf("campaign: seed context: %w", err)
	}
	handle.SetBilling(debtor.AmountCents, debtor.DueDate)
	handle.Release()

	_, err = r.sender.SendText(ctx, zapclient.SendTextRequest{
		To:   debtor.Phone,
		Text: openingMessage(debtor),
	})
	if err != nil {
		return fmt.Errorf("campaign: send opening: %w", err)
	}
	return nil
}

func openingMessage(debtor Debtor) string {
	return fmt.Sprintf(
		"Olá, %s! Aqui é o atendimento digital de cobrança. Consta uma fatura em aberto de %s com vencimento em %s. Responda esta mensagem para pagar, pedir a segunda via ou negociar um parcelamento.",
		firstName(debtor.Name),
		engine.FormatBRL(debtor.AmountCents),
		debtor.DueDate.Format("02/01/2006"),
	)
}

func firstName(full string) string {
	for i, r := range full {
		if r == ' ' {
			return full[:i]
		}
	}
	return full
}
