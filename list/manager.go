package list

import (
	"context"
	"fmt"

	"github.com/migadu/ezlist/helpers"
	"github.com/migadu/ezlist/localizer"
	"github.com/migadu/ezlist/logger"
	"github.com/migadu/ezlist/pkg/metrics"
	"github.com/migadu/ezlist/registry"
)

// Sender delivers a fully-formed outbound message. Implementations own
// transport policy (timeouts, retries); the core only reports failures.
type Sender interface {
	Deliver(ctx context.Context, msg *OutboundMessage) error
}

// Localizer renders a localized reply for the given language and template
// key, falling back to the default language.
type Localizer interface {
	Render(lang, key string, data localizer.Data) (subject, body string, err error)
}

// Archiver stores the raw bytes of a forwarded post. Optional.
type Archiver interface {
	StorePost(ctx context.Context, raw []byte) error
}

// Outcome is the terminal state of processing one message.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeMutated
	OutcomeForwarded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMutated:
		return "mutated"
	case OutcomeForwarded:
		return "forwarded"
	default:
		return "skipped"
	}
}

// Config is the immutable list policy the manager applies.
type Config struct {
	Address         string
	SubjectPrefix   string
	SkipSender      bool
	DefaultLanguage string
}

// Manager consumes one inbound message at a time, classifies it, and
// applies the resulting registry mutation, confirmation reply, or fan-out.
//
// Messages are processed strictly serially: a subscription must be durable
// before a later post from the same sender is fanned out, and serial
// processing gives that ordering without locks.
type Manager struct {
	cfg        Config
	classifier *Classifier
	store      registry.Store
	localizer  Localizer
	sender     Sender
	archiver   Archiver
}

// NewManager wires the core orchestrator.
func NewManager(cfg Config, classifier *Classifier, store registry.Store, loc Localizer, sender Sender) *Manager {
	return &Manager{
		cfg:        cfg,
		classifier: classifier,
		store:      store,
		localizer:  loc,
		sender:     sender,
	}
}

// SetArchiver enables archival of forwarded posts.
func (m *Manager) SetArchiver(a Archiver) {
	m.archiver = a
}

// Process runs one message through the classify-and-dispatch state machine
// and returns its terminal outcome.
//
// Delivery failures are reported and swallowed: the message must still be
// acknowledged so one undeliverable reply cannot stall the queue. Registry
// and template errors are returned; they are systemic, and continuing
// would risk inconsistent subscriber state.
func (m *Manager) Process(ctx context.Context, msg *InboundMessage) (Outcome, error) {
	classification := m.classifier.Classify(msg)
	metrics.MessagesProcessed.WithLabelValues(classification.String()).Inc()

	logger.Debug("Manager: classified message",
		"id", msg.ID, "sender", msg.Sender, "classification", classification.String())

	switch classification {
	case Subscribe:
		return m.subscribe(ctx, msg)
	case Unsubscribe:
		return m.unsubscribe(ctx, msg)
	case Post:
		return m.forward(ctx, msg)
	default:
		logger.Debug("Manager: ignoring message", "id", msg.ID, "sender", msg.Sender)
		return OutcomeSkipped, nil
	}
}

func (m *Manager) subscribe(ctx context.Context, msg *InboundMessage) (Outcome, error) {
	result, err := m.store.Add(ctx, msg.Sender)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("subscribing %s: %w", msg.Sender, err)
	}

	logger.Info("Manager: subscribe", "address", msg.Sender, "result", result.String())
	m.updateSubscriberGauge(ctx)

	// The confirmation is identical whether the subscription was fresh or
	// already present; a duplicate subscribe is a no-op with the same reply.
	if err := m.reply(ctx, msg.Sender, localizer.TemplateSubscribeConfirmation); err != nil {
		return OutcomeMutated, err
	}
	return OutcomeMutated, nil
}

func (m *Manager) unsubscribe(ctx context.Context, msg *InboundMessage) (Outcome, error) {
	result, err := m.store.Remove(ctx, msg.Sender)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("unsubscribing %s: %w", msg.Sender, err)
	}

	logger.Info("Manager: unsubscribe", "address", msg.Sender, "result", result.String())
	m.updateSubscriberGauge(ctx)

	if result == registry.NotPresent {
		// Nothing was removed and there is nobody to confirm to.
		return OutcomeMutated, nil
	}

	if err := m.reply(ctx, msg.Sender, localizer.TemplateUnsubscribeConfirmation); err != nil {
		return OutcomeMutated, err
	}
	return OutcomeMutated, nil
}

func (m *Manager) forward(ctx context.Context, msg *InboundMessage) (Outcome, error) {
	sender := helpers.NormalizeAddress(msg.Sender)

	// Only subscribers may post. A message from anyone else is dropped
	// and acknowledged; it never reaches the list.
	member, err := m.store.Contains(ctx, sender)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("checking membership of %s: %w", sender, err)
	}
	if !member {
		logger.Warn("Manager: rejecting post from non-subscriber", "id", msg.ID, "sender", sender)
		metrics.PostsRejected.Inc()
		return OutcomeSkipped, nil
	}

	subscribers, err := m.store.List(ctx)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("listing subscribers: %w", err)
	}
	recipients := make([]string, 0, len(subscribers))
	for _, s := range subscribers {
		if m.cfg.SkipSender && s == sender {
			continue
		}
		recipients = append(recipients, s)
	}

	if m.archiver != nil {
		if err := m.archiver.StorePost(ctx, msg.Raw); err != nil {
			logger.Error("Manager: failed to archive post", "id", msg.ID, "error", err)
			metrics.ArchiveOperations.WithLabelValues("failure").Inc()
		} else {
			metrics.ArchiveOperations.WithLabelValues("success").Inc()
		}
	}

	if len(recipients) == 0 {
		logger.Info("Manager: post has no recipients", "id", msg.ID, "sender", msg.Sender)
		return OutcomeForwarded, nil
	}

	out := &OutboundMessage{
		From:       msg.Sender,
		Recipients: recipients,
		Subject:    helpers.PrefixSubject(m.cfg.SubjectPrefix, msg.Subject),
		Body:       msg.Body,
		InReplyTo:  msg.MessageID,
		Post:       true,
	}

	logger.Info("Manager: forwarding post",
		"id", msg.ID, "sender", msg.Sender, "recipients", len(recipients), "subject", out.Subject)

	if err := m.sender.Deliver(ctx, out); err != nil {
		logger.Error("Manager: post delivery failed", "id", msg.ID, "error", err)
		metrics.Deliveries.WithLabelValues("post", "failure").Inc()
		return OutcomeForwarded, nil
	}
	metrics.Deliveries.WithLabelValues("post", "success").Inc()
	metrics.FanoutRecipients.Add(float64(len(recipients)))
	return OutcomeForwarded, nil
}

// reply renders a localized template and sends it to a single recipient.
// Template resolution errors are systemic (startup validation should have
// caught them) and propagate; delivery failures are reported and dropped.
func (m *Manager) reply(ctx context.Context, recipient, templateKey string) error {
	subject, body, err := m.localizer.Render(m.cfg.DefaultLanguage, templateKey, localizer.Data{
		ListAddress: m.cfg.Address,
		Sender:      recipient,
		Prefix:      m.cfg.SubjectPrefix,
	})
	if err != nil {
		return fmt.Errorf("rendering %s: %w", templateKey, err)
	}

	out := &OutboundMessage{
		From:       m.cfg.Address,
		Recipients: []string{recipient},
		Subject:    helpers.PrefixSubject(m.cfg.SubjectPrefix, subject),
		Body:       body,
		Language:   m.cfg.DefaultLanguage,
	}

	if err := m.sender.Deliver(ctx, out); err != nil {
		logger.Error("Manager: reply delivery failed",
			"recipient", recipient, "template", templateKey, "error", err)
		metrics.Deliveries.WithLabelValues("reply", "failure").Inc()
		return nil
	}
	metrics.Deliveries.WithLabelValues("reply", "success").Inc()
	return nil
}

// updateSubscriberGauge refreshes the subscriber count metric. Best effort.
func (m *Manager) updateSubscriberGauge(ctx context.Context) {
	count, err := m.store.Count(ctx)
	if err != nil {
		logger.Debug("Manager: failed to count subscribers for metrics", "error", err)
		return
	}
	metrics.SubscribersTotal.Set(float64(count))
}
