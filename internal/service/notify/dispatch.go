package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"bazaar/internal/model"
	"bazaar/internal/monitor"
	"bazaar/internal/repository"
	"bazaar/internal/service/token"
	"bazaar/pkg/bloom"
	"bazaar/pkg/log"
	"bazaar/pkg/snowflake"
	"bazaar/pkg/utils"
)

// EngineConfig dispatch engine tuning
type EngineConfig struct {
	AdminKeys     []string
	SetupRetries  int
	SetupBackoff  time.Duration
	SubmitRetries int
}

// Engine fans order events out to push tokens. It owns the relevance,
// gating, resolution and delivery pipeline plus the sent/received log.
type Engine struct {
	gate        *Gate
	registry    token.Registry
	provider    Provider
	logRepo     repository.NotificationLogRepository
	courierRepo repository.CourierRepository
	userRepo    repository.UserRepository
	seen        *bloom.SeenFilter
	idGen       *snowflake.IDGenerator
	metrics     *monitor.MetricsCollector
	cfg         EngineConfig

	// tokens belonging to this client instance. A device never pushes
	// to itself, whichever role its user acted in.
	localMu     sync.RWMutex
	localTokens map[string]struct{}

	// setup state, per process lifetime, keyed by user+token so one
	// user's in-flight registration never swallows another's
	setupMu       sync.Mutex
	setupInFlight map[string]*setupCall
	setupDone     map[string]bool
}

// setupCall one in-flight setup; concurrent callers for the same
// user+token wait on done and share err
type setupCall struct {
	done chan struct{}
	err  error
}

// NewEngine creates a dispatch engine
func NewEngine(
	gate *Gate,
	registry token.Registry,
	provider Provider,
	logRepo repository.NotificationLogRepository,
	courierRepo repository.CourierRepository,
	userRepo repository.UserRepository,
	idGen *snowflake.IDGenerator,
	metrics *monitor.MetricsCollector,
	cfg EngineConfig,
) *Engine {
	if cfg.SetupRetries <= 0 {
		cfg.SetupRetries = 3
	}
	if cfg.SetupBackoff <= 0 {
		cfg.SetupBackoff = 3 * time.Second
	}
	if cfg.SubmitRetries <= 0 {
		cfg.SubmitRetries = 2
	}
	return &Engine{
		gate:          gate,
		registry:      registry,
		provider:      provider,
		logRepo:       logRepo,
		courierRepo:   courierRepo,
		userRepo:      userRepo,
		seen:          bloom.NewSeenFilter(100000, 0.01),
		idGen:         idGen,
		metrics:       metrics,
		cfg:           cfg,
		localTokens:   make(map[string]struct{}),
		setupInFlight: make(map[string]*setupCall),
		setupDone:     make(map[string]bool),
	}
}

// SetLocalTokens records the tokens registered by this client instance
// so its own pushes are suppressed
func (e *Engine) SetLocalTokens(tokens ...string) {
	e.localMu.Lock()
	defer e.localMu.Unlock()
	for _, t := range tokens {
		if t != "" {
			e.localTokens[t] = struct{}{}
		}
	}
}

func (e *Engine) isLocalToken(t string) bool {
	e.localMu.RLock()
	defer e.localMu.RUnlock()
	_, ok := e.localTokens[t]
	return ok
}

// Setup registers the device token with the provider and the registry.
// Guests are skipped, concurrent calls for the same user+token collapse
// into one shared attempt, and a pairing that already completed setup
// this session is not re-registered.
func (e *Engine) Setup(ctx context.Context, userKey, deviceToken, platform string) error {
	if userKey == "" {
		log.Debug("Skipping notification setup for guest session")
		return nil
	}
	if token.IsPlaceholder(deviceToken) {
		return utils.ErrTokenRejected
	}

	key := userKey + ":" + deviceToken

	e.setupMu.Lock()
	if e.setupDone[key] {
		e.setupMu.Unlock()
		return nil
	}
	if call, ok := e.setupInFlight[key]; ok {
		e.setupMu.Unlock()
		log.Debug("Notification setup already in progress, waiting for result")
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &setupCall{done: make(chan struct{})}
	e.setupInFlight[key] = call
	e.setupMu.Unlock()

	call.err = e.runSetup(ctx, userKey, deviceToken, platform)

	e.setupMu.Lock()
	if call.err == nil {
		e.setupDone[key] = true
	}
	delete(e.setupInFlight, key)
	e.setupMu.Unlock()
	close(call.done)

	return call.err
}

func (e *Engine) runSetup(ctx context.Context, userKey, deviceToken, platform string) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.SetupRetries; attempt++ {
		lastErr = e.setupOnce(ctx, userKey, deviceToken, platform)
		if lastErr == nil {
			e.SetLocalTokens(deviceToken)
			e.recordSetup("success")
			return nil
		}
		e.recordSetup("retry")
		log.WithError(lastErr).Warnf("Notification setup attempt %d/%d failed", attempt, e.cfg.SetupRetries)

		if attempt < e.cfg.SetupRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * e.cfg.SetupBackoff):
			}
		}
	}

	e.recordSetup("failure")
	return fmt.Errorf("notification setup failed after %d attempts: %w", e.cfg.SetupRetries, lastErr)
}

func (e *Engine) setupOnce(ctx context.Context, userKey, deviceToken, platform string) error {
	if err := e.provider.Register(ctx, deviceToken, platform); err != nil {
		return fmt.Errorf("provider register: %w", err)
	}
	if err := e.registry.Upsert(ctx, userKey, deviceToken, platform); err != nil {
		return fmt.Errorf("registry upsert: %w", err)
	}
	return nil
}

// NotifyOnStepActivation pushes one order event to every relevant party.
// Sends are best-effort per token; exactly one sent-log row is written
// per invocation regardless of individual outcomes.
func (e *Engine) NotifyOnStepActivation(ctx context.Context, order *model.Order, msg *model.DispatchMessage) error {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordDispatchDuration(msg.EventKey, time.Since(start))
		}
	}()

	couriers, err := e.courierRepo.CouriersBySellers(ctx, order.SellerKeys())
	if err != nil {
		log.WithError(err).Warn("Failed to load courier assignments, continuing without couriers")
		couriers = map[string][]string{}
	}

	adminKeys, err := e.userRepo.ListAdminKeys(ctx)
	if err != nil || len(adminKeys) == 0 {
		adminKeys = e.cfg.AdminKeys
	}

	recipients := ResolveRecipients(order, msg.Changed, msg.ActorKey, couriers, adminKeys)

	title, body := e.composeMessage(order, msg)

	sent := 0
	failed := 0
	for _, role := range []string{model.RoleBuyer, model.RoleSeller, model.RoleDelivery, model.RoleAdmin} {
		keys := recipients.ForRole(role)
		if len(keys) == 0 {
			continue
		}
		if !e.gate.Enabled(ctx, msg.EventKey, role) {
			e.recordSuppressed(msg.EventKey, "gated", len(keys))
			continue
		}

		userKeys := make([]string, 0, len(keys))
		for k := range keys {
			userKeys = append(userKeys, k)
		}

		tokens, err := e.registry.Resolve(ctx, userKeys)
		if err != nil {
			log.WithError(err).WithFields(map[string]interface{}{
				"event": msg.EventKey,
				"role":  role,
			}).Error("Failed to resolve push tokens")
			failed += len(userKeys)
			continue
		}

		deliverable := tokens[:0]
		for _, t := range tokens {
			if e.isLocalToken(t) {
				e.recordSuppressed(msg.EventKey, "own_device", 1)
				continue
			}
			deliverable = append(deliverable, t)
		}
		if len(deliverable) == 0 {
			continue
		}

		errs := e.provider.SendBatch(ctx, deliverable, title, body)
		for i, sendErr := range errs {
			if sendErr != nil {
				failed++
				if e.metrics != nil {
					e.metrics.RecordDispatchFailure(msg.EventKey, "send")
				}
				log.WithError(sendErr).WithFields(map[string]interface{}{
					"event": msg.EventKey,
					"role":  role,
					"token": utils.SHA256(deliverable[i])[:12],
				}).Warn("Push send failed")
				continue
			}
			sent++
			if e.metrics != nil {
				e.metrics.RecordDispatchSent(msg.EventKey, role)
			}
		}
	}

	payload, _ := json.Marshal(msg)
	payloadStr := string(payload)
	entry := &model.NotificationLog{
		MessageID:    strconv.FormatInt(e.idGen.NextID(), 10),
		Type:         model.NotificationTypeSent,
		Title:        title,
		Body:         body,
		Status:       model.NotificationStatusUnread,
		RelatedParty: msg.ActorKey,
		Payload:      &payloadStr,
	}
	if err := e.logRepo.Append(ctx, entry); err != nil {
		return utils.WrapError(err, utils.CodeDispatchError, "failed to record dispatch")
	}

	log.WithFields(map[string]interface{}{
		"event":    msg.EventKey,
		"order_no": msg.OrderNo,
		"sent":     sent,
		"failed":   failed,
	}).Info("Dispatch completed")
	return nil
}

// HandleInbound records a received notification, deduplicating by
// message id. Receipts without an id are always recorded under a
// generated one.
func (e *Engine) HandleInbound(ctx context.Context, messageID, title, body, relatedParty string) error {
	generated := messageID == ""
	if generated {
		messageID = strconv.FormatInt(e.idGen.NextID(), 10)
	} else if e.seen.MaybeSeen(messageID) {
		dup, err := e.logRepo.HasReceived(ctx, messageID)
		if err != nil {
			return err
		}
		if dup {
			e.recordInbound("duplicate")
			log.WithFields(map[string]interface{}{"message_id": messageID}).Debug("Dropping duplicate inbound notification")
			return nil
		}
	}

	entry := &model.NotificationLog{
		MessageID:    messageID,
		Type:         model.NotificationTypeReceived,
		Title:        title,
		Body:         body,
		Status:       model.NotificationStatusUnread,
		RelatedParty: relatedParty,
	}
	if err := e.logRepo.Append(ctx, entry); err != nil {
		// The bloom filter only sees this process. A redelivery after a
		// restart, or a receipt persisted by another instance, hits the
		// unique (message_id, type) index here; absorb it as a duplicate.
		if !generated {
			if dup, derr := e.logRepo.HasReceived(ctx, messageID); derr == nil && dup {
				e.seen.Add(messageID)
				e.recordInbound("duplicate")
				log.WithFields(map[string]interface{}{"message_id": messageID}).Debug("Dropping duplicate inbound notification")
				return nil
			}
		}
		return err
	}
	e.seen.Add(messageID)
	e.recordInbound("recorded")
	return nil
}

// Submit runs a dispatch asynchronously with bounded retry. The returned
// channel yields the final outcome and is closed afterwards.
func (e *Engine) Submit(ctx context.Context, order *model.Order, msg *model.DispatchMessage) <-chan error {
	result := make(chan error, 1)
	go func() {
		defer close(result)
		var err error
		for attempt := 0; attempt <= e.cfg.SubmitRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					result <- ctx.Err()
					return
				case <-time.After(time.Duration(attempt) * time.Second):
				}
			}
			if err = e.NotifyOnStepActivation(ctx, order, msg); err == nil {
				result <- nil
				return
			}
		}
		result <- err
	}()
	return result
}

func (e *Engine) composeMessage(order *model.Order, msg *model.DispatchMessage) (string, string) {
	title := fmt.Sprintf("Order %s: %s", msg.OrderNo, msg.StepLabel)
	if len(msg.Changed) == 0 {
		return title, fmt.Sprintf("Order %s moved to %s", msg.OrderNo, msg.StepLabel)
	}

	body := fmt.Sprintf("%d item(s) updated in order %s:", len(msg.Changed), msg.OrderNo)
	for _, ch := range msg.Changed {
		line := fmt.Sprintf(" %s is now %s", ch.ProductKey, ch.NewStatus)
		if item := order.ItemByProduct(ch.ProductKey); item != nil && item.Note != nil && *item.Note != "" {
			line += " (" + *item.Note + ")"
		}
		body += line + ";"
	}
	return title, body
}

func (e *Engine) recordSuppressed(event, reason string, n int) {
	if e.metrics == nil {
		return
	}
	for i := 0; i < n; i++ {
		e.metrics.RecordDispatchSuppressed(event, reason)
	}
}

func (e *Engine) recordSetup(status string) {
	if e.metrics != nil {
		e.metrics.RecordSetupAttempt(status)
	}
}

func (e *Engine) recordInbound(status string) {
	if e.metrics != nil {
		e.metrics.RecordInboundReceipt(status)
	}
}
